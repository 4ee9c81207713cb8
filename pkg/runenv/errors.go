package runenv

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownEnvironment is returned in strict mode when the selected name has no profile.
var ErrUnknownEnvironment = errors.New("unknown environment")

// MissingVarsError reports required variables that are undefined or empty.
type MissingVarsError struct {
	Names []string
}

func (e *MissingVarsError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("required environment variable %s is not set", e.Names[0])
	}
	return fmt.Sprintf("required environment variables are not set: %s", strings.Join(e.Names, ", "))
}
