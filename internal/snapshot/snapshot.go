// Package snapshot takes deep copies of configuration values so that the copy a
// component keeps cannot be changed through the caller's maps or slices.
package snapshot

import (
	"github.com/pkg/errors"
	"github.com/tiendc/go-deepcopy"
)

// Copy returns a deep copy of *src. Slices, maps and nested pointers are copied
// recursively. A nil src yields (nil, nil).
func Copy[T any](src *T) (*T, error) {
	if src == nil {
		return nil, nil
	}

	var dst T
	err := deepcopy.Copy(&dst, &src)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to deep copy type %T", src)
	}

	return &dst, nil
}

// MustCopy is Copy for values that are always copyable, such as plain configuration
// structs and profile tables. It panics on failure, which signals a programming error.
//
//	func NewServer(cfg Config) *Server {
//	    return &Server{config: *snapshot.MustCopy(&cfg)}
//	}
//
// A nil src yields nil.
func MustCopy[T any](src *T) *T {
	if src == nil {
		return nil
	}

	result, err := Copy(src)
	if err != nil {
		panic("failed to create immutable snapshot: " + err.Error())
	}

	return result
}
