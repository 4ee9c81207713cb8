package controller

import (
	"net/http"
	"strings"

	"github.com/animalet/runenv/pkg/runenv"
	"github.com/animalet/runenv/pkg/server"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultEnvironmentPath is where the environment controller answers by default.
const DefaultEnvironmentPath = "/_runenv"

// EnvironmentControllerConfig exposes which environment the process resolved.
type EnvironmentControllerConfig struct {
	Path string `yaml:"path,omitempty"`
}

func (e EnvironmentControllerConfig) Validate() error {
	if e.Path != "" && !strings.HasPrefix(e.Path, "/") {
		return errors.Errorf("path %q must start with '/'", e.Path)
	}
	return nil
}

// EnvironmentInfo is the body served by the environment controller.
// It never carries variable values.
type EnvironmentInfo struct {
	Environment runenv.EnvironmentName `json:"environment"`
	Known       bool                   `json:"known"`
	Description string                 `json:"description,omitempty"`
	Selector    string                 `json:"selector"`
}

func NewEnvironmentController(c *EnvironmentControllerConfig, ctx server.ControllerContext) (server.IController, error) {
	path := c.Path
	if path == "" {
		path = DefaultEnvironmentPath
	}

	log.Info().
		Str("path", path).
		Str("environment", string(ctx.Environment.Name)).
		Msg("Environment endpoint configured")

	return &environment{
		path: path,
		info: EnvironmentInfo{
			Environment: ctx.Environment.Name,
			Known:       ctx.Environment.Known,
			Description: ctx.Environment.Description,
			Selector:    ctx.Environment.Selector,
		},
	}, nil
}

type environment struct {
	path string
	info EnvironmentInfo
}

func (e *environment) Bind(engine *gin.Engine) error {
	engine.GET(e.path, func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusOK, e.info)
	})
	return nil
}

func (e *environment) Close() error {
	return nil
}
