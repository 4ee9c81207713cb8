// Package controller holds the controllers runenv can serve next to a resolved
// environment: the application bundle, a reverse proxy to backend services and a
// small endpoint describing the active environment.
package controller

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/animalet/runenv/internal/snapshot"
	"github.com/animalet/runenv/pkg/server"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// IndexFile is the entry point every bundle directory must contain.
const IndexFile = "index.html"

// BundleCandidates are the directories probed, in order, when no bundle dir is configured.
var BundleCandidates = []string{"build", "dist", "public"}

// BundleControllerConfig serves a built front-end bundle.
type BundleControllerConfig struct {
	Path string `yaml:"path,omitempty"`
	// Dir is the bundle directory. When empty it is detected under Root.
	Dir  string `yaml:"dir,omitempty"`
	Root string `yaml:"root,omitempty"`
	// NoFallback disables serving index.html for unknown extension-less paths.
	NoFallback bool `yaml:"no_fallback,omitempty"`
}

func (b BundleControllerConfig) Validate() error {
	if b.Path != "" && !strings.HasPrefix(b.Path, "/") {
		return errors.Errorf("path %q must start with '/'", b.Path)
	}

	if b.Dir != "" {
		if stat, err := os.Stat(b.Dir); err != nil || !stat.IsDir() {
			return errors.Errorf("bundle directory %q not present or is not a directory", b.Dir)
		}
	}

	return nil
}

// DetectBundleDir returns configured when set, otherwise the first of BundleCandidates
// under root that contains an index.html.
func DetectBundleDir(root, configured string) (string, error) {
	if configured != "" {
		if stat, err := os.Stat(configured); err != nil || !stat.IsDir() {
			return "", errors.Errorf("bundle directory %q not present or is not a directory", configured)
		}
		return configured, nil
	}

	if root == "" {
		root = "."
	}
	for _, candidate := range BundleCandidates {
		dir := filepath.Join(root, candidate)
		if stat, err := os.Stat(filepath.Join(dir, IndexFile)); err == nil && !stat.IsDir() {
			log.Debug().Str("dir", dir).Msg("Bundle directory detected")
			return dir, nil
		}
	}

	return "", errors.Errorf("no bundle directory found under %q, looked for %s containing %s",
		root, strings.Join(BundleCandidates, ", "), IndexFile)
}

func NewBundleController(c *BundleControllerConfig, _ server.ControllerContext) (server.IController, error) {
	configCopy := snapshot.MustCopy(c)

	dir, err := DetectBundleDir(configCopy.Root, configCopy.Dir)
	if err != nil {
		return nil, err
	}

	mount := strings.TrimSuffix(configCopy.Path, "/")

	log.Info().
		Str("path", mount+"/").
		Str("dir", dir).
		Bool("fallback", !configCopy.NoFallback).
		Msg("Bundle configured")

	return &bundle{
		path:     mount,
		dir:      dir,
		fallback: !configCopy.NoFallback,
	}, nil
}

// bundle serves files from a single directory. Unknown extension-less paths fall
// back to index.html so that client-side routing works.
type bundle struct {
	path     string
	dir      string
	fallback bool
}

// Bind mounts the bundle. At the root it only answers requests no other route matched.
func (b *bundle) Bind(engine *gin.Engine) error {
	log.Info().Str("path", b.path+"/").Str("dir", b.dir).Msg("Binding bundle")

	if b.path == "" {
		engine.NoRoute(func(c *gin.Context) {
			b.serve(c, c.Request.URL.Path)
		})
		return nil
	}

	handler := func(c *gin.Context) {
		b.serve(c, c.Param("filepath"))
	}
	engine.GET(b.path+"/*filepath", handler)
	engine.HEAD(b.path+"/*filepath", handler)
	return nil
}

func (b *bundle) serve(c *gin.Context, requested string) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.Status(http.StatusNotFound)
		return
	}

	// Cleaning a rooted path removes every "..", so the result stays inside dir.
	clean := path.Clean("/" + requested)
	full := filepath.Join(b.dir, filepath.FromSlash(clean))

	stat, err := os.Stat(full)
	switch {
	case err == nil && !stat.IsDir():
		c.File(full)
		return
	case err == nil && stat.IsDir():
		index := filepath.Join(full, IndexFile)
		if _, err := os.Stat(index); err == nil {
			c.File(index)
			return
		}
	}

	if b.fallback && path.Ext(clean) == "" {
		c.File(filepath.Join(b.dir, IndexFile))
		return
	}

	c.Status(http.StatusNotFound)
}

func (b *bundle) Close() error {
	return nil
}
