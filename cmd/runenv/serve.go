package main

import (
	"fmt"

	"github.com/animalet/runenv/pkg/config"
	"github.com/animalet/runenv/pkg/controller"
	"github.com/animalet/runenv/pkg/server"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const serverModule = "server"

// defaultServerModule is used when the configuration has no server module.
// It is expanded after the environment has been applied.
const defaultServerModule = `address: "${HOST:-}:${PORT:-3000}"`

// serverConfig reads the server module. It must run after the environment has been
// applied so that placeholders see the effective values.
func serverConfig(file *config.Config) (*server.Config, error) {
	cfg, err := config.Get[server.Config](file, serverModule)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load server configuration")
	}
	if cfg != nil {
		return cfg, nil
	}

	log.Debug().Msg("No server configuration, serving the detected bundle")
	cfg, err = config.Unmarshal[server.Config](config.ModuleRawConfig(defaultServerModule))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load default server configuration")
	}

	cfg.Controllers = server.ControllerBindings{
		{TypeName: "environment", Config: config.ModuleRawConfig("{}")},
	}
	if dir, err := controller.DetectBundleDir(".", ""); err == nil {
		cfg.Controllers = append(cfg.Controllers, server.ControllerBinding{
			TypeName: "bundle",
			Config:   config.ModuleRawConfig(fmt.Sprintf("dir: %q", dir)),
		})
	} else {
		log.Warn().Err(err).Msg("No bundle to serve")
	}
	return cfg, nil
}

func newServer(b *bootstrap) (*server.Server, error) {
	cfg, err := serverConfig(b.file)
	if err != nil {
		return nil, err
	}
	return server.NewServer(*cfg, b.selection), nil
}
