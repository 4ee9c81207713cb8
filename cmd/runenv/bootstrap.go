package main

import (
	"io"
	"os"

	"github.com/animalet/runenv/pkg/config"
	"github.com/animalet/runenv/pkg/runenv"
	"github.com/animalet/runenv/pkg/server"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// environmentsModule is the configuration module holding the resolver settings.
const environmentsModule = "environments"

// settings are read from the environment before anything else.
type settings struct {
	ConfigPath string `env:"RUNENV_CONFIG"`
	Debug      string `env:"DEBUG"`
	DotEnv     string `env:"RUNENV_DOTENV" envDefault:".env"`
}

func (s settings) debugEnabled() bool {
	return s.Debug == "true"
}

func readSettings(pe runenv.ProcessEnvironment) (settings, error) {
	var s settings
	if err := env.ParseWithOptions(&s, env.Options{Environment: pe.Snapshot()}); err != nil {
		return settings{}, errors.Wrap(err, "error reading runenv settings from the environment")
	}
	return s, nil
}

// bootstrap is everything resolved before the server exists.
type bootstrap struct {
	file      *config.Config
	resolver  runenv.Config
	pairs     []runenv.URLPair
	selection runenv.Selection
}

func prepare(opts *options, s settings, pe runenv.ProcessEnvironment) (*bootstrap, error) {
	if err := loadDotEnv(s.DotEnv, pe); err != nil {
		return nil, err
	}

	explicit := opts.configPath
	if explicit == "" {
		explicit = s.ConfigPath
	}
	file := loadConfigFile(".", explicit)

	resolver, pairs, err := resolverConfig(file)
	if err != nil {
		return nil, err
	}
	resolver.Debug = resolver.Debug || opts.debug || s.debugEnabled()
	if resolver.Debug && !server.GetDebug() {
		// The file may enable tracing after logging was set up.
		server.SetDebug(true)
		log.Debug().Msg("Debug logging enabled by the environments configuration")
	}

	return &bootstrap{
		file:      file,
		resolver:  resolver,
		pairs:     pairs,
		selection: runenv.Select(resolver, pe),
	}, nil
}

// loadDotEnv copies variables from a dotenv file into pe without overriding any that
// are already set. A missing file is not an error.
func loadDotEnv(path string, pe runenv.ProcessEnvironment) error {
	if path == "" {
		return nil
	}

	vars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("file", path).Msg("No dotenv file found")
			return nil
		}
		return errors.Wrapf(err, "unable to read dotenv file %q", path)
	}

	loaded := 0
	for key, value := range vars {
		if _, ok := pe.Lookup(key); ok {
			continue
		}
		if err := pe.Set(key, value); err != nil {
			return errors.Wrapf(err, "unable to load %q from dotenv file", key)
		}
		loaded++
	}
	log.Debug().Str("file", path).Int("loaded", loaded).Msg("Dotenv file loaded")
	return nil
}

// loadConfigFile returns nil when no file is found or it cannot be parsed, so that the
// built-in defaults apply.
func loadConfigFile(dir, explicit string) *config.Config {
	path, ok := config.Locate(dir, explicit)
	if !ok {
		log.Debug().Msg("No configuration file found, using built-in defaults")
		return nil
	}

	cfg, err := config.NewConfig(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("file", path).Msg("Configuration file not found, using built-in defaults")
		} else {
			log.Error().Err(err).Str("file", path).Msg("Malformed configuration file, using built-in defaults")
		}
		return nil
	}

	log.Info().Str("file", path).Strs("modules", cfg.Keys()).Msg("Configuration loaded")
	return cfg
}

// resolverConfig merges the environments module over the defaults. An invalid module is
// reported and ignored like a malformed file.
func resolverConfig(file *config.Config) (runenv.Config, []runenv.URLPair, error) {
	defaults := runenv.Defaults()

	fileCfg, err := config.GetLiteral[runenv.FileConfig](file, environmentsModule)
	if err != nil {
		log.Error().Err(err).Msg("Invalid environments configuration, using built-in defaults")
		fileCfg = nil
	}
	if fileCfg == nil {
		return defaults, []runenv.URLPair{runenv.DefaultURLPair}, nil
	}

	merged, err := runenv.Merge(defaults, fileCfg.Config())
	if err != nil {
		return runenv.Config{}, nil, errors.Wrap(err, "unable to merge environments configuration")
	}
	return merged, fileCfg.URLPairs(), nil
}

// apply patches pe with the resolved environment and derives the internal URLs.
func (b *bootstrap) apply(pe runenv.ProcessEnvironment) error {
	written, err := runenv.Apply(b.resolver, pe)
	if err != nil {
		return err
	}

	derived, err := runenv.DeriveInternalURLs(pe, b.pairs...)
	if err != nil {
		return err
	}

	log.Info().
		Str("environment", string(b.selection.Name)).
		Bool("known", b.selection.Known).
		Int("applied", len(written)).
		Strs("derived", derived).
		Msg("Environment applied")
	return nil
}

// printEnvironment writes the governed variables of the resolved environment in dotenv
// format, including the internal URLs that would be derived.
func printEnvironment(b *bootstrap, pe runenv.ProcessEnvironment, out io.Writer) error {
	effective, err := runenv.Resolve(b.resolver, pe)
	if err != nil {
		return err
	}

	dry := runenv.NewMapEnvironment(effective)
	if _, err := runenv.DeriveInternalURLs(dry, b.pairs...); err != nil {
		return err
	}
	effective = runenv.Environment(dry.Snapshot())

	keys := b.resolver.GovernedKeys(b.selection.Name)
	for _, pair := range b.pairs {
		keys = append(keys, pair.Internal)
	}

	rendered, err := godotenv.Marshal(effective.Subset(keys...))
	if err != nil {
		return errors.Wrap(err, "unable to render environment")
	}
	_, err = io.WriteString(out, rendered+"\n")
	return err
}
