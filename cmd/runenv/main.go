// Command runenv resolves the process environment for the selected deployment target,
// applies it and then serves the application behind the configured controllers.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/animalet/runenv/pkg/controller"
	"github.com/animalet/runenv/pkg/runenv"
	"github.com/animalet/runenv/pkg/server"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Version information set during build
var (
	version = "dev"
)

const (
	exitSuccess = 0
	exitError   = 1
)

type options struct {
	configPath  string
	debug       bool
	showVersion bool
	showHelp    bool
	print       bool
	check       bool
}

func main() {
	os.Exit(runWithArgs(os.Args[1:]))
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("runenv", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug mode")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")
	fs.BoolVar(&opts.print, "print", false, "Print the resolved environment in dotenv format and exit")
	fs.BoolVar(&opts.check, "check", false, "Resolve and validate the environment, then exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			opts.showHelp = true
			return opts, nil
		}
		return nil, err
	}
	return opts, nil
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `Usage: runenv [options]

Resolves the environment for the target named by APP_ENV (or NODE_ENV, default
"production"), applies RUNTIME_<NAME> overrides and starts the server.

Options:
  --config <path>  Configuration file (default: RUNENV_CONFIG, then runenv.yaml,
                   runenv.yml or runenv.toml in the working directory)
  --debug          Enable debug logging (also DEBUG=true)
  --print          Print the resolved variables in dotenv format and exit
  --check          Resolve and validate the environment, then exit
  --version        Show version information
  --help           Show this help

Environment:
  RUNENV_CONFIG    Configuration file path
  RUNENV_DOTENV    Dotenv file loaded before resolution (default: .env)
  DEBUG            "true" enables debug logging

https://github.com/animalet/runenv
`)
}

func setupLogging(debug bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		NoColor:    false,
		TimeFormat: "2006-01-02 15:04:05",
	})
	server.SetDebug(debug)
}

func registerControllers() {
	server.RegisterController("bundle", controller.NewBundleController)
	server.RegisterController("proxy", controller.NewProxyController)
	server.RegisterController("environment", controller.NewEnvironmentController)
}

func runWithArgs(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		printUsage(os.Stderr)
		return exitError
	}

	if opts.showHelp {
		printUsage(os.Stdout)
		return exitSuccess
	}

	if opts.showVersion {
		_, _ = fmt.Printf("runenv version %s\n", version)
		return exitSuccess
	}

	return run(opts, runenv.OS(), os.Stdout)
}

// run resolves and applies the environment, then serves until a signal arrives.
func run(opts *options, env runenv.ProcessEnvironment, out io.Writer) int {
	settings, err := readSettings(env)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
	setupLogging(opts.debug || settings.debugEnabled())

	boot, err := prepare(opts, settings, env)
	if err != nil {
		log.WithLevel(zerolog.FatalLevel).Err(err).Msg("Unable to resolve environment")
		return exitError
	}

	switch {
	case opts.print:
		if err := printEnvironment(boot, env, out); err != nil {
			log.WithLevel(zerolog.FatalLevel).Err(err).Msg("Unable to print environment")
			return exitError
		}
		return exitSuccess
	case opts.check:
		if _, err := runenv.Resolve(boot.resolver, env); err != nil {
			log.WithLevel(zerolog.FatalLevel).Err(err).Msg("Environment is invalid")
			return exitError
		}
		log.Info().Str("environment", string(boot.selection.Name)).Msg("Environment is valid")
		return exitSuccess
	}

	if err := boot.apply(env); err != nil {
		log.WithLevel(zerolog.FatalLevel).Err(err).Msg("Unable to apply environment")
		return exitError
	}

	registerControllers()
	srv, err := newServer(boot)
	if err != nil {
		log.WithLevel(zerolog.FatalLevel).Err(err).Msg("Unable to configure server")
		return exitError
	}

	if err := srv.StartAndWaitForSignal(); err != nil {
		log.WithLevel(zerolog.FatalLevel).Err(err).Msg("Server error")
		return exitError
	}
	return exitSuccess
}
