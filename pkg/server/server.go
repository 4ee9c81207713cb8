// Package server runs the HTTP side of runenv: a gin engine whose routes come from
// configured controllers, started only after the environment has been resolved.
// It handles server lifecycle management, controller registration and graceful shutdown.
package server

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/animalet/runenv/internal/snapshot"
	"github.com/animalet/runenv/pkg/runenv"
	"github.com/animalet/runenv/pkg/server/middleware"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ShutdownTimeout bounds how long Shutdown waits for active connections.
const ShutdownTimeout = 30 * time.Second

// Server is the HTTP server bound to a resolved environment.
type Server struct {
	config          Config
	environment     runenv.Selection
	httpServer      *http.Server
	listener        net.Listener
	shutdownHooks   []func() error
	shutdownChannel chan os.Signal
	controllers     []IController
	mu              sync.Mutex
}

var debug = false

// SetDebug toggles debug logging and gin's debug mode.
func SetDebug(debugEnabled bool) {
	debug = debugEnabled
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		gin.SetMode(gin.DebugMode)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		gin.SetMode(gin.ReleaseMode)
	}
}

func GetDebug() bool {
	return debug
}

// NewServer creates a server for cfg. The configuration is copied so later changes by
// the caller do not leak into a running server.
func NewServer(cfg Config, environment runenv.Selection) *Server {
	return &Server{
		config:      *snapshot.MustCopy(&cfg),
		environment: environment,
	}
}

func configureControllers(c Config, environment runenv.Selection) (controllers []IController, configErrors []error) {
	instanceCounts := make(map[string]int)

	ctx := ControllerContext{
		ServerConfig: c,
		Environment:  environment,
	}

	for _, binding := range c.Controllers {
		instanceName := binding.Name
		if instanceName == "" {
			instanceCounts[binding.TypeName]++
			count := instanceCounts[binding.TypeName]
			if count == 1 {
				instanceName = binding.TypeName
			} else {
				instanceName = fmt.Sprintf("%s-%d", binding.TypeName, count)
			}
		}

		factory, exists := lookupFactory(binding.TypeName)
		if !exists {
			configErrors = append(configErrors, errors.Errorf("no factory found for controller type %q (instance: %q)", binding.TypeName, instanceName))
			continue
		}

		newController, err := newController(ctx, instanceName, binding, factory)
		if err == nil {
			controllers = append(controllers, newController)
		} else {
			configErrors = append(configErrors, errors.Wrapf(err, "error configuring controller %q of type %q", instanceName, binding.TypeName))
		}
	}
	return controllers, configErrors
}

func newController(ctx ControllerContext, name string, binding ControllerBinding, factory ControllerFactory) (newController IController, err error) {
	log.Info().Msgf("Configuring %s controller of type: %s", name, binding.TypeName)
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic during %s controller configuration, controller was not added: %v", name, r)
			newController = nil
		}
	}()
	if newController, err = factory(binding.Config, ctx); err != nil {
		return nil, err
	}
	if newController == nil {
		return nil, errors.New("factory returned no controller")
	}
	return newController, nil
}

// StartAndWaitForSignal starts the server and blocks until SIGINT or SIGTERM, then shuts
// it down gracefully.
func (s *Server) StartAndWaitForSignal() error {
	if err := s.Start(); err != nil {
		return err
	}
	return s.waitForSignal()
}

// Start builds the controllers, binds the listen address and serves in the background.
// Controllers whose configuration fails are logged and left out.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		return errors.New("server already started")
	}

	if debug {
		log.Debug().Msg("Debug mode is enabled")
		log.Debug().Msgf("Listen address: %q", s.config.Address)
		log.Debug().
			Str("environment", string(s.environment.Name)).
			Bool("known", s.environment.Known).
			Msg("Serving resolved environment")
		log.Debug().Msg("Expected controllers:")
		for _, binding := range s.config.Controllers {
			log.Debug().Msgf(" - Type: %s, Name: %s\n%s", binding.TypeName, binding.Name, string(binding.Config))
		}
	}

	return s.bootstrap()
}

func (s *Server) bootstrap() error {
	log.Info().Msg("Bootstrapping server...")

	controllers, configurationErrors := configureControllers(s.config, s.environment)
	if len(configurationErrors) > 0 {
		log.Error().Msg("Configuration errors encountered, affected controllers have been excluded from bootstrap:")
		for _, configErr := range configurationErrors {
			log.Error().Msgf(" - %v", configErr)
		}
	}

	engine := gin.New()
	if debug {
		log.Info().Msg("Running in debug mode")
		engine.Use(bodyLogMiddleware, gin.ErrorLogger())
	} else {
		log.Info().Msg("Running in release mode")
		engine.Use(gin.ErrorLoggerT(gin.ErrorTypePrivate))
	}
	if err := engine.SetTrustedProxies(s.config.TrustedProxies); err != nil {
		for _, c := range controllers {
			_ = c.Close()
		}
		return errors.Wrap(err, "invalid trusted proxies")
	}
	engine.Use(
		middleware.RequestLogger(),
		gin.Recovery(),
		middleware.SecurityHeaders(s.config.contentSecurityPolicy(), !debug),
	)

	for _, c := range controllers {
		if err := c.Bind(engine); err != nil {
			log.Error().Err(err).Msgf("Controller %T failed to bind its routes, excluded from bootstrap", c)
			if closeErr := c.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("Error closing excluded controller")
			}
			continue
		}
		s.controllers = append(s.controllers, c)
		s.addShutdownHook(c.Close)
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.runShutdownHooks()
		s.controllers = nil
		return errors.Wrapf(err, "unable to listen on %s", s.config.Address)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Msgf("Starting server on %s", listener.Addr())
	go s.serve()

	return nil
}

func (s *Server) serve() {
	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Listen error")
	}
}

// Addr returns the address the server listens on, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Handler returns the HTTP handler once the server has started.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Handler
}

func (s *Server) waitForSignal() error {
	s.shutdownChannel = make(chan os.Signal, 1)
	signal.Notify(s.shutdownChannel, syscall.SIGINT, syscall.SIGTERM)
	log.Info().Msgf("Shutdown signal received (%s)", <-s.shutdownChannel)
	signal.Stop(s.shutdownChannel)
	return s.Shutdown()
}

// AddShutdownHook registers f to run after the HTTP server stops.
func (s *Server) AddShutdownHook(f func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addShutdownHook(f)
}

func (s *Server) addShutdownHook(f func() error) {
	s.shutdownHooks = append(s.shutdownHooks, f)
}

// Shutdown gracefully shuts down the server, waiting for active connections to complete,
// then runs the shutdown hooks.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer == nil {
		return errors.New("server not started")
	}

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "forced shutdown")
	}

	s.runShutdownHooks()

	log.Info().Msg("Server exited gracefully")
	return nil
}

func (s *Server) runShutdownHooks() {
	log.Info().Msg("Executing shutdown hooks...")
	for _, hook := range s.shutdownHooks {
		if err := hook(); err != nil {
			log.Error().Msgf("Error during shutdown hook: %s", err)
		}
	}
	s.shutdownHooks = nil
}

type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func bodyLogMiddleware(c *gin.Context) {
	blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
	c.Writer = blw
	c.Next()
	log.Debug().Msgf("Response body: %s", blw.body.String())
}
