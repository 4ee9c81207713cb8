package server

import (
	"sync"

	"github.com/animalet/runenv/pkg/config"
	"github.com/animalet/runenv/pkg/runenv"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// IController is a pluggable set of routes served next to the resolved environment.
type IController interface {
	// Bind registers the controller's routes with the engine.
	Bind(engine *gin.Engine) error

	// Close releases whatever the controller holds. It runs on shutdown.
	Close() error
}

// ControllerContext provides runtime dependencies to controllers when they are built.
type ControllerContext struct {
	// ServerConfig is the server module the controller is bound in.
	ServerConfig Config

	// Environment is the environment the process resolved at startup.
	Environment runenv.Selection
}

// ControllerFactory builds a controller from its raw module configuration.
type ControllerFactory func(controllerConfig config.ModuleRawConfig, ctx ControllerContext) (IController, error)

// ControllerBinding represents the configuration for a single controller.
type ControllerBinding struct {
	Config   config.ModuleRawConfig `yaml:"config"`
	TypeName string                 `yaml:"type"`
	Name     string                 `yaml:"name,omitempty"`
}

type ControllerBindings []ControllerBinding

func (c ControllerBindings) Validate() error {
	var validationErrors []error
	for i, binding := range c {
		if err := binding.Validate(); err != nil {
			validationErrors = append(validationErrors, errors.Wrapf(err, "controller binding at index %d is invalid", i))
		}
	}

	if len(validationErrors) > 0 {
		return errors.Errorf("configuration validation failed: %v", validationErrors)
	}

	return nil
}

// Validate checks that the binding names a controller type and carries a configuration.
// Name is optional and generated from the type when empty.
func (c ControllerBinding) Validate() error {
	if c.TypeName == "" {
		return errors.New("controller type must be set and non-empty")
	}
	if c.Config == nil {
		return errors.New("controller config must be provided")
	}
	return nil
}

var (
	registryMu         sync.RWMutex
	controllerRegistry = make(map[string]ControllerFactory)
)

// AddControllerType registers a factory under typeName, replacing any previous one.
func AddControllerType(typeName string, factory ControllerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	log.Debug().Msgf("Registering controller type %q", typeName)
	if _, exists := controllerRegistry[typeName]; exists {
		log.Warn().Msgf("Controller type %q is already registered, overriding", typeName)
	}
	controllerRegistry[typeName] = factory
}

// RegisterController registers a controller type whose configuration decodes into T.
// The configuration is expanded and validated before build runs.
func RegisterController[T config.Validatable](typeName string, build func(cfg *T, ctx ControllerContext) (IController, error)) {
	AddControllerType(typeName, func(raw config.ModuleRawConfig, ctx ControllerContext) (IController, error) {
		cfg, err := config.Unmarshal[T](raw)
		if err != nil {
			return nil, err
		}
		if cfg == nil {
			return nil, errors.New("controller config must be provided")
		}
		return build(cfg, ctx)
	})
}

// IsControllerTypeRegistered reports whether typeName has a factory.
func IsControllerTypeRegistered(typeName string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := controllerRegistry[typeName]
	return ok
}

func lookupFactory(typeName string) (ControllerFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := controllerRegistry[typeName]
	return factory, ok
}
