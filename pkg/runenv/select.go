package runenv

// Selection describes which profile is active and why.
type Selection struct {
	// Name is the selected environment name.
	Name EnvironmentName
	// Selector is the variable that was consulted first.
	Selector string
	// Known reports whether Name has a profile in the configuration.
	Known bool
	// Description is the profile's description, empty when unknown.
	Description string
}

// SelectEnvironmentName returns the value of the selector variable when it is set and
// non-empty, else the value of NODE_ENV when set and non-empty, else "production".
// An empty selector means DefaultSelector. The returned name is not checked against
// any profile table.
func SelectEnvironmentName(env ProcessEnvironment, selector string) EnvironmentName {
	if selector == "" {
		selector = DefaultSelector
	}
	if value, ok := env.Lookup(selector); ok && value != "" {
		return EnvironmentName(value)
	}
	if value, ok := env.Lookup(FallbackSelector); ok && value != "" {
		return EnvironmentName(value)
	}
	return DefaultEnvironment
}

// Select picks the active profile of cfg for env.
func Select(cfg Config, env ProcessEnvironment) Selection {
	selector := cfg.selector()
	name := SelectEnvironmentName(env, selector)
	profile, known := cfg.Profile(name)
	return Selection{
		Name:        name,
		Selector:    selector,
		Known:       known,
		Description: profile.Description,
	}
}
