package runenv

// Validator checks an effective environment. A non-nil error aborts resolution and is
// returned to the caller unchanged.
type Validator interface {
	Validate(env Environment) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(env Environment) error

func (f ValidatorFunc) Validate(env Environment) error {
	return f(env)
}

// RequireVars returns a Validator failing with *MissingVarsError when any of names is
// undefined or empty.
func RequireVars(names ...string) Validator {
	required := append([]string(nil), names...)
	return ValidatorFunc(func(env Environment) error {
		var missing []string
		for _, name := range required {
			if value, ok := env[name]; !ok || value == "" {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return &MissingVarsError{Names: missing}
		}
		return nil
	})
}

// Validators runs each non-nil validator in order and returns the first error.
func Validators(validators ...Validator) Validator {
	chain := make([]Validator, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			chain = append(chain, v)
		}
	}
	return ValidatorFunc(func(env Environment) error {
		for _, v := range chain {
			if err := v.Validate(env); err != nil {
				return err
			}
		}
		return nil
	})
}
