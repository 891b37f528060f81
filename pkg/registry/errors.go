package registry

import "fmt"

// UnknownFactoryError is returned when a config value names a factory
// that was never registered. Resolution at subsystem-start time treats
// this as fatal: a container cannot meaningfully run with an
// unresolvable plugin.
type UnknownFactoryError struct {
	Kind string
	Name string
}

func (e *UnknownFactoryError) Error() string {
	return fmt.Sprintf("registry: no %s factory registered under name %q", e.Kind, e.Name)
}
