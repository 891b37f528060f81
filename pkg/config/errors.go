package config

import "fmt"

// MissingKeyError is returned by View.Require when a required key is
// absent, and by FromEnv when a required environment variable is. The
// Get* accessors never return it. Setup code treats this as fatal and
// names the offending key verbatim.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("config: missing required key %q", e.Key)
}

// InvalidValueError describes a key that is present but cannot be
// parsed as the requested type. No accessor in this package returns
// it: the typed Get* accessors fall back to their default instead.
type InvalidValueError struct {
	Key   string
	Value string
	Want  string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("config: key %q has value %q, want %s", e.Key, e.Value, e.Want)
}
