/*
Package config provides a typed, read-only accessor over the opaque
string-to-string configuration map a container is launched with. The
underlying map itself is never parsed by this package; parsing it from
the process environment is a separate, narrow concern handled by
FromEnv.

Samza-style deployments hand containers one flat key/value map built
from a hierarchy of "system.name.prop", "streams.sys.stream.prop", and
plain "task.prop" keys. View does not interpret that hierarchy; callers
compose Subtree and the typed Get* accessors to read the slice of keys
that matter to them (pkg/bootstrap does exactly this).
*/
package config

import (
	"strconv"
	"strings"
	"time"
)

// View is an immutable read-only accessor over a config map. The zero
// value is an empty, valid View.
type View struct {
	values map[string]string
}

// New wraps an existing map. The map is not copied; callers must not
// mutate it afterward.
func New(values map[string]string) View {
	if values == nil {
		values = map[string]string{}
	}
	return View{values: values}
}

// GetStringOpt returns the value for key and whether it was present.
func (v View) GetStringOpt(key string) (string, bool) {
	val, ok := v.values[key]
	return val, ok
}

// GetString returns the value for key, or def if absent.
func (v View) GetString(key, def string) string {
	if val, ok := v.values[key]; ok {
		return val
	}
	return def
}

// Require returns the value for key, or a *MissingKeyError naming key.
func (v View) Require(key string) (string, error) {
	val, ok := v.values[key]
	if !ok {
		return "", &MissingKeyError{Key: key}
	}
	return val, nil
}

// GetBool returns the value for key parsed as a bool, or def if absent
// or unparsable.
func (v View) GetBool(key string, def bool) bool {
	val, ok := v.values[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}

// GetInt returns the value for key parsed as an int, or def if absent or
// unparsable.
func (v View) GetInt(key string, def int) int {
	val, ok := v.values[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

// GetDuration returns the value for key, interpreted as milliseconds
// (matching the *.ms config keys), or def if absent or unparsable.
func (v View) GetDuration(key string, def time.Duration) time.Duration {
	val, ok := v.values[key]
	if !ok {
		return def
	}
	ms, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// Subtree returns a new View containing only keys with the given prefix,
// with the prefix stripped. Used to carve out e.g. "systems.kafka." into
// its own View before reading "samza.factory" from it.
func (v View) Subtree(prefix string) View {
	out := make(map[string]string)
	for k, val := range v.values {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = val
		}
	}
	return View{values: out}
}

// Keys returns all keys in the view, unordered.
func (v View) Keys() []string {
	keys := make([]string, 0, len(v.values))
	for k := range v.values {
		keys = append(keys, k)
	}
	return keys
}

// Len reports the number of keys in the view.
func (v View) Len() int {
	return len(v.values)
}

// NamesUnder returns the distinct first path segments under prefix, e.g.
// NamesUnder("systems.") on {"systems.kafka.samza.factory": "..."}
// returns ["kafka"]. Used to discover which systems/streams/stores are
// referenced by a config document without the caller knowing them ahead
// of time.
func (v View) NamesUnder(prefix string) []string {
	seen := make(map[string]bool)
	var names []string
	for k := range v.values {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		idx := strings.IndexByte(rest, '.')
		if idx < 0 {
			continue
		}
		name := rest[:idx]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
