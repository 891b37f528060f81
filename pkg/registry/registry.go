// Package registry holds the capability registration tables that map
// a config-supplied factory name to the constructor for a pluggable
// system consumer/producer, serde, checkpoint manager, metrics
// reporter, message chooser, lifecycle listener, or task class.
//
// Resolution is fatal-on-missing: a name with no registered factory is
// a setup error, never a best-effort skip.
package registry

import (
	"fmt"
	"sync"

	"github.com/cuemby/streamcontainer/pkg/chooser"
	"github.com/cuemby/streamcontainer/pkg/checkpoint"
	"github.com/cuemby/streamcontainer/pkg/config"
	"github.com/cuemby/streamcontainer/pkg/consumer"
	"github.com/cuemby/streamcontainer/pkg/producer"
	"github.com/cuemby/streamcontainer/pkg/serde"
	"github.com/cuemby/streamcontainer/pkg/task"
)

// table is a generic name->factory map, used identically for every
// capability kind the Registry supports.
type table[F any] struct {
	mu       sync.RWMutex
	kind     string
	factories map[string]F
}

func newTable[F any](kind string) *table[F] {
	return &table[F]{kind: kind, factories: make(map[string]F)}
}

// Register makes a factory available under name, replacing any
// existing factory registered under the same name.
func (t *table[F]) Register(name string, f F) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.factories[name] = f
}

// Resolve looks up the factory registered under name.
func (t *table[F]) Resolve(name string) (F, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.factories[name]
	if !ok {
		var zero F
		return zero, &UnknownFactoryError{Kind: t.kind, Name: name}
	}
	return f, nil
}

// Names returns every currently registered factory name.
func (t *table[F]) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.factories))
	for name := range t.factories {
		out = append(out, name)
	}
	return out
}

type (
	SystemConsumerFactory func(cfg config.View) (consumer.SystemConsumer, error)
	SystemProducerFactory func(cfg config.View) (producer.SystemProducer, error)
	CodecFactory          func(cfg config.View) (serde.Codec, error)
	CheckpointFactory     func(cfg config.View) (checkpoint.Manager, error)
	ChooserFactory        func(cfg config.View) (chooser.Chooser, error)
	ReporterFactory       func(cfg config.View) (Reporter, error)
	ListenerFactory       func(cfg config.View) (Listener, error)
	TaskFactory           func(cfg config.View) (task.Task, error)
)

// Reporter is a pluggable metrics sink, e.g. one that pushes to a
// remote system instead of relying on /metrics scrape.
type Reporter interface {
	Start() error
	Stop() error
}

// Listener is the registry-resolvable form of a task lifecycle
// listener; pkg/task defines the richer interface callers implement,
// and pkg/bootstrap type-asserts each resolved Listener to it,
// rejecting one that does not implement it.
type Listener interface {
	Name() string
}

// Registry is the process-wide set of capability tables.
type Registry struct {
	Consumers   *table[SystemConsumerFactory]
	Producers   *table[SystemProducerFactory]
	Codecs      *table[CodecFactory]
	Checkpoints *table[CheckpointFactory]
	Choosers    *table[ChooserFactory]
	Reporters   *table[ReporterFactory]
	Listeners   *table[ListenerFactory]
	Tasks       *table[TaskFactory]
}

// New returns an empty Registry; callers register factories for every
// plugin kind their deployment uses before resolving any of them.
func New() *Registry {
	return &Registry{
		Consumers:   newTable[SystemConsumerFactory]("system consumer"),
		Producers:   newTable[SystemProducerFactory]("system producer"),
		Codecs:      newTable[CodecFactory]("codec"),
		Checkpoints: newTable[CheckpointFactory]("checkpoint"),
		Choosers:    newTable[ChooserFactory]("chooser"),
		Reporters:   newTable[ReporterFactory]("metrics reporter"),
		Listeners:   newTable[ListenerFactory]("lifecycle listener"),
		Tasks:       newTable[TaskFactory]("task class"),
	}
}

// ValidateNames resolves every name in names against resolve,
// collecting all UnknownFactoryErrors instead of stopping at the
// first — used by the validate-config CLI command to report every
// unresolvable factory reference in one pass.
func ValidateNames(kind string, names []string, resolve func(string) error) []error {
	var errs []error
	for _, name := range names {
		if err := resolve(name); err != nil {
			errs = append(errs, fmt.Errorf("%s %q: %w", kind, name, err))
		}
	}
	return errs
}
