// Package task implements the user-facing Task contract and the
// Instance that drives one task's lifecycle: init, per-envelope
// process, periodic window, and commit.
package task

import (
	"context"

	"github.com/cuemby/streamcontainer/pkg/coordinator"
	"github.com/cuemby/streamcontainer/pkg/model"
)

// Task is implemented by user stream-processing logic.
type Task interface {
	Init(ctx context.Context, tc Context) error
	Process(ctx context.Context, env model.Envelope, collector *Collector, coord *coordinator.Coordinator) error
	Window(ctx context.Context, collector *Collector, coord *coordinator.Coordinator) error
	Close(ctx context.Context) error
}

// Context exposes the task's static identity and store handles to
// Init; it intentionally carries no mutable state of its own.
type Context struct {
	TaskName  string
	Partition model.Partition
	Stores    StoreAccessor
}

// StoreAccessor is the subset of taskstorage.Manager a Task needs,
// narrowed to avoid importing the producer/consumer machinery into
// user-facing Task implementations.
type StoreAccessor interface {
	Store(name string) (Store, bool)
}

// Store is the byte-oriented view of a task store exposed to user code.
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	Range(start, end []byte, fn func(key, value []byte) bool) error
}

// LifecycleListener observes an Instance's lifecycle without being
// part of the core Task contract, for cross-cutting concerns like
// metrics or audit logging. Registered via task.lifecycle.listeners.
type LifecycleListener interface {
	BeforeInit(ctx context.Context, tc Context) error
	AfterProcess(ctx context.Context, env model.Envelope, processErr error)
	OnProcessError(ctx context.Context, env model.Envelope, err error)
	AfterCommit(ctx context.Context, cp model.Checkpoint, err error)
}
