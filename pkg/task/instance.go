package task

import (
	"context"
	"fmt"

	"github.com/cuemby/streamcontainer/pkg/checkpoint"
	"github.com/cuemby/streamcontainer/pkg/coordinator"
	"github.com/cuemby/streamcontainer/pkg/log"
	"github.com/cuemby/streamcontainer/pkg/metrics"
	"github.com/cuemby/streamcontainer/pkg/model"
	"github.com/cuemby/streamcontainer/pkg/producer"
)

// Instance drives one Task's lifecycle against its registered
// producers, checkpoint manager, and local stores. It owns no
// consumer-side state: the run loop in pkg/runloop hands it each
// envelope and periodically calls Window/Commit.
type Instance struct {
	TaskName  string
	Partition model.Partition

	task      Task
	producers *producer.Multiplexer
	checkpnt  checkpoint.Manager
	listeners []LifecycleListener

	coord     *coordinator.Coordinator
	collector Collector
	offsets   model.Checkpoint // last processed offset per SSP, across the task's whole lifetime
}

// NewInstance wires a Task to its producers, checkpoint manager, and
// optional lifecycle listeners.
func NewInstance(
	taskName string,
	partition model.Partition,
	t Task,
	producers *producer.Multiplexer,
	checkpointMgr checkpoint.Manager,
	listeners []LifecycleListener,
) *Instance {
	return &Instance{
		TaskName:  taskName,
		Partition: partition,
		task:      t,
		producers: producers,
		checkpnt:  checkpointMgr,
		listeners: listeners,
		coord:     coordinator.New(),
		offsets:   model.Checkpoint{},
	}
}

// Coordinator returns the Coordinator instance shared across this
// task's Process/Window calls.
func (i *Instance) Coordinator() *coordinator.Coordinator {
	return i.coord
}

// InitTask runs BeforeInit listeners then Task.Init.
func (i *Instance) InitTask(ctx context.Context, tc Context) error {
	for _, l := range i.listeners {
		if err := l.BeforeInit(ctx, tc); err != nil {
			return fmt.Errorf("task: lifecycle listener BeforeInit: %w", err)
		}
	}
	return i.task.Init(ctx, tc)
}

// Process delivers one envelope to the Task, sends anything the Task
// buffered via the Collector, and records the envelope's offset as
// processed for the next commit.
func (i *Instance) Process(ctx context.Context, env model.Envelope) error {
	timer := metrics.NewTimer()
	err := i.task.Process(ctx, env, &i.collector, i.coord)
	timer.ObserveDuration(metrics.ProcessDuration)

	for _, l := range i.listeners {
		if err != nil {
			l.OnProcessError(ctx, env, err)
		}
		l.AfterProcess(ctx, env, err)
	}

	if err != nil {
		metrics.ProcessErrorsTotal.Inc()
		return fmt.Errorf("task: process: %w", err)
	}

	if sendErr := i.sendPending(ctx); sendErr != nil {
		return sendErr
	}

	metrics.EnvelopesProcessedTotal.WithLabelValues(env.SSP.System, env.SSP.Stream).Inc()
	i.offsets[env.SSP] = env.Offset
	return nil
}

// SkipOffset records an envelope's offset as processed without invoking
// Task.Process, for envelopes dropped upstream (e.g. a deserialization
// error with task.drop.deserialization.errors enabled). The checkpoint
// still advances past it.
func (i *Instance) SkipOffset(ssp model.SSP, offset model.Offset) {
	i.offsets[ssp] = offset
}

// Window invokes Task.Window and sends anything the Task buffered.
func (i *Instance) Window(ctx context.Context) error {
	timer := metrics.NewTimer()
	err := i.task.Window(ctx, &i.collector, i.coord)
	timer.ObserveDuration(metrics.WindowDuration)
	if err != nil {
		return fmt.Errorf("task: window: %w", err)
	}
	return i.sendPending(ctx)
}

func (i *Instance) sendPending(ctx context.Context) error {
	for _, out := range i.collector.Drain() {
		if err := i.producers.Send(ctx, out); err != nil {
			return fmt.Errorf("task: send: %w", err)
		}
	}
	return nil
}

// Commit runs the fixed store-flush -> producer-flush ->
// checkpoint-write sequence. Any store flushing is the caller's
// responsibility via storesFlush, since Instance doesn't own the
// taskstorage.Manager directly.
func (i *Instance) Commit(ctx context.Context, storesFlush func() error) error {
	timer := metrics.NewTimer()
	err := i.commit(ctx, storesFlush)
	timer.ObserveDuration(metrics.CommitDuration)
	if err != nil {
		metrics.CommitFailuresTotal.Inc()
	}

	cp := i.offsets.Clone()
	for _, l := range i.listeners {
		l.AfterCommit(ctx, cp, err)
	}
	return err
}

func (i *Instance) commit(ctx context.Context, storesFlush func() error) error {
	if storesFlush != nil {
		if err := storesFlush(); err != nil {
			return fmt.Errorf("task: flush stores: %w", err)
		}
	}
	if err := i.producers.Flush(ctx); err != nil {
		return fmt.Errorf("task: flush producers: %w", err)
	}

	// checkpnt.Write replaces the whole per-partition record (see
	// checkpoint.FileManager), so i.offsets must always hold every SSP
	// this task has ever processed, not just the ones touched since the
	// last commit — otherwise a commit after a quiet cycle on some SSPs
	// would erase their previously-persisted offsets.
	key := model.CheckpointKey{TaskName: i.TaskName, Partition: i.Partition}
	if err := i.checkpnt.Write(key, i.offsets); err != nil {
		return fmt.Errorf("task: write checkpoint: %w", err)
	}

	log.WithTaskName(i.TaskName).Debug().Msg("commit complete")
	return nil
}

// Close runs Task.Close, giving it the chance to release resources the
// run loop doesn't know about.
func (i *Instance) Close(ctx context.Context) error {
	return i.task.Close(ctx)
}
