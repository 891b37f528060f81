// Package container implements the single-threaded cooperative run
// loop that drives a stream-processing container's whole lifecycle:
// startup (metrics server, store restore, task init, consumers), the
// process/window/send/commit loop, and shutdown. Producers are
// registered and started earlier, by pkg/bootstrap while it builds the
// Container; the checkpoint manager has no start step of its own.
//
// The loop is intentionally single-threaded: a task's Process, Window,
// and Commit all run on the same goroutine, so user code never needs to
// synchronize against itself.
package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cuemby/streamcontainer/pkg/checkpoint"
	"github.com/cuemby/streamcontainer/pkg/consumer"
	"github.com/cuemby/streamcontainer/pkg/log"
	"github.com/cuemby/streamcontainer/pkg/metrics"
	"github.com/cuemby/streamcontainer/pkg/model"
	"github.com/cuemby/streamcontainer/pkg/producer"
	"github.com/cuemby/streamcontainer/pkg/serde"
	"github.com/cuemby/streamcontainer/pkg/task"
	"github.com/cuemby/streamcontainer/pkg/taskstorage"
)

// taskBinding ties one task.Instance to the SSPs it owns, its store
// manager, and its window/commit cadence. A container normally holds
// one binding per assigned partition.
type taskBinding struct {
	instance       *task.Instance
	ssps           map[model.SSP]bool
	storage        *taskstorage.Manager
	windowInterval time.Duration
	commitInterval time.Duration
	lastWindow     time.Time
	lastCommit     time.Time
}

func (b *taskBinding) owns(ssp model.SSP) bool {
	return b.ssps[ssp]
}

// Container wires the shared consumer/producer multiplexers and
// checkpoint manager to one or more task bindings and runs the
// process/window/send/commit loop.
type Container struct {
	TaskName string

	consumers   *consumer.Multiplexer
	producers   *producer.Multiplexer
	checkpoints checkpoint.Manager
	bindings    []*taskBinding

	chooseTimeout time.Duration
	shutdownGrace time.Duration

	serdeManager    *serde.Manager
	dropDeserErrors bool

	metricsAddr string
	metricsSrv  *http.Server
	qdCollector *metrics.Collector

	// externalShutdown is set by RequestShutdown, for shutdown triggers
	// that don't come from inside a task's Process/Window call (an OS
	// signal, most commonly). Separate from each binding's own
	// Coordinator since a signal targets the whole container, not one
	// task's next cycle.
	externalShutdown atomic.Bool
}

// New returns an empty Container. Call AddBinding for every assigned
// partition, then Run.
func New(taskName string, consumers *consumer.Multiplexer, producers *producer.Multiplexer, checkpoints checkpoint.Manager, chooseTimeout, shutdownGrace time.Duration) *Container {
	return &Container{
		TaskName:      taskName,
		consumers:     consumers,
		producers:     producers,
		checkpoints:   checkpoints,
		chooseTimeout: chooseTimeout,
		shutdownGrace: shutdownGrace,
	}
}

// WithMetricsAddr enables the diagnostic /metrics and /debug/pprof HTTP
// listener at addr (e.g. ":6752") for the container's lifetime.
func (c *Container) WithMetricsAddr(addr string) *Container {
	c.metricsAddr = addr
	return c
}

// WithSerde wires the envelope decode boundary. dropDeserErrors mirrors
// task.drop.deserialization.errors: when true, an envelope that fails
// to decode is dropped and its offset is still checkpointed; when
// false, a decode error is fatal.
func (c *Container) WithSerde(manager *serde.Manager, dropDeserErrors bool) *Container {
	c.serdeManager = manager
	c.dropDeserErrors = dropDeserErrors
	return c
}

// AddBinding registers one task instance for the given partition's
// input SSPs, its store manager (may be nil if the task has no local
// stores), and its window/commit cadence (windowInterval < 0 disables
// windowing).
func (c *Container) AddBinding(instance *task.Instance, ssps []model.SSP, storage *taskstorage.Manager, windowInterval, commitInterval time.Duration) {
	set := make(map[model.SSP]bool, len(ssps))
	for _, ssp := range ssps {
		set[ssp] = true
	}
	now := time.Now()
	c.bindings = append(c.bindings, &taskBinding{
		instance:       instance,
		ssps:           set,
		storage:        storage,
		windowInterval: windowInterval,
		commitInterval: commitInterval,
		lastWindow:     now,
		lastCommit:     now,
	})
}

func (c *Container) bindingFor(ssp model.SSP) *taskBinding {
	for _, b := range c.bindings {
		if b.owns(ssp) {
			return b
		}
	}
	return nil
}

// Run executes the full container lifecycle: start, loop until
// shutdown is requested or ctx is cancelled, then a bounded-grace
// shutdown. It returns the first fatal error encountered, if any.
func (c *Container) Run(ctx context.Context) error {
	logger := log.WithTaskName(c.TaskName)

	if err := c.start(ctx); err != nil {
		return fmt.Errorf("container: start: %w", err)
	}
	defer c.shutdown()

	logger.Info().Msg("container started")
	for {
		if ctx.Err() != nil {
			return nil
		}

		env, ok, err := c.consumers.Choose(ctx, c.chooseTimeout)
		if err != nil {
			return fmt.Errorf("container: choose: %w", err)
		}

		if ok {
			if err := c.processEnvelope(ctx, env); err != nil {
				return fmt.Errorf("container: %w", err)
			}
		}

		if err := c.windowAll(ctx); err != nil {
			return fmt.Errorf("container: window: %w", err)
		}
		if err := c.commitDue(ctx); err != nil {
			return fmt.Errorf("container: commit: %w", err)
		}

		if c.shutdownRequested() {
			logger.Info().Msg("shutdown requested, honored after send+commit")
			return nil
		}
	}
}

// processEnvelope decodes env's raw key/value (if a serde manager is
// wired) and delivers it to the task instance that owns its SSP. A
// returned Task.Process error is fatal, propagated through the run
// loop's deferred shutdown.
func (c *Container) processEnvelope(ctx context.Context, env model.Envelope) error {
	b := c.bindingFor(env.SSP)
	if b == nil {
		log.WithTaskName(c.TaskName).Warn().Str("ssp", env.SSP.String()).Msg("envelope for unbound SSP, dropping")
		return nil
	}

	if c.serdeManager != nil {
		decoded, err := c.serdeManager.DecodeEnvelope(env, rawBytes(env.Key), rawBytes(env.Value))
		if err != nil {
			var decodeErr *serde.DecodeError
			if !errors.As(err, &decodeErr) || !c.dropDeserErrors {
				return fmt.Errorf("decode %s: %w", env.SSP, err)
			}
			metrics.DeserializationDropsTotal.WithLabelValues(env.SSP.System, env.SSP.Stream).Inc()
			log.WithTaskName(c.TaskName).Warn().Err(err).Str("ssp", env.SSP.String()).Msg("dropping envelope after decode error")
			b.instance.SkipOffset(env.SSP, env.Offset)
			return nil
		}
		env = decoded
	}

	if err := b.instance.Process(ctx, env); err != nil {
		return fmt.Errorf("process %s: %w", env.SSP, err)
	}
	return nil
}

func rawBytes(v any) []byte {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		return b
	}
	return nil
}


func (c *Container) windowAll(ctx context.Context) error {
	now := time.Now()
	for _, b := range c.bindings {
		if b.windowInterval < 0 {
			continue
		}
		if now.Sub(b.lastWindow) < b.windowInterval {
			continue
		}
		if err := b.instance.Window(ctx); err != nil {
			return err
		}
		b.lastWindow = now
	}
	return nil
}

func (c *Container) commitDue(ctx context.Context) error {
	now := time.Now()
	shuttingDown := c.externalShutdown.Load()
	for _, b := range c.bindings {
		coord := b.instance.Coordinator()
		due := coord.CommitRequested() || now.Sub(b.lastCommit) >= b.commitInterval

		// A shutdown must always be honored with a final commit.
		if !due && !shuttingDown && !coord.ShutdownRequested() {
			continue
		}

		var flush func() error
		if b.storage != nil {
			flush = b.storage.Flush
		}
		if err := b.instance.Commit(ctx, flush); err != nil {
			// Commit failures are logged and retried next cycle, never fatal.
			log.WithTaskName(c.TaskName).Error().Err(err).Msg("commit failed, will retry")
			continue
		}
		b.lastCommit = now
	}
	return nil
}

// RequestShutdown asks the run loop to drain and exit after the current
// iteration's send+commit complete, for triggers external to any task's
// own Process/Window call (e.g. cmd/streamcontainer's signal handler).
func (c *Container) RequestShutdown() {
	c.externalShutdown.Store(true)
}

func (c *Container) shutdownRequested() bool {
	if c.externalShutdown.Load() {
		return true
	}
	for _, b := range c.bindings {
		if b.instance.Coordinator().ShutdownRequested() {
			return true
		}
	}
	return false
}

func (c *Container) start(ctx context.Context) error {
	c.startMetricsServer()
	metrics.RegisterComponent("storage", false, "restoring")

	for _, b := range c.bindings {
		if b.storage == nil {
			continue
		}
		if err := b.storage.RestoreAll(ctx); err != nil {
			return fmt.Errorf("restore stores: %w", err)
		}
	}
	metrics.RegisterComponent("storage", true, "restored")

	for _, b := range c.bindings {
		tc := task.Context{TaskName: c.TaskName, Partition: b.instance.Partition}
		if b.storage != nil {
			tc.Stores = storeAccessor{mgr: b.storage}
		}
		if err := b.instance.InitTask(ctx, tc); err != nil {
			return fmt.Errorf("init task: %w", err)
		}
	}

	if err := c.consumers.Start(ctx); err != nil {
		return fmt.Errorf("start consumers: %w", err)
	}
	metrics.RegisterComponent("consumer", true, "started")
	metrics.RegisterComponent("producer", true, "started")

	c.qdCollector = metrics.NewCollector(c.consumers, 15*time.Second)
	c.qdCollector.Start()

	return nil
}

func (c *Container) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), c.shutdownGrace)
	defer cancel()
	logger := log.WithTaskName(c.TaskName)

	if c.qdCollector != nil {
		c.qdCollector.Stop()
	}
	metrics.RegisterComponent("consumer", false, "stopping")
	if err := c.consumers.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("error stopping consumers")
	}
	metrics.RegisterComponent("producer", false, "stopping")
	if err := c.producers.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("error stopping producers")
	}
	for _, b := range c.bindings {
		if err := b.instance.Close(ctx); err != nil {
			logger.Error().Err(err).Msg("error closing task")
		}
		if b.storage != nil {
			if err := b.storage.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing stores")
			}
		}
	}
	c.stopMetricsServer()
	logger.Info().Msg("container stopped")
}

func (c *Container) startMetricsServer() {
	if c.metricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	registerPprof(mux)

	c.metricsSrv = &http.Server{Addr: c.metricsAddr, Handler: mux}
	go func() {
		if err := c.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithTaskName(c.TaskName).Error().Err(err).Msg("metrics server exited")
		}
	}()
}

func (c *Container) stopMetricsServer() {
	if c.metricsSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.metricsSrv.Shutdown(ctx)
}
