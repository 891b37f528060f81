// Package taskstorage implements the restore and changelog-write path
// for a task's local stores: restore replays a store's changelog stream
// into its storageengine.Engine before the task starts processing, and
// every subsequent store mutation is routed through the producer
// multiplexer to the same changelog stream so a future restore can
// reconstruct the store again.
package taskstorage

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/streamcontainer/pkg/consumer"
	"github.com/cuemby/streamcontainer/pkg/log"
	"github.com/cuemby/streamcontainer/pkg/metrics"
	"github.com/cuemby/streamcontainer/pkg/model"
	"github.com/cuemby/streamcontainer/pkg/producer"
	"github.com/cuemby/streamcontainer/pkg/serde"
	"github.com/cuemby/streamcontainer/pkg/storageengine"
)

// StoreConfig describes one local store: its engine, the changelog
// stream that backs it (if any), and its partition.
type StoreConfig struct {
	Name            string
	Engine          storageengine.Engine
	ChangelogStream model.SystemStream // zero value means no changelog
	Partition       model.Partition
}

// Manager owns every store configured for a task partition, restoring
// each from its changelog at startup and routing live Put/Delete calls
// through the producer multiplexer to keep the changelog current.
type Manager struct {
	stores   map[string]StoreConfig
	serde    *serde.Manager
	producer *producer.Multiplexer

	// newRestoreConsumer builds a dedicated SystemConsumer for restore,
	// never the shared consumer.Multiplexer — restore must be able to
	// run to exhaustion of the changelog without competing with live
	// traffic for the chooser.
	newRestoreConsumer func(system string) (consumer.SystemConsumer, error)

	// idleTimeout bounds how long restore waits for the next changelog
	// poll before concluding the changelog is exhausted.
	idleTimeout time.Duration
}

// NewManager returns a Manager for the given store configs.
func NewManager(
	stores []StoreConfig,
	serdeManager *serde.Manager,
	prod *producer.Multiplexer,
	newRestoreConsumer func(system string) (consumer.SystemConsumer, error),
) *Manager {
	m := &Manager{
		stores:             make(map[string]StoreConfig, len(stores)),
		serde:              serdeManager,
		producer:           prod,
		newRestoreConsumer: newRestoreConsumer,
		idleTimeout:        2 * time.Second,
	}
	for _, sc := range stores {
		m.stores[sc.Name] = sc
		if sc.ChangelogStream != (model.SystemStream{}) {
			serdeManager.Registry().BindStore(sc.Name, serde.RawCodec{}, serde.RawCodec{})
			serdeManager.Registry().MarkChangelog(sc.ChangelogStream, sc.Name)
		}
	}
	return m
}

// Store returns the Engine registered under name.
func (m *Manager) Store(name string) (storageengine.Engine, bool) {
	sc, ok := m.stores[name]
	if !ok {
		return nil, false
	}
	return sc.Engine, true
}

// RestoreAll runs the four-step restore protocol for every configured
// store that has a changelog stream:
//  1. open a dedicated consumer for the changelog's system
//  2. register the changelog SSP at the earliest offset
//  3. poll until the changelog is idle, applying each entry to the
//     store's engine
//  4. stop the dedicated consumer
//
// Stores without a changelog stream are skipped — they start empty,
// as is expected for non-durable/derived stores.
func (m *Manager) RestoreAll(ctx context.Context) error {
	for _, sc := range m.stores {
		if sc.ChangelogStream == (model.SystemStream{}) {
			continue
		}
		if err := m.restoreStore(ctx, sc); err != nil {
			return fmt.Errorf("taskstorage: restore store %q: %w", sc.Name, err)
		}
	}
	return nil
}

func (m *Manager) restoreStore(ctx context.Context, sc StoreConfig) error {
	logger := log.WithComponent("taskstorage").With().Str("store", sc.Name).Logger()
	timer := metrics.NewTimer()

	c, err := m.newRestoreConsumer(sc.ChangelogStream.System)
	if err != nil {
		return fmt.Errorf("create restore consumer: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start restore consumer: %w", err)
	}
	defer func() {
		if err := c.Stop(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to stop restore consumer")
		}
	}()

	ssp := model.SSP{System: sc.ChangelogStream.System, Stream: sc.ChangelogStream.Stream, Partition: sc.Partition}
	if err := c.Register(ssp, ""); err != nil {
		return fmt.Errorf("register changelog ssp: %w", err)
	}

	entries := make(chan storageengine.ChangelogEntry)
	applyErrCh := make(chan error, 1)
	go func() {
		applyErrCh <- storageengine.ApplyChangelog(sc.Engine, entries)
	}()

	var total int
	for {
		envs, err := c.Poll(ctx, m.idleTimeout)
		if err != nil {
			close(entries)
			<-applyErrCh
			return fmt.Errorf("poll changelog: %w", err)
		}
		if len(envs) == 0 {
			break
		}
		for _, env := range envs {
			decoded, err := m.serde.DecodeEnvelope(env, rawBytes(env.Key), rawBytes(env.Value))
			if err != nil {
				close(entries)
				<-applyErrCh
				return fmt.Errorf("decode changelog entry: %w", err)
			}
			entries <- storageengine.ChangelogEntry{
				Key:   rawBytes(decoded.Key),
				Value: rawBytes(decoded.Value),
			}
			total++
		}
	}
	close(entries)
	if err := <-applyErrCh; err != nil {
		return fmt.Errorf("apply changelog: %w", err)
	}

	timer.ObserveDurationVec(metrics.RestoreDuration, sc.Name)
	metrics.RestoreMessagesTotal.WithLabelValues(sc.Name).Add(float64(total))
	logger.Info().Int("messages", total).Dur("duration", timer.Duration()).Msg("store restored")
	return nil
}

// rawBytes extracts []byte from an any that is either already []byte
// or nil; changelog entries carry raw bytes end to end since the
// engine itself is byte-oriented.
func rawBytes(v any) []byte {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		return b
	}
	return nil
}

// Put writes key/value to the named store and appends the mutation to
// its changelog stream via the producer multiplexer, so a future
// restore observes it. Stores without a changelog stream only mutate
// locally.
func (m *Manager) Put(ctx context.Context, store string, key, value []byte) error {
	sc, ok := m.stores[store]
	if !ok {
		return fmt.Errorf("taskstorage: unknown store %q", store)
	}
	if err := sc.Engine.Put(key, value); err != nil {
		return fmt.Errorf("taskstorage: put: %w", err)
	}
	if sc.ChangelogStream == (model.SystemStream{}) {
		return nil
	}
	partition := sc.Partition
	return m.producer.Send(ctx, model.OutboundEnvelope{
		Destination: sc.ChangelogStream,
		Partition:   &partition,
		Key:         key,
		Value:       value,
	})
}

// Delete removes key from the named store and appends a tombstone to
// its changelog stream.
func (m *Manager) Delete(ctx context.Context, store string, key []byte) error {
	sc, ok := m.stores[store]
	if !ok {
		return fmt.Errorf("taskstorage: unknown store %q", store)
	}
	if err := sc.Engine.Delete(key); err != nil {
		return fmt.Errorf("taskstorage: delete: %w", err)
	}
	if sc.ChangelogStream == (model.SystemStream{}) {
		return nil
	}
	partition := sc.Partition
	return m.producer.Send(ctx, model.OutboundEnvelope{
		Destination: sc.ChangelogStream,
		Partition:   &partition,
		Key:         key,
		Value:       nil,
	})
}

// Flush forces every store engine's buffered writes to durable storage
// without closing them, the first step of a task commit.
func (m *Manager) Flush() error {
	for name, sc := range m.stores {
		if err := sc.Engine.Flush(); err != nil {
			return fmt.Errorf("taskstorage: flush store %q: %w", name, err)
		}
	}
	return nil
}

// Close flushes and closes every store engine.
func (m *Manager) Close() error {
	var firstErr error
	for _, sc := range m.stores {
		if err := sc.Engine.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := sc.Engine.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
