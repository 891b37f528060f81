package producer

import (
	"context"
	"fmt"
	"sync"
	"time"

	microbatch "github.com/joeycumines/go-microbatch"

	"github.com/cuemby/streamcontainer/pkg/log"
	"github.com/cuemby/streamcontainer/pkg/metrics"
	"github.com/cuemby/streamcontainer/pkg/model"
	"github.com/cuemby/streamcontainer/pkg/serde"
)

// sendJob is one outbound envelope queued with its producer, carried
// through a microbatch.Batcher so a system's producer sees many
// envelopes per Send-side round trip instead of one.
type sendJob struct {
	out   model.OutboundEnvelope
	key   []byte
	value []byte
	err   error
}

type systemBatcher struct {
	system  string
	client  SystemProducer
	batcher *microbatch.Batcher[*sendJob]
}

// Multiplexer routes outbound envelopes to the producer registered for
// their destination system, batching sends, and exposes a Flush that
// calls each registered producer's own Flush.
type Multiplexer struct {
	mu       sync.RWMutex
	manager  *serde.Manager
	systems  map[string]*systemBatcher
	maxSize  int
	flushInt time.Duration
}

// NewMultiplexer returns a Multiplexer that encodes outbound envelopes
// through manager before handing them to the destination's producer.
func NewMultiplexer(manager *serde.Manager, maxBatchSize int, flushInterval time.Duration) *Multiplexer {
	return &Multiplexer{
		manager:  manager,
		systems:  make(map[string]*systemBatcher),
		maxSize:  maxBatchSize,
		flushInt: flushInterval,
	}
}

// RegisterSystem registers client as the producer for system and
// starts it, wiring a dedicated microbatch.Batcher in front of it.
func (m *Multiplexer) RegisterSystem(ctx context.Context, system string, client SystemProducer) error {
	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("producer: start system %q: %w", system, err)
	}

	sb := &systemBatcher{system: system, client: client}
	sb.batcher = microbatch.NewBatcher(&microbatch.BatcherConfig{
		MaxSize:       m.maxSize,
		FlushInterval: m.flushInt,
	}, func(ctx context.Context, jobs []*sendJob) error {
		logger := log.WithComponent("producer").With().Str("system", system).Logger()
		for _, job := range jobs {
			if err := client.Send(ctx, job.out, job.key, job.value); err != nil {
				job.err = err
				metrics.ProducerSendErrorsTotal.WithLabelValues(system).Inc()
				logger.Error().Err(err).Str("destination", job.out.Destination.String()).Msg("send failed")
			}
		}
		return nil
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.systems[system] = sb
	return nil
}

// Send encodes and routes an outbound envelope to its destination
// system's batcher and blocks until the batch holding it has been
// handed to the producer, returning the producer's Send error for it.
func (m *Multiplexer) Send(ctx context.Context, out model.OutboundEnvelope) error {
	key, value, err := m.manager.EncodeEnvelope(out)
	if err != nil {
		return fmt.Errorf("producer: encode: %w", err)
	}

	sb, err := m.batcherFor(out.Destination.System)
	if err != nil {
		return err
	}

	job := &sendJob{out: out, key: key, value: value}
	result, err := sb.batcher.Submit(ctx, job)
	if err != nil {
		return fmt.Errorf("producer: submit to %q: %w", out.Destination.System, err)
	}
	metrics.ProducerQueueDepth.WithLabelValues(out.Destination.System).Inc()
	defer metrics.ProducerQueueDepth.WithLabelValues(out.Destination.System).Dec()
	if err := result.Wait(ctx); err != nil {
		return err
	}
	return job.err
}

func (m *Multiplexer) batcherFor(system string) (*systemBatcher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sb, ok := m.systems[system]
	if !ok {
		return nil, fmt.Errorf("producer: no producer registered for system %q", system)
	}
	return sb, nil
}

// Flush calls Flush on every registered system's producer in turn and
// returns the first error. It does not wait on the batchers; Send
// already returns only after its batch has reached the producer.
func (m *Multiplexer) Flush(ctx context.Context) error {
	m.mu.RLock()
	systems := make([]*systemBatcher, 0, len(m.systems))
	for _, sb := range m.systems {
		systems = append(systems, sb)
	}
	m.mu.RUnlock()

	for _, sb := range systems {
		timer := metrics.NewTimer()
		if err := sb.client.Flush(ctx); err != nil {
			return fmt.Errorf("producer: flush system %q: %w", sb.system, err)
		}
		timer.ObserveDurationVec(metrics.ProducerFlushDuration, sb.system)
	}
	return nil
}

// Stop shuts down every registered batcher and its underlying client.
func (m *Multiplexer) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for system, sb := range m.systems {
		if err := sb.batcher.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("producer: shutdown batcher %q: %w", system, err)
		}
		if err := sb.client.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("producer: stop system %q: %w", system, err)
		}
	}
	return firstErr
}
