package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/streamcontainer/pkg/chooser"
	"github.com/cuemby/streamcontainer/pkg/log"
	"github.com/cuemby/streamcontainer/pkg/metrics"
	"github.com/cuemby/streamcontainer/pkg/model"
)

const (
	defaultHighWatermark = 1000
	defaultLowWatermark  = 100
	defaultPollTimeout   = 100 * time.Millisecond
)

// sspQueue is a bounded FIFO of envelopes for one SSP. Enqueue blocks
// once the queue reaches HighWatermark, pausing the poller goroutine
// that owns it; Dequeue wakes any blocked Enqueue once the queue drops
// to LowWatermark or below.
type sspQueue struct {
	mu            sync.Mutex
	notFull       *sync.Cond
	buf           []model.Envelope
	highWatermark int
	lowWatermark  int
	closed        bool
}

func newSSPQueue(high, low int) *sspQueue {
	q := &sspQueue{highWatermark: high, lowWatermark: low}
	q.notFull = sync.NewCond(&q.mu)
	return q
}

func (q *sspQueue) enqueue(env model.Envelope) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) >= q.highWatermark && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return
	}
	q.buf = append(q.buf, env)
}

func (q *sspQueue) dequeue() (model.Envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return model.Envelope{}, false
	}
	env := q.buf[0]
	q.buf = q.buf[1:]
	if len(q.buf) <= q.lowWatermark {
		q.notFull.Broadcast()
	}
	return env, true
}

func (q *sspQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

func (q *sspQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notFull.Broadcast()
}

// Multiplexer owns one poller goroutine per registered system, a
// bounded queue per registered SSP, and a chooser.Chooser that picks
// the next envelope for the run loop to hand to the task.
type Multiplexer struct {
	chooser chooser.Chooser

	mu        sync.Mutex
	consumers map[string]SystemConsumer
	queues    map[model.SSP]*sspQueue

	newEnvelope chan struct{}
	stopCh      chan struct{}
	wg          sync.WaitGroup

	highWatermark int
	lowWatermark  int
	pollTimeout   time.Duration
}

// NewMultiplexer returns a Multiplexer driven by the given chooser.
func NewMultiplexer(c chooser.Chooser) *Multiplexer {
	return &Multiplexer{
		chooser:       c,
		consumers:     make(map[string]SystemConsumer),
		queues:        make(map[model.SSP]*sspQueue),
		newEnvelope:   make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		highWatermark: defaultHighWatermark,
		lowWatermark:  defaultLowWatermark,
		pollTimeout:   defaultPollTimeout,
	}
}

// SetWatermarks overrides the default per-SSP queue bounds. Must be
// called before RegisterSSP.
func (m *Multiplexer) SetWatermarks(high, low int) {
	m.highWatermark = high
	m.lowWatermark = low
}

// RegisterSystem adds a pluggable consumer under the given system name.
func (m *Multiplexer) RegisterSystem(system string, c SystemConsumer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumers[system] = c
}

// RegisterSSP registers ssp with its owning system's consumer and with
// the chooser, and allocates its bounded queue.
func (m *Multiplexer) RegisterSSP(ssp model.SSP, startOffset model.Offset) error {
	m.mu.Lock()
	c, ok := m.consumers[ssp.System]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("consumer: no system consumer registered for %q", ssp.System)
	}
	m.queues[ssp] = newSSPQueue(m.highWatermark, m.lowWatermark)
	m.mu.Unlock()

	if err := c.Register(ssp, startOffset); err != nil {
		return fmt.Errorf("consumer: register %s: %w", ssp, err)
	}
	m.chooser.Register(ssp, startOffset)
	return nil
}

// Start launches the poller goroutines, one per registered system.
func (m *Multiplexer) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for system, c := range m.consumers {
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("consumer: start system %q: %w", system, err)
		}
		m.wg.Add(1)
		go m.pollLoop(ctx, system, c)
	}
	return nil
}

// Stop signals every poller goroutine to exit and stops each consumer.
func (m *Multiplexer) Stop(ctx context.Context) error {
	close(m.stopCh)
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.queues {
		q.close()
	}
	var firstErr error
	for system, c := range m.consumers {
		if err := c.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("consumer: stop system %q: %w", system, err)
		}
	}
	return firstErr
}

func (m *Multiplexer) pollLoop(ctx context.Context, system string, c SystemConsumer) {
	defer m.wg.Done()
	logger := log.WithComponent("consumer").With().Str("system", system).Logger()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		metrics.ConsumerPollsTotal.WithLabelValues(system).Inc()
		envs, err := c.Poll(ctx, m.pollTimeout)
		if err != nil {
			logger.Error().Err(err).Msg("poll failed")
			continue
		}
		for _, env := range envs {
			m.mu.Lock()
			q, ok := m.queues[env.SSP]
			m.mu.Unlock()
			if !ok {
				logger.Warn().Str("ssp", env.SSP.String()).Msg("envelope for unregistered SSP, dropping")
				continue
			}
			q.enqueue(env)
			select {
			case m.newEnvelope <- struct{}{}:
			default:
			}
		}
	}
}

// Choose blocks until an envelope is available from the chooser or
// timeout elapses, draining newly queued envelopes into the chooser
// first. It returns ok=false on timeout with no envelope chosen.
func (m *Multiplexer) Choose(ctx context.Context, timeout time.Duration) (model.Envelope, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		m.drainQueues()
		if env, ok := m.chooser.Choose(); ok {
			if q := m.queueFor(env.SSP); q != nil {
				q.dequeue()
			}
			return env, true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return model.Envelope{}, false, nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return model.Envelope{}, false, ctx.Err()
		case <-m.newEnvelope:
			timer.Stop()
		case <-timer.C:
			return model.Envelope{}, false, nil
		}
	}
}

func (m *Multiplexer) queueFor(ssp model.SSP) *sspQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queues[ssp]
}

// drainQueues moves envelopes sitting at the head of each non-empty
// SSP queue into the chooser, without removing them from the queue —
// the queue entry is only popped once the chooser actually Choose()s
// it, so a later drain call sees the same head again and is a no-op.
func (m *Multiplexer) drainQueues() {
	m.mu.Lock()
	queues := make(map[model.SSP]*sspQueue, len(m.queues))
	for ssp, q := range m.queues {
		queues[ssp] = q
	}
	m.mu.Unlock()

	for _, q := range queues {
		q.mu.Lock()
		if len(q.buf) > 0 {
			head := q.buf[0]
			q.mu.Unlock()
			m.chooser.Update(head)
			continue
		}
		q.mu.Unlock()
	}
}

// ConsumerQueueDepths implements metrics.QueueDepthSource.
func (m *Multiplexer) ConsumerQueueDepths() map[[3]string]int {
	m.mu.Lock()
	queues := make(map[model.SSP]*sspQueue, len(m.queues))
	for ssp, q := range m.queues {
		queues[ssp] = q
	}
	m.mu.Unlock()

	out := make(map[[3]string]int, len(queues))
	for ssp, q := range queues {
		key := [3]string{ssp.System, ssp.Stream, fmt.Sprintf("%d", ssp.Partition)}
		out[key] = q.depth()
	}
	return out
}
