package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/streamcontainer/pkg/model"
)

type cursor struct {
	log  *partitionLog
	next int
}

// Consumer is a consumer.SystemConsumer backed by a Broker. One Consumer
// polls every SSP registered on it; Poll returns as soon as any
// registered SSP has records available, or after timeout with an empty
// slice.
type Consumer struct {
	broker  *Broker
	system  string
	mu      sync.Mutex
	cursors map[model.SSP]*cursor
}

// NewConsumer returns a Consumer reading from broker for the given
// system name. Register does not check an SSP's system against it.
func NewConsumer(broker *Broker, system string) *Consumer {
	return &Consumer{broker: broker, system: system, cursors: make(map[model.SSP]*cursor)}
}

func (c *Consumer) Start(ctx context.Context) error { return nil }
func (c *Consumer) Stop(ctx context.Context) error  { return nil }

// Register begins consumption of ssp at the offset immediately after
// startOffset, per the inclusive-of-last-processed checkpoint
// convention shared across this container.
func (c *Consumer) Register(ssp model.SSP, startOffset model.Offset) error {
	ss := ssp.SystemStream()
	pl := c.broker.logFor(ss, ssp.Partition)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursors[ssp] = &cursor{log: pl, next: parseOffset(startOffset, pl.len())}
	return nil
}

// Poll blocks up to timeout for any registered SSP to have new records,
// returning every available record across all SSPs it owns in one
// batch once woken (or on timeout, whatever arrived).
func (c *Consumer) Poll(ctx context.Context, timeout time.Duration) ([]model.Envelope, error) {
	deadline := time.Now().Add(timeout)
	for {
		if envs := c.drain(); len(envs) > 0 {
			return envs, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(minDuration(remaining, 10*time.Millisecond)):
		}
	}
}

func (c *Consumer) drain() []model.Envelope {
	c.mu.Lock()
	ssps := make([]model.SSP, 0, len(c.cursors))
	for ssp := range c.cursors {
		ssps = append(ssps, ssp)
	}
	c.mu.Unlock()

	var out []model.Envelope
	for _, ssp := range ssps {
		c.mu.Lock()
		cur, ok := c.cursors[ssp]
		c.mu.Unlock()
		if !ok {
			continue
		}
		records := cur.log.readFrom(cur.next, 0)
		if len(records) == 0 {
			continue
		}
		for idx, rec := range records {
			out = append(out, model.Envelope{
				SSP:    ssp,
				Offset: model.Offset(strconv.Itoa(cur.next + idx)),
				Key:    rec.key,
				Value:  rec.value,
			})
		}
		c.mu.Lock()
		cur.next += len(records)
		c.mu.Unlock()
	}
	return out
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
