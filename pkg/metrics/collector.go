package metrics

import "time"

// QueueDepthSource is implemented by consumer.Multiplexer so the
// Collector can poll per-SSP queue depths. The consumer and producer
// packages also update package-level gauges themselves on the hot
// path; this is for the slower gauges that are cheaper to poll.
type QueueDepthSource interface {
	// ConsumerQueueDepths returns the current per-SSP queue depth,
	// keyed by "system/stream/partition".
	ConsumerQueueDepths() map[[3]string]int
}

// Collector periodically snapshots queue-depth gauges from a
// registered source. Most streamcontainer metrics (commit duration,
// process duration, restore duration) are observed inline by the
// component that owns the operation; Collector exists for the handful
// of gauges that are cheapest to compute by periodic poll rather than
// push, mirroring how Warren's metrics collector snapshot gauges on a
// 15s ticker instead of updating them on every manager mutation.
type Collector struct {
	source QueueDepthSource
	period time.Duration
	stopCh chan struct{}
}

// NewCollector creates a Collector polling source every period.
func NewCollector(source QueueDepthSource, period time.Duration) *Collector {
	if period <= 0 {
		period = 15 * time.Second
	}
	return &Collector{
		source: source,
		period: period,
		stopCh: make(chan struct{}),
	}
}

// Start begins the background polling goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.period)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the background polling goroutine.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.source == nil {
		return
	}
	for key, depth := range c.source.ConsumerQueueDepths() {
		ConsumerQueueDepth.WithLabelValues(key[0], key[1], key[2]).Set(float64(depth))
	}
}
