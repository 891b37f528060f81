package task

import "github.com/cuemby/streamcontainer/pkg/model"

// Collector buffers outbound envelopes a Task emits during Process or
// Window, for the Instance to send after the user callback returns.
// It is reused across calls (reset, not reallocated) since a task may
// be invoked many thousands of times per second.
type Collector struct {
	pending []model.OutboundEnvelope
}

// Send buffers an outbound envelope for delivery after the current
// Process/Window call returns.
func (c *Collector) Send(out model.OutboundEnvelope) {
	c.pending = append(c.pending, out)
}

// Drain returns the buffered envelopes and resets the Collector for
// reuse on the next call. The returned slice shares the Collector's
// buffer and is valid only until the next Send.
func (c *Collector) Drain() []model.OutboundEnvelope {
	out := c.pending
	c.pending = c.pending[:0]
	return out
}
