// Package consumer defines the SystemConsumer plugin contract and the
// Multiplexer that drives a pool of per-system pollers into a single
// chooser-ordered envelope stream for the run loop.
package consumer

import (
	"context"
	"time"

	"github.com/cuemby/streamcontainer/pkg/model"
)

// SystemConsumer is implemented by a pluggable messaging-system client.
// Start/Stop bracket the consumer's lifetime; Register tells the
// consumer to begin fetching a partition from a starting offset; Poll
// blocks for up to timeout waiting for new envelopes, returning
// whatever is available (possibly none) without error on timeout.
type SystemConsumer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Register(ssp model.SSP, startOffset model.Offset) error
	Poll(ctx context.Context, timeout time.Duration) ([]model.Envelope, error)
}
