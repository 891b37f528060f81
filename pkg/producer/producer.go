// Package producer defines the SystemProducer plugin contract and the
// Multiplexer that batches outbound envelopes per destination system
// before handing them to the plugin's Send.
package producer

import (
	"context"

	"github.com/cuemby/streamcontainer/pkg/model"
)

// SystemProducer is implemented by a pluggable messaging-system client
// responsible for actually writing encoded envelopes to a destination
// system. Send enqueues on the client; it need not be durable until
// Flush returns.
type SystemProducer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, out model.OutboundEnvelope, key, value []byte) error
	Flush(ctx context.Context) error
}
