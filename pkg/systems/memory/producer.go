package memory

import (
	"context"

	"github.com/cuemby/streamcontainer/pkg/model"
)

// Producer is a producer.SystemProducer backed by a Broker. Send is
// synchronous and Flush is a no-op, since Publish is already durable the
// instant it returns (there is no background batching inside the
// Broker itself; batching happens one layer up in producer.Multiplexer).
type Producer struct {
	broker *Broker
}

// NewProducer returns a Producer writing to broker.
func NewProducer(broker *Broker) *Producer {
	return &Producer{broker: broker}
}

func (p *Producer) Start(ctx context.Context) error { return nil }
func (p *Producer) Stop(ctx context.Context) error  { return nil }
func (p *Producer) Flush(ctx context.Context) error { return nil }

func (p *Producer) Send(ctx context.Context, out model.OutboundEnvelope, key, value []byte) error {
	partition := model.Partition(0)
	if out.Partition != nil {
		partition = *out.Partition
	}
	p.broker.Publish(out.Destination, partition, key, value)
	return nil
}
