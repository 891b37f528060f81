package memory

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/streamcontainer/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerThenConsumerRoundTrips(t *testing.T) {
	broker := NewBroker()
	producer := NewProducer(broker)
	consumer := NewConsumer(broker, "memory")

	ssp := model.SSP{System: "memory", Stream: "events", Partition: 0}
	require.NoError(t, consumer.Register(ssp, ""))

	out := model.OutboundEnvelope{Destination: ssp.SystemStream()}
	require.NoError(t, producer.Send(context.Background(), out, []byte("k"), []byte("v")))

	envs, err := consumer.Poll(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, model.Offset("0"), envs[0].Offset)
	assert.Equal(t, []byte("v"), envs[0].Value)
}

func TestConsumerPollTimesOutWhenEmpty(t *testing.T) {
	broker := NewBroker()
	consumer := NewConsumer(broker, "memory")
	ssp := model.SSP{System: "memory", Stream: "events", Partition: 0}
	require.NoError(t, consumer.Register(ssp, ""))

	start := time.Now()
	envs, err := consumer.Poll(context.Background(), 30*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, envs)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestConsumerResumesAfterCheckpointedOffset(t *testing.T) {
	broker := NewBroker()
	producer := NewProducer(broker)
	ssp := model.SSP{System: "memory", Stream: "events", Partition: 0}

	for i := 0; i < 3; i++ {
		require.NoError(t, producer.Send(context.Background(), model.OutboundEnvelope{Destination: ssp.SystemStream()}, nil, []byte{byte(i)}))
	}

	consumer := NewConsumer(broker, "memory")
	require.NoError(t, consumer.Register(ssp, "1")) // resume after offset 1 => next is record 2

	envs, err := consumer.Poll(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, model.Offset("2"), envs[0].Offset)
}
