package producer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/streamcontainer/pkg/model"
	"github.com/cuemby/streamcontainer/pkg/serde"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	mu   sync.Mutex
	sent []model.OutboundEnvelope
}

func (f *fakeProducer) Start(ctx context.Context) error { return nil }
func (f *fakeProducer) Stop(ctx context.Context) error  { return nil }

func (f *fakeProducer) Send(ctx context.Context, out model.OutboundEnvelope, key, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, out)
	return nil
}

func (f *fakeProducer) Flush(ctx context.Context) error { return nil }

func (f *fakeProducer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestManager() *serde.Manager {
	r := serde.NewRegistry()
	r.BindSystem("kafka", serde.JSONCodec{}, serde.JSONCodec{})
	return serde.NewManager(r)
}

func TestMultiplexerSendRoutesToRegisteredSystem(t *testing.T) {
	mgr := newTestManager()
	mux := NewMultiplexer(mgr, 1, 10*time.Millisecond)
	fp := &fakeProducer{}
	require.NoError(t, mux.RegisterSystem(context.Background(), "kafka", fp))
	defer mux.Stop(context.Background())

	out := model.OutboundEnvelope{
		Destination: model.SystemStream{System: "kafka", Stream: "out"},
		Value:       map[string]any{"ok": true},
	}
	require.NoError(t, mux.Send(context.Background(), out))
	assert.Equal(t, 1, fp.count())
}

func TestMultiplexerSendUnknownSystemErrors(t *testing.T) {
	mgr := newTestManager()
	mux := NewMultiplexer(mgr, 1, 10*time.Millisecond)

	out := model.OutboundEnvelope{Destination: model.SystemStream{System: "unregistered", Stream: "out"}}
	err := mux.Send(context.Background(), out)
	require.Error(t, err)
}

func TestMultiplexerFlushCallsClientFlush(t *testing.T) {
	mgr := newTestManager()
	mux := NewMultiplexer(mgr, 10, time.Second)
	fp := &fakeProducer{}
	require.NoError(t, mux.RegisterSystem(context.Background(), "kafka", fp))
	defer mux.Stop(context.Background())

	require.NoError(t, mux.Flush(context.Background()))
}
