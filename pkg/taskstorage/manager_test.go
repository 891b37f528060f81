package taskstorage

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/streamcontainer/pkg/consumer"
	"github.com/cuemby/streamcontainer/pkg/model"
	"github.com/cuemby/streamcontainer/pkg/producer"
	"github.com/cuemby/streamcontainer/pkg/serde"
	"github.com/cuemby/streamcontainer/pkg/storageengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memEngine struct {
	data map[string][]byte
}

func newMemEngine() *memEngine { return &memEngine{data: make(map[string][]byte)} }

func (e *memEngine) Get(key []byte) ([]byte, error) { return e.data[string(key)], nil }
func (e *memEngine) Put(key, value []byte) error {
	e.data[string(key)] = value
	return nil
}
func (e *memEngine) Delete(key []byte) error {
	delete(e.data, string(key))
	return nil
}
func (e *memEngine) Range(start, end []byte, fn func(key, value []byte) bool) error { return nil }
func (e *memEngine) Flush() error                                                  { return nil }
func (e *memEngine) Close() error                                                  { return nil }

var _ storageengine.Engine = (*memEngine)(nil)

// fakeRestoreConsumer hands back one batch of envelopes then empty.
type fakeRestoreConsumer struct {
	envs   []model.Envelope
	served bool
}

func (f *fakeRestoreConsumer) Start(ctx context.Context) error { return nil }
func (f *fakeRestoreConsumer) Stop(ctx context.Context) error  { return nil }
func (f *fakeRestoreConsumer) Register(ssp model.SSP, startOffset model.Offset) error {
	return nil
}
func (f *fakeRestoreConsumer) Poll(ctx context.Context, timeout time.Duration) ([]model.Envelope, error) {
	if f.served {
		return nil, nil
	}
	f.served = true
	return f.envs, nil
}

func TestRestoreAllAppliesChangelogEntries(t *testing.T) {
	engine := newMemEngine()
	changelog := model.SystemStream{System: "kafka", Stream: "my-store-changelog"}

	r := serde.NewRegistry()
	serdeManager := serde.NewManager(r)

	fc := &fakeRestoreConsumer{envs: []model.Envelope{
		{SSP: model.SSP{System: "kafka", Stream: "my-store-changelog", Partition: 0}, Key: []byte("a"), Value: []byte("1")},
	}}

	mgr := NewManager(
		[]StoreConfig{{Name: "my-store", Engine: engine, ChangelogStream: changelog, Partition: 0}},
		serdeManager,
		producer.NewMultiplexer(serdeManager, 1, time.Millisecond),
		func(system string) (consumer.SystemConsumer, error) { return fc, nil },
	)

	require.NoError(t, mgr.RestoreAll(context.Background()))

	v, err := engine.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
}

func TestStoreWithoutChangelogSkipsRestore(t *testing.T) {
	engine := newMemEngine()
	r := serde.NewRegistry()
	serdeManager := serde.NewManager(r)

	mgr := NewManager(
		[]StoreConfig{{Name: "local-only", Engine: engine}},
		serdeManager,
		producer.NewMultiplexer(serdeManager, 1, time.Millisecond),
		func(system string) (consumer.SystemConsumer, error) {
			t.Fatal("should not be called for a store without a changelog")
			return nil, nil
		},
	)

	require.NoError(t, mgr.RestoreAll(context.Background()))
}
