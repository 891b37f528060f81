package container

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/streamcontainer/pkg/checkpoint"
	"github.com/cuemby/streamcontainer/pkg/chooser"
	"github.com/cuemby/streamcontainer/pkg/consumer"
	"github.com/cuemby/streamcontainer/pkg/coordinator"
	"github.com/cuemby/streamcontainer/pkg/model"
	"github.com/cuemby/streamcontainer/pkg/producer"
	"github.com/cuemby/streamcontainer/pkg/serde"
	"github.com/cuemby/streamcontainer/pkg/storageengine"
	"github.com/cuemby/streamcontainer/pkg/systems/memory"
	"github.com/cuemby/streamcontainer/pkg/task"
	"github.com/cuemby/streamcontainer/pkg/taskstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoTask copies every envelope's decoded value to outStream, marking
// the coordinator for commit+shutdown once it has seen want envelopes.
type echoTask struct {
	outStream model.SystemStream
	want      int
	count     int
}

func (t *echoTask) Init(ctx context.Context, tc task.Context) error { return nil }

func (t *echoTask) Process(ctx context.Context, env model.Envelope, collector *task.Collector, coord *coordinator.Coordinator) error {
	collector.Send(model.OutboundEnvelope{Destination: t.outStream, Value: env.Value})
	t.count++
	if t.count >= t.want {
		coord.RequestCommit()
		coord.RequestShutdown()
	}
	return nil
}

func (t *echoTask) Window(ctx context.Context, collector *task.Collector, coord *coordinator.Coordinator) error {
	return nil
}

func (t *echoTask) Close(ctx context.Context) error { return nil }

// recordingTask appends every envelope's decoded value to an in-memory,
// mutex-guarded slice for assertion after the container stops.
type recordingTask struct {
	mu   sync.Mutex
	vals []string
}

func (t *recordingTask) Init(ctx context.Context, tc task.Context) error { return nil }

func (t *recordingTask) Process(ctx context.Context, env model.Envelope, collector *task.Collector, coord *coordinator.Coordinator) error {
	t.mu.Lock()
	t.vals = append(t.vals, env.Value.(string))
	t.mu.Unlock()
	return nil
}

func (t *recordingTask) Window(ctx context.Context, collector *task.Collector, coord *coordinator.Coordinator) error {
	return nil
}

func (t *recordingTask) Close(ctx context.Context) error { return nil }

func (t *recordingTask) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.vals)
}

func (t *recordingTask) values() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.vals))
	copy(out, t.vals)
	return out
}

// putTask writes a fixed key/value to its "kv" store on every envelope.
type putTask struct {
	store task.Store
}

func (t *putTask) Init(ctx context.Context, tc task.Context) error {
	s, ok := tc.Stores.Store("kv")
	if !ok {
		return fmt.Errorf("store %q not found", "kv")
	}
	t.store = s
	return nil
}

func (t *putTask) Process(ctx context.Context, env model.Envelope, collector *task.Collector, coord *coordinator.Coordinator) error {
	if err := t.store.Put(ctx, []byte("k"), []byte("v")); err != nil {
		return err
	}
	coord.RequestCommit()
	coord.RequestShutdown()
	return nil
}

func (t *putTask) Window(ctx context.Context, collector *task.Collector, coord *coordinator.Coordinator) error {
	return nil
}

func (t *putTask) Close(ctx context.Context) error { return nil }

func newJSONSerde(system string) *serde.Manager {
	reg := serde.NewRegistry()
	reg.BindSystem(system, serde.JSONCodec{}, serde.JSONCodec{})
	return serde.NewManager(reg)
}

func runAndWait(t *testing.T, c *Container, timeout time.Duration) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(timeout):
		t.Fatal("container did not stop within the test timeout")
	}
}

// A single input partition, an identity task echoing to an output
// stream, no stores. The producer must receive the values in order and
// the final checkpoint must land on the last offset.
func TestScenarioIdentityTaskEchoesInOrderAndCheckpoints(t *testing.T) {
	broker := memory.NewBroker()
	inSS := model.SystemStream{System: "sys", Stream: "s"}
	outSS := model.SystemStream{System: "sys", Stream: "out"}
	ssp := model.SSP{System: "sys", Stream: "s", Partition: 0}

	for _, v := range []string{"a", "b", "c"} {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		broker.Publish(inSS, 0, nil, raw)
	}

	serdeMgr := newJSONSerde("sys")

	chsr := chooser.NewRoundRobinChooser(nil)
	cmux := consumer.NewMultiplexer(chsr)
	cmux.RegisterSystem("sys", memory.NewConsumer(broker, "sys"))
	require.NoError(t, cmux.RegisterSSP(ssp, ""))

	pmux := producer.NewMultiplexer(serdeMgr, 1, 5*time.Millisecond)
	require.NoError(t, pmux.RegisterSystem(context.Background(), "sys", memory.NewProducer(broker)))

	ckMgr, err := checkpoint.NewFileManager(t.TempDir())
	require.NoError(t, err)
	tsk := &echoTask{outStream: outSS, want: 3}
	inst := task.NewInstance("identity-task", 0, tsk, pmux, ckMgr, nil)

	c := New("identity-task", cmux, pmux, ckMgr, 50*time.Millisecond, time.Second).WithSerde(serdeMgr, false)
	c.AddBinding(inst, []model.SSP{ssp}, nil, -1, time.Hour)

	runAndWait(t, c, 5*time.Second)

	outConsumer := memory.NewConsumer(broker, "sys")
	outSSP := model.SSP{System: "sys", Stream: "out", Partition: 0}
	require.NoError(t, outConsumer.Register(outSSP, ""))
	envs, err := outConsumer.Poll(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, envs, 3)

	var got []string
	for _, env := range envs {
		var s string
		require.NoError(t, json.Unmarshal(env.Value.([]byte), &s))
		got = append(got, s)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)

	cp, err := ckMgr.ReadLast(model.CheckpointKey{TaskName: "identity-task", Partition: 0})
	require.NoError(t, err)
	assert.Equal(t, model.Offset("2"), cp[ssp])
}

// A store with a changelog. Every processed envelope must both mutate
// the local store and append to the changelog stream, and the final
// checkpoint must cover the input SSP.
func TestScenarioStorePutWritesChangelogAndLocalState(t *testing.T) {
	broker := memory.NewBroker()
	inSS := model.SystemStream{System: "sys", Stream: "s"}
	clSS := model.SystemStream{System: "sys", Stream: "kvlog"}
	ssp := model.SSP{System: "sys", Stream: "s", Partition: 0}

	kb, err := json.Marshal("k")
	require.NoError(t, err)
	vb, err := json.Marshal("v")
	require.NoError(t, err)
	broker.Publish(inSS, 0, kb, vb)

	serdeMgr := newJSONSerde("sys")

	chsr := chooser.NewRoundRobinChooser(nil)
	cmux := consumer.NewMultiplexer(chsr)
	cmux.RegisterSystem("sys", memory.NewConsumer(broker, "sys"))
	require.NoError(t, cmux.RegisterSSP(ssp, ""))

	pmux := producer.NewMultiplexer(serdeMgr, 1, 5*time.Millisecond)
	require.NoError(t, pmux.RegisterSystem(context.Background(), "sys", memory.NewProducer(broker)))

	engine, err := storageengine.OpenBoltEngine(filepath.Join(t.TempDir(), "kv", "0"))
	require.NoError(t, err)

	newRestoreConsumer := func(system string) (consumer.SystemConsumer, error) {
		return memory.NewConsumer(broker, system), nil
	}
	storageMgr := taskstorage.NewManager(
		[]taskstorage.StoreConfig{{Name: "kv", Engine: engine, ChangelogStream: clSS, Partition: 0}},
		serdeMgr, pmux, newRestoreConsumer,
	)

	ckMgr, err := checkpoint.NewFileManager(t.TempDir())
	require.NoError(t, err)
	tsk := &putTask{}
	inst := task.NewInstance("kv-task", 0, tsk, pmux, ckMgr, nil)

	c := New("kv-task", cmux, pmux, ckMgr, 50*time.Millisecond, time.Second).WithSerde(serdeMgr, false)
	c.AddBinding(inst, []model.SSP{ssp}, storageMgr, -1, time.Hour)

	runAndWait(t, c, 5*time.Second)

	clConsumer := memory.NewConsumer(broker, "sys")
	clSSP := model.SSP{System: "sys", Stream: "kvlog", Partition: 0}
	require.NoError(t, clConsumer.Register(clSSP, ""))
	envs, err := clConsumer.Poll(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, []byte("k"), envs[0].Key)
	assert.Equal(t, []byte("v"), envs[0].Value)

	got, err := engine.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	cp, err := ckMgr.ReadLast(model.CheckpointKey{TaskName: "kv-task", Partition: 0})
	require.NoError(t, err)
	assert.Equal(t, model.Offset("0"), cp[ssp])
}

// Two partitions, two input SSPs, round-robin chooser. Per-SSP strict
// order is preserved even as envelopes from the two partitions
// interleave, and each task's checkpoint only covers its own SSP.
func TestScenarioTwoPartitionsPreservePerSSPOrder(t *testing.T) {
	broker := memory.NewBroker()
	ss := model.SystemStream{System: "sys", Stream: "s"}
	ssp0 := model.SSP{System: "sys", Stream: "s", Partition: 0}
	ssp1 := model.SSP{System: "sys", Stream: "s", Partition: 1}

	for i := 0; i < 3; i++ {
		raw, err := json.Marshal(fmt.Sprintf("p0-%d", i))
		require.NoError(t, err)
		broker.Publish(ss, 0, nil, raw)
	}
	for i := 0; i < 3; i++ {
		raw, err := json.Marshal(fmt.Sprintf("p1-%d", i))
		require.NoError(t, err)
		broker.Publish(ss, 1, nil, raw)
	}

	serdeMgr := newJSONSerde("sys")

	chsr := chooser.NewRoundRobinChooser(nil)
	cmux := consumer.NewMultiplexer(chsr)
	cmux.RegisterSystem("sys", memory.NewConsumer(broker, "sys"))
	require.NoError(t, cmux.RegisterSSP(ssp0, ""))
	require.NoError(t, cmux.RegisterSSP(ssp1, ""))

	pmux := producer.NewMultiplexer(serdeMgr, 1, 5*time.Millisecond)
	require.NoError(t, pmux.RegisterSystem(context.Background(), "sys", memory.NewProducer(broker)))

	ckMgr0, err := checkpoint.NewFileManager(t.TempDir())
	require.NoError(t, err)
	ckMgr1, err := checkpoint.NewFileManager(t.TempDir())
	require.NoError(t, err)

	rec0 := &recordingTask{}
	rec1 := &recordingTask{}
	inst0 := task.NewInstance("multi-task", 0, rec0, pmux, ckMgr0, nil)
	inst1 := task.NewInstance("multi-task", 1, rec1, pmux, ckMgr1, nil)

	c := New("multi-task", cmux, pmux, ckMgr0, 50*time.Millisecond, time.Second).WithSerde(serdeMgr, false)
	c.AddBinding(inst0, []model.SSP{ssp0}, nil, -1, time.Hour)
	c.AddBinding(inst1, []model.SSP{ssp1}, nil, -1, time.Hour)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return rec0.count() >= 3 && rec1.count() >= 3
	}, 2*time.Second, 5*time.Millisecond)
	c.RequestShutdown()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("container did not stop within the test timeout")
	}

	assert.Equal(t, []string{"p0-0", "p0-1", "p0-2"}, rec0.values())
	assert.Equal(t, []string{"p1-0", "p1-1", "p1-2"}, rec1.values())

	cp0, err := ckMgr0.ReadLast(model.CheckpointKey{TaskName: "multi-task", Partition: 0})
	require.NoError(t, err)
	assert.Equal(t, model.Offset("2"), cp0[ssp0])

	cp1, err := ckMgr1.ReadLast(model.CheckpointKey{TaskName: "multi-task", Partition: 1})
	require.NoError(t, err)
	assert.Equal(t, model.Offset("2"), cp1[ssp1])
}
