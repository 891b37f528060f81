// Package memory implements an in-process SystemConsumer/SystemProducer
// pair backed by a shared Broker. It exists for tests and local
// development (the "memory" system factory in a dev CONFIG document)
// that need a pluggable messaging system without a real broker
// dependency, matching the "pluggable, contracts only" scope of this
// container: nothing in pkg/consumer or pkg/producer knows memory
// exists.
package memory

import (
	"strconv"
	"sync"

	"github.com/cuemby/streamcontainer/pkg/model"
)

// record is one logged message on a partition.
type record struct {
	key   []byte
	value []byte
}

// partitionLog is an append-only, in-memory message log for one SSP.
// Offsets are the decimal string of the record's index, so "3" means
// "the fourth record written".
type partitionLog struct {
	mu      sync.Mutex
	records []record
	cond    *sync.Cond
}

func newPartitionLog() *partitionLog {
	pl := &partitionLog{}
	pl.cond = sync.NewCond(&pl.mu)
	return pl
}

func (pl *partitionLog) append(key, value []byte) {
	pl.mu.Lock()
	pl.records = append(pl.records, record{key: key, value: value})
	pl.cond.Broadcast()
	pl.mu.Unlock()
}

// readFrom returns the records starting at index "from", inclusive,
// up to max records. Skipping past a checkpointed (last-delivered)
// offset is done by parseOffset before readFrom is called.
func (pl *partitionLog) readFrom(from int, max int) []record {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if from >= len(pl.records) {
		return nil
	}
	end := len(pl.records)
	if max > 0 && from+max < end {
		end = from + max
	}
	out := make([]record, end-from)
	copy(out, pl.records[from:end])
	return out
}

func (pl *partitionLog) len() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return len(pl.records)
}

// Broker is a shared, named-stream message store. One Broker backs one
// "system" in a CONFIG document; tests typically create one Broker and
// wire both a Consumer and Producer to it so writes from a task's
// producer are immediately visible to its own (or another task's)
// consumer, including changelog round-trips.
type Broker struct {
	mu    sync.Mutex
	logs  map[model.SystemStream]map[model.Partition]*partitionLog
}

// NewBroker returns an empty Broker.
func NewBroker() *Broker {
	return &Broker{logs: make(map[model.SystemStream]map[model.Partition]*partitionLog)}
}

func (b *Broker) logFor(ss model.SystemStream, partition model.Partition) *partitionLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	byPartition, ok := b.logs[ss]
	if !ok {
		byPartition = make(map[model.Partition]*partitionLog)
		b.logs[ss] = byPartition
	}
	pl, ok := byPartition[partition]
	if !ok {
		pl = newPartitionLog()
		byPartition[partition] = pl
	}
	return pl
}

// Publish appends one message to the given stream/partition and returns
// its assigned offset.
func (b *Broker) Publish(ss model.SystemStream, partition model.Partition, key, value []byte) model.Offset {
	pl := b.logFor(ss, partition)
	idx := pl.len()
	pl.append(key, value)
	return model.Offset(strconv.Itoa(idx))
}

// parseOffset turns the special sentinel offsets ("", "earliest",
// "latest") and a concrete numeric offset into a starting read index.
func parseOffset(offset model.Offset, logLen int) int {
	switch offset {
	case "", "earliest":
		return 0
	case "latest":
		return logLen
	}
	n, err := strconv.Atoi(string(offset))
	if err != nil {
		return 0
	}
	// Register's offset is the last-delivered (inclusive) offset per
	// pkg/checkpoint's convention; resume at the following record.
	return n + 1
}
