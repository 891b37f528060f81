// Package model defines the data types shared by every subsystem of the
// stream-processing container: partitions, streams, envelopes, offsets,
// and checkpoints. Nothing in this package depends on any other package
// in the module.
package model

import "fmt"

// Partition identifies one shard of an input stream. Immutable once
// assigned to the container.
type Partition int

// SystemStream is a logical stream within a named messaging system.
type SystemStream struct {
	System string
	Stream string
}

func (s SystemStream) String() string {
	return fmt.Sprintf("%s.%s", s.System, s.Stream)
}

// SSP is a SystemStreamPartition: the unit of ordering and checkpointing.
type SSP struct {
	System    string
	Stream    string
	Partition Partition
}

func (p SSP) String() string {
	return fmt.Sprintf("%s.%s.%d", p.System, p.Stream, p.Partition)
}

// SystemStream returns the (system, stream) pair this SSP belongs to.
func (p SSP) SystemStream() SystemStream {
	return SystemStream{System: p.System, Stream: p.Stream}
}

// Offset is an opaque string interpreted only by the owning messaging
// system. Monotonic per SSP by contract of the underlying system.
type Offset string

// Envelope is one inbound message: an SSP, its offset, and raw key/value
// bytes as delivered by the messaging system. Decoding into domain
// objects happens at the SerdeManager boundary (see pkg/serde), after
// which Key and Value hold decoded values instead of bytes.
type Envelope struct {
	SSP   SSP
	Offset Offset
	Key   any
	Value any
}

// OutboundEnvelope is one message a task wants to send. Destination
// names the system and stream; Partition, when set, additionally names
// one partition of that stream (e.g. a changelog write).
type OutboundEnvelope struct {
	Destination SystemStream
	// Partition is used together with Destination when non-nil, for
	// writes whose partition is meaningful, e.g. changelog writes which
	// must land on the task's own partition.
	Partition *Partition
	Key       any
	Value     any
}

// SSPValue reconstructs a full SSP for this outbound envelope when Partition
// is set; returns false otherwise.
func (o OutboundEnvelope) SSPValue() (SSP, bool) {
	if o.Partition == nil {
		return SSP{}, false
	}
	return SSP{System: o.Destination.System, Stream: o.Destination.Stream, Partition: *o.Partition}, true
}

// CheckpointKey identifies one checkpoint record: a task's partition.
type CheckpointKey struct {
	TaskName  string
	Partition Partition
}

// Checkpoint maps each SSP a task consumes to the offset of the last
// envelope fully processed for that SSP (inclusive-of-last-processed).
// Restart resumes at the offset immediately following the checkpointed
// one.
type Checkpoint map[SSP]Offset

// Clone returns an independent copy, since Checkpoint is mutated
// in-place by callers building up a commit record.
func (c Checkpoint) Clone() Checkpoint {
	out := make(Checkpoint, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
