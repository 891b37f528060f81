// Package checkpoint defines the pluggable checkpoint-storage contract
// and a default file-backed implementation.
//
// A checkpoint's offset convention is inclusive of the last processed
// envelope: Checkpoint()[ssp] == "42" means offset 42 for ssp was the
// last envelope fully processed, and a restart resumes consumption at
// the next offset after it, not at 42 itself.
package checkpoint

import (
	"github.com/cuemby/streamcontainer/pkg/model"
)

// Manager persists and retrieves the most recent checkpoint for a task
// partition. Implementations must make Write durable before returning,
// since the run loop only advances to the next commit cycle after
// Write succeeds. Write replaces the whole record for the partition, so
// cp must always carry every SSP the task owns, not only the ones that
// changed since the previous Write.
type Manager interface {
	Write(key model.CheckpointKey, cp model.Checkpoint) error
	ReadLast(key model.CheckpointKey) (model.Checkpoint, error)
}
