package bootstrap

import (
	"github.com/cuemby/streamcontainer/pkg/checkpoint"
	"github.com/cuemby/streamcontainer/pkg/chooser"
	"github.com/cuemby/streamcontainer/pkg/config"
	"github.com/cuemby/streamcontainer/pkg/registry"
	"github.com/cuemby/streamcontainer/pkg/systems/memory"
)

// RegisterBuiltins populates reg with the factories every deployment can
// rely on without writing its own plugin: the in-memory system (for
// local development and tests) and the file-backed checkpoint manager.
// cmd/streamcontainer calls this once at startup before reg is handed to
// Build; a deployment that only ever uses a real messaging system and a
// durable checkpoint store still picks these up for free.
func RegisterBuiltins(reg *registry.Registry) {
	reg.Consumers.Register("memory", memory.ConsumerFactory)
	reg.Producers.Register("memory", memory.ProducerFactory)

	reg.Checkpoints.Register("file", fileCheckpointFactory)
	reg.Choosers.Register("round-robin", roundRobinChooserFactory)
}

// fileCheckpointFactory builds a checkpoint.FileManager rooted at
// task.checkpoint.dir, defaulting to "./checkpoints" for a zero-config
// local run.
func fileCheckpointFactory(cfg config.View) (checkpoint.Manager, error) {
	dir := cfg.GetString("task.checkpoint.dir", "./checkpoints")
	return checkpoint.NewFileManager(dir)
}

// roundRobinChooserFactory builds the default Chooser; it takes no
// per-deployment configuration, but is registered by name so a CONFIG
// document can select it explicitly instead of relying on bootstrap's
// "empty chooser class means round-robin" fallback.
func roundRobinChooserFactory(cfg config.View) (chooser.Chooser, error) {
	return chooser.NewRoundRobinChooser(nil), nil
}
