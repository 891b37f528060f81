/*
Package log provides structured logging for the stream-processing
container using zerolog. A single global Logger is initialized once via
Init and every subsystem derives a child logger from it carrying
component, task, and partition context.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	taskLog := log.WithTaskName("my-task")
	sspLog := log.WithSSP("kafka", "page-views", 3)

	log.Logger.Info().Str("component", "consumer").Msg("subsystem started")

# Context loggers

  - WithComponent: tag logs with the owning subsystem (e.g. "consumer",
    "taskstorage", "runloop").
  - WithTaskName: tag logs with the container's TASK_NAME.
  - WithPartition / WithSSP: tag logs with the partition or full SSP a
    line concerns — almost every data-path log line carries one of
    these, since per-SSP ordering is the container's central invariant.

# Design

Debug is for development only; Info is the default production level.
Fatal logs then calls os.Exit(1) and is reserved for unrecoverable
startup errors, never used on the data path, where the run loop's own
shutdown sequence must run before the process exits.
*/
package log
