package config

import "time"

// Well-known config keys. Per-system/per-stream/per-store keys are
// templated with fmt.Sprintf at the call site since the name is data,
// not a constant (e.g. KeySystemFactoryFmt, "kafka").
const (
	KeyTaskClass              = "task.class"
	KeyTaskInputs              = "task.inputs"
	KeyTaskWindowMs            = "task.window.ms"
	KeyTaskCommitMs            = "task.commit.ms"
	KeyTaskCheckpointFactory   = "task.checkpoint.factory"
	KeyTaskChooserClass        = "task.message.chooser.class"
	KeyTaskDropDeserErrors     = "task.drop.deserialization.errors"
	KeyTaskLifecycleListeners  = "task.lifecycle.listeners"
	KeyTaskMetricsPort         = "task.metrics.port"
	KeyTaskShutdownGraceMs     = "task.shutdown.grace.ms"
	KeyTaskPollTimeoutMs       = "task.poll.timeout.ms"
	KeyTaskProducerBatchSize   = "task.producer.batch.size"
	KeyTaskProducerFlushMs     = "task.producer.flush.ms"
	KeyMetricsReporters        = "metrics.reporters"

	// Templates: fmt.Sprintf(KeySystemFactoryFmt, systemName)
	KeySystemFactoryFmt   = "systems.%s.samza.factory"
	KeySystemKeySerdeFmt  = "systems.%s.samza.key.serde"
	KeySystemMsgSerdeFmt  = "systems.%s.samza.msg.serde"

	KeyStreamKeySerdeFmt    = "streams.%s.%s.samza.key.serde"
	KeyStreamMsgSerdeFmt    = "streams.%s.%s.samza.msg.serde"
	// KeyStreamResetOffsetFmt, when true, makes bootstrap ignore the
	// stream's checkpointed offset and start from
	// KeyStreamDefaultOffsetFmt instead. It is read on every container
	// start, so the reset is not sticky across restarts.
	KeyStreamResetOffsetFmt = "streams.%s.%s.samza.reset.offset"
	KeyStreamDefaultOffsetFmt = "streams.%s.%s.samza.offset.default"

	KeySerdeClassFmt = "serializers.registry.%s.class"

	KeyStoreFactoryFmt  = "stores.%s.factory"
	KeyStoreChangelogFmt = "stores.%s.changelog"
	KeyStoreKeySerdeFmt  = "stores.%s.key.serde"
	KeyStoreMsgSerdeFmt  = "stores.%s.msg.serde"

	KeyMetricsReporterClassFmt = "metrics.reporter.%s.class"

	KeyLifecycleListenerClassFmt = "task.lifecycle.listener.%s.class"

	// OffsetEarliest / OffsetLatest are the two reset-policy values
	// recognized by KeyStreamDefaultOffsetFmt.
	OffsetEarliest = "earliest"
	OffsetLatest   = "latest"
)

// Defaults for the numeric/duration keys above.
const (
	DefaultWindowMs          = -1
	DefaultCommitMs          = 60000
	DefaultMetricsPort       = 6752
	DefaultShutdownGraceMs   = 30000
	DefaultPollTimeoutMs     = 100
	DefaultProducerBatchSize = 100
	DefaultProducerFlushMs   = 100
)

// DefaultCommitInterval and DefaultShutdownGrace are the time.Duration
// form of the millisecond defaults above, for callers that want a
// Duration without re-deriving it.
const (
	DefaultCommitInterval = DefaultCommitMs * time.Millisecond
	DefaultShutdownGrace  = DefaultShutdownGraceMs * time.Millisecond
	DefaultPollTimeout    = DefaultPollTimeoutMs * time.Millisecond
	DefaultProducerFlush  = DefaultProducerFlushMs * time.Millisecond
)
