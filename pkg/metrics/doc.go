/*
Package metrics provides Prometheus metrics collection and exposition
for the stream-processing container.

All metrics are package-level variables registered at init() against
the default Prometheus registry, and exposed over HTTP for scraping.

# Metrics catalog

Consumer path:

  - streamcontainer_consumer_lag{system,stream,partition} (gauge)
  - streamcontainer_consumer_queue_depth{system,stream,partition} (gauge)
  - streamcontainer_consumer_polls_total{system} (counter)

Producer path:

  - streamcontainer_producer_queue_depth{system} (gauge)
  - streamcontainer_producer_send_errors_total{system} (counter)
  - streamcontainer_producer_flush_duration_seconds{system} (histogram)

Storage and commit:

  - streamcontainer_restore_duration_seconds{store} (histogram)
  - streamcontainer_restore_messages_total{store} (counter)
  - streamcontainer_commit_duration_seconds (histogram)
  - streamcontainer_commit_failures_total (counter)

Task lifecycle:

  - streamcontainer_process_duration_seconds (histogram)
  - streamcontainer_process_errors_total (counter)
  - streamcontainer_window_duration_seconds (histogram)
  - streamcontainer_deserialization_drops_total{system,stream} (counter)
  - streamcontainer_envelopes_processed_total{system,stream} (counter)

# Usage

	timer := metrics.NewTimer()
	// ... flush a producer ...
	timer.ObserveDurationVec(metrics.ProducerFlushDuration, systemName)

	http.Handle("/metrics", metrics.Handler())

# Health

RegisterComponent/UpdateComponent track a component's health by name
("consumer", "producer", "storage"); GetReadiness treats those three as
critical and reports not_ready until all are registered and healthy.
HealthHandler, ReadyHandler, and LivenessHandler adapt this state into
the container's /health, /ready, and /live HTTP endpoints.

# Label discipline

Labels are bounded to system/stream/store/partition names, never
envelope keys or offsets — unbounded label values would make the
cardinality of these series grow with traffic instead of with topology.
*/
package metrics
