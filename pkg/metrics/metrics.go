package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConsumerLag reports, per system/stream/partition, how many
	// envelopes past the last-registered offset the upstream source
	// currently has available. Pluggable SystemConsumers that expose
	// this update it directly; it is otherwise left at zero.
	ConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamcontainer_consumer_lag",
			Help: "Messages behind the current offset, by system/stream/partition",
		},
		[]string{"system", "stream", "partition"},
	)

	ConsumerQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamcontainer_consumer_queue_depth",
			Help: "Envelopes buffered in the per-SSP consumer queue",
		},
		[]string{"system", "stream", "partition"},
	)

	ConsumerPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamcontainer_consumer_polls_total",
			Help: "Total poll calls issued to a system consumer",
		},
		[]string{"system"},
	)

	ProducerQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamcontainer_producer_queue_depth",
			Help: "Envelopes queued for a system producer awaiting flush",
		},
		[]string{"system"},
	)

	ProducerSendErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamcontainer_producer_send_errors_total",
			Help: "Total send errors returned by a system producer",
		},
		[]string{"system"},
	)

	ProducerFlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamcontainer_producer_flush_duration_seconds",
			Help:    "Time taken to flush a system producer's pending batch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"system"},
	)

	RestoreDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamcontainer_restore_duration_seconds",
			Help:    "Time taken to restore a store from its changelog",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"store"},
	)

	RestoreMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamcontainer_restore_messages_total",
			Help: "Total changelog messages applied during store restore",
		},
		[]string{"store"},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamcontainer_commit_duration_seconds",
			Help:    "Time taken for a task commit (store flush + producer flush + checkpoint write)",
			Buckets: prometheus.DefBuckets,
		},
	)

	CommitFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streamcontainer_commit_failures_total",
			Help: "Total commit cycles that failed and will be retried next cycle",
		},
	)

	ProcessDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamcontainer_process_duration_seconds",
			Help:    "Time taken by Task.Process per envelope",
			Buckets: prometheus.DefBuckets,
		},
	)

	ProcessErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streamcontainer_process_errors_total",
			Help: "Total envelopes for which Task.Process returned an error",
		},
	)

	WindowDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamcontainer_window_duration_seconds",
			Help:    "Time taken by Task.Window per invocation",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeserializationDropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamcontainer_deserialization_drops_total",
			Help: "Envelopes dropped after a deserialization error, by system/stream",
		},
		[]string{"system", "stream"},
	)

	EnvelopesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamcontainer_envelopes_processed_total",
			Help: "Total envelopes delivered to Task.Process, by system/stream",
		},
		[]string{"system", "stream"},
	)
)

func init() {
	prometheus.MustRegister(
		ConsumerLag,
		ConsumerQueueDepth,
		ConsumerPollsTotal,
		ProducerQueueDepth,
		ProducerSendErrorsTotal,
		ProducerFlushDuration,
		RestoreDuration,
		RestoreMessagesTotal,
		CommitDuration,
		CommitFailuresTotal,
		ProcessDuration,
		ProcessErrorsTotal,
		WindowDuration,
		DeserializationDropsTotal,
		EnvelopesProcessedTotal,
	)
}

// Handler returns the Prometheus HTTP handler, mounted at /metrics by
// pkg/runloop's Container.startMetricsServer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer, starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec
// with the given label values.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
