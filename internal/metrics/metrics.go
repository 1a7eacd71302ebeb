// Package metrics holds the pipeline's prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nd3"

// Job outcomes
const (
	OutcomeDone       = "done"
	OutcomeExtraction = "extraction_failed"
	OutcomePersist    = "persist_failed"
)

// Metrics is the set of pipeline collectors, registered on their own registry
type Metrics struct {
	registry *prometheus.Registry

	ArchivesDetected  prometheus.Counter
	ArchivesSubmitted prometheus.Counter
	QueueDepth        prometheus.Gauge
	Jobs              *prometheus.CounterVec
	JobDuration       prometheus.Histogram
	ToolInvocations   *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ArchivesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_detected_total",
			Help:      "Archives for which a stability check started.",
		}),
		ArchivesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_submitted_total",
			Help:      "Stable archives submitted to the job queue.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs waiting behind the running job.",
		}),
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished capture jobs by outcome.",
		}, []string{"outcome"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of capture jobs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		ToolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "External tool invocations by tool and result.",
		}, []string{"tool", "result"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Lifecycle events by name and delivery result.",
		}, []string{"event", "result"}),
	}

	m.registry.MustRegister(
		m.ArchivesDetected,
		m.ArchivesSubmitted,
		m.QueueDepth,
		m.Jobs,
		m.JobDuration,
		m.ToolInvocations,
		m.Notifications,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTool counts one tool invocation
func (m *Metrics) ObserveTool(tool string, err error) {
	m.ToolInvocations.WithLabelValues(tool, result(err)).Inc()
}

// ObserveJob records a finished job
func (m *Metrics) ObserveJob(outcome string, d time.Duration) {
	m.Jobs.WithLabelValues(outcome).Inc()
	m.JobDuration.Observe(d.Seconds())
}

// ObserveNotification counts one event delivery attempt
func (m *Metrics) ObserveNotification(event string, err error) {
	m.Notifications.WithLabelValues(event, result(err)).Inc()
}

// WatchBroker exports the notification broker connection state, read from
// state on every scrape
func (m *Metrics) WatchBroker(state func() (connected bool, publishErrors uint64)) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_connected",
			Help:      "1 while the MQTT notifier is connected to its broker.",
		}, func() float64 {
			if connected, _ := state(); connected {
				return 1
			}
			return 0
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_publish_errors_total",
			Help:      "MQTT publishes that failed or timed out.",
		}, func() float64 {
			_, errs := state()
			return float64(errs)
		}),
	)
}

// SetQueueDepth records the backlog length
func (m *Metrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
