package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives service events
type Recorder interface {
	RecordRun(status string, duration time.Duration)
	SetPlacement(seats, fallback, waitlisted, unplaced int)
	RecordSubmission(result string)
	RecordNotification(kind string, sent bool)
}

// Nop discards every event
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordRun(string, time.Duration) {}
func (Nop) SetPlacement(int, int, int, int) {}
func (Nop) RecordSubmission(string) {}
func (Nop) RecordNotification(string, bool) {}

// Collector records service events into Prometheus
type Collector struct {
	gatherer prometheus.Gatherer

	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	placement     *prometheus.GaugeVec
	submissions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates and registers collectors under namespace.
// A nil registry gets a private one so tests can build many collectors.
func NewCollector(reg *prometheus.Registry, namespace string) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "clubs"
	}

	c := &Collector{
		gatherer: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "runs_total",
			Help:      "Assignment runs by outcome (recomputed, skipped, failed).",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "run_duration_seconds",
			Help:      "Wall time of assignment runs including persistence.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		placement: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "students",
			Help:      "Students per placement kind in the latest run.",
		}, []string{"kind"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "submissions_total",
			Help:      "Registration attempts by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "messages_total",
			Help:      "Notification attempts by kind and result.",
		}, []string{"kind", "result"}),
	}

	reg.MustRegister(c.runs, c.runDuration, c.placement, c.submissions, c.notifications)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return c
}

// RecordRun counts a run and observes its duration
func (c *Collector) RecordRun(status string, duration time.Duration) {
	c.runs.WithLabelValues(status).Inc()
	c.runDuration.Observe(duration.Seconds())
}

// SetPlacement publishes the counts of the latest persisted run
func (c *Collector) SetPlacement(seats, fallback, waitlisted, unplaced int) {
	c.placement.WithLabelValues("ranked").Set(float64(seats - fallback))
	c.placement.WithLabelValues("fallback").Set(float64(fallback))
	c.placement.WithLabelValues("waitlisted").Set(float64(waitlisted))
	c.placement.WithLabelValues("unplaced").Set(float64(unplaced))
}

// RecordSubmission counts a registration attempt
func (c *Collector) RecordSubmission(result string) {
	c.submissions.WithLabelValues(result).Inc()
}

// RecordNotification counts a notification attempt
func (c *Collector) RecordNotification(kind string, sent bool) {
	result := "sent"
	if !sent {
		result = "failed"
	}
	c.notifications.WithLabelValues(kind, result).Inc()
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
