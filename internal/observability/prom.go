package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromCollector exports evaluation events as Prometheus metrics. It
// satisfies the rule engine's EventLogger, so it can sit beside a Recorder.
type PromCollector struct {
	registry    *prometheus.Registry
	evaluations *prometheus.CounterVec
	tasks       *prometheus.CounterVec
	overdue     prometheus.Gauge
	lastRun     prometheus.Gauge
}

// NewPromCollector creates a collector with its own registry.
func NewPromCollector() *PromCollector {
	reg := prometheus.NewRegistry()
	c := &PromCollector{
		registry: reg,
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medic_conf",
			Name:      "evaluations_total",
			Help:      "Contact evaluations by outcome.",
		}, []string{"outcome"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medic_conf",
			Name:      "tasks_emitted_total",
			Help:      "Task instances emitted, by task definition.",
		}, []string{"definition"}),
		overdue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "medic_conf",
			Name:      "tasks_overdue",
			Help:      "Overdue task instances in the last evaluated contact batch.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "medic_conf",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last evaluation run finished.",
		}),
	}
	reg.MustRegister(c.evaluations, c.tasks, c.overdue, c.lastRun)
	return c
}

// Registry returns the collector's registry.
func (c *PromCollector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *PromCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// LogEvent updates the counters for one engine event.
func (c *PromCollector) LogEvent(eventType string, data map[string]any) error {
	switch eventType {
	case EventEvaluationCompleted:
		c.evaluations.WithLabelValues("completed").Inc()
		if byDef, ok := data["by_definition"].(map[string]any); ok {
			for name, n := range byDef {
				c.tasks.WithLabelValues(name).Add(float64(intValue(n)))
			}
		}
		c.overdue.Add(float64(intValue(data["overdue"])))
	case EventEvaluationFailed:
		c.evaluations.WithLabelValues("failed").Inc()
	case EventRunStarted:
		c.overdue.Set(0)
	case EventRunFinished:
		c.lastRun.SetToCurrentTime()
	}
	return nil
}

// EventSink is anything that accepts engine events.
type EventSink interface {
	LogEvent(eventType string, data map[string]any) error
}

// MultiSink fans an event out to several sinks. Every sink sees the event;
// the first error is returned.
type MultiSink []EventSink

func (m MultiSink) LogEvent(eventType string, data map[string]any) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.LogEvent(eventType, data); err != nil && first == nil {
			first = err
		}
	}
	return first
}
