package escalation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "escalator"

var (
	stepsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "steps_executed_total",
			Help:      "Escalation step executions by outcome",
		},
		[]string{"outcome"},
	)

	casConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "cas_conflicts_total",
			Help:      "Step advances rejected because the incident changed concurrently",
		},
	)

	tickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one trigger tick",
			Buckets:   prometheus.DefBuckets,
		},
	)

	tickErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "tick_errors_total",
			Help:      "Trigger ticks that failed to select due incidents",
		},
	)

	dueIncidents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "due_incidents",
			Help:      "Incidents selected as due in the last tick",
		},
	)
)

func recordStep(outcome OutcomeStatus) {
	stepsExecuted.WithLabelValues(string(outcome)).Inc()
	if outcome == OutcomeConflict {
		casConflicts.Inc()
	}
}

func recordTick(d time.Duration, due int) {
	tickDuration.Observe(d.Seconds())
	dueIncidents.Set(float64(due))
}
