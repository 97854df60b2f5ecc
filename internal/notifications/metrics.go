package notifications

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "escalator"

var (
	notificationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "attempts_total",
			Help:      "Delivery attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	notificationSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Time spent in a channel adapter",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)

	dispatchResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "dispatches_total",
			Help:      "Per-user dispatches by result. A dispatch succeeds when any channel delivers.",
		},
		[]string{"result"},
	)

	taskQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "task_queue_depth",
			Help:      "Tasks waiting in the in-process notification queue",
		},
	)

	tasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "tasks_total",
			Help:      "Notification tasks by status",
		},
		[]string{"status"},
	)
)

func recordAttempt(channel, outcome string) {
	notificationAttempts.WithLabelValues(channel, outcome).Inc()
}

func recordSendDuration(channel string, duration time.Duration) {
	notificationSendDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

func recordDispatch(success bool) {
	if success {
		dispatchResults.WithLabelValues("delivered").Inc()
		return
	}
	dispatchResults.WithLabelValues("failed").Inc()
}

func recordTask(status string) {
	tasksProcessed.WithLabelValues(status).Inc()
}

func setQueueDepth(n int) {
	taskQueueDepth.Set(float64(n))
}
