package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/runcoach/internal/domain"
)

var (
	eventCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "runcoach",
		Subsystem: "pipeline",
		Name:      "events_total",
		Help:      "Webhook events handled, grouped by reported status.",
	}, []string{"status"})

	stageFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "runcoach",
		Subsystem: "pipeline",
		Name:      "stage_failures_total",
		Help:      "Pipeline runs that failed, grouped by the failing stage.",
	}, []string{"stage"})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "runcoach",
		Subsystem: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "Wall time of claimed pipeline runs from claim to outcome.",
		Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160, 320},
	})
)

func init() {
	prometheus.MustRegister(eventCounter, stageFailureCounter, runDuration)
}

func recordEvent(status domain.EventStatus) {
	eventCounter.WithLabelValues(string(status)).Inc()
}

func recordStageFailure(s stage) {
	stageFailureCounter.WithLabelValues(string(s)).Inc()
}

func observeRun(start time.Time) {
	runDuration.Observe(time.Since(start).Seconds())
}
