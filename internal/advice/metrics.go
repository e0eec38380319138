package advice

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	modeBlocking = "blocking"
	modeStream   = "stream"
)

var (
	generationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "runcoach",
		Subsystem: "advice",
		Name:      "generation_duration_seconds",
		Help:      "Time spent waiting on the generation backend.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
	}, []string{"backend", "mode"})

	generationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "runcoach",
		Subsystem: "advice",
		Name:      "generation_failures_total",
		Help:      "Number of generation calls that ended in error text.",
	}, []string{"backend", "mode"})
)

func init() {
	prometheus.MustRegister(generationDuration, generationFailures)
}

func observeGeneration(backend, mode string, start time.Time, err error) {
	generationDuration.WithLabelValues(backend, mode).Observe(time.Since(start).Seconds())
	if err != nil {
		generationFailures.WithLabelValues(backend, mode).Inc()
	}
}
