package delivery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	deliveryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "runcoach",
		Subsystem: "delivery",
		Name:      "attempts_total",
		Help:      "Number of advice delivery attempts grouped by channel and outcome.",
	}, []string{"channel", "outcome"})

	deliveryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "runcoach",
		Subsystem: "delivery",
		Name:      "duration_seconds",
		Help:      "Time taken to hand advice to a delivery channel.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"channel"})
)

func init() {
	prometheus.MustRegister(deliveryCounter, deliveryDuration)
}

func observeDelivery(channel string, start time.Time, ok bool) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	deliveryCounter.WithLabelValues(channel, outcome).Inc()
	deliveryDuration.WithLabelValues(channel).Observe(time.Since(start).Seconds())
}
