// Package observability holds process-wide Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	adviceDeliveredGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "runcoach",
		Subsystem: "delivery",
		Name:      "last_advice_delivered_timestamp_seconds",
		Help:      "Unix timestamp of the most recent advice accepted by every delivery channel.",
	})
	ledgerDuplicateCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "runcoach",
		Subsystem: "ledger",
		Name:      "duplicate_claims_total",
		Help:      "Number of event claims rejected because the event was already recorded.",
	})
)

func init() {
	prometheus.MustRegister(adviceDeliveredGauge, ledgerDuplicateCounter)
}

// RecordAdviceDelivered updates the delivery watermark gauge.
func RecordAdviceDelivered(ts time.Time) {
	if ts.IsZero() {
		return
	}
	adviceDeliveredGauge.Set(float64(ts.Unix()))
}

// RecordLedgerDuplicate counts a rejected duplicate claim.
func RecordLedgerDuplicate() {
	ledgerDuplicateCounter.Inc()
}
