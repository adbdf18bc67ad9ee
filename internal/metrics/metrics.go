package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationDuration tracks the latency of ledger operations
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "ledger_operation_duration_seconds",
			Help: "Duration of ledger operations in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
			},
		},
		[]string{"operation", "outcome"},
	)

	// PointsMoved counts points credited and debited by committed entries
	PointsMoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_points_moved_total",
			Help: "Points credited or debited by committed ledger entries",
		},
		[]string{"type", "direction"},
	)

	// BalanceDriftAccounts is the number of accounts the last audit found out of balance
	BalanceDriftAccounts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_balance_drift_accounts",
			Help: "Accounts whose cached balance disagrees with their entries at the last audit",
		},
	)
)

// RecordOperation records the duration of a ledger operation
func RecordOperation(operation, outcome string, duration float64) {
	OperationDuration.WithLabelValues(operation, outcome).Observe(duration)
}

// RecordPoints adds a committed entry's balance effect
func RecordPoints(entryType string, amount int64) {
	switch {
	case amount > 0:
		PointsMoved.WithLabelValues(entryType, "credit").Add(float64(amount))
	case amount < 0:
		PointsMoved.WithLabelValues(entryType, "debit").Add(float64(-amount))
	}
}

// RecordBalanceDrift sets the drift gauge
func RecordBalanceDrift(accounts int) {
	BalanceDriftAccounts.Set(float64(accounts))
}
