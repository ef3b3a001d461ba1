package account

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tinoosan/accounts-ledger/internal/errs"
)

const (
	opCreateAccount = "create_account"
	opDeposit       = "deposit"
	opWithdraw      = "withdraw"
	opTransfer      = "transfer"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "operations_total",
			Help:      "Ledger mutations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Duration of ledger mutations in seconds, lock wait included",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// observe is deferred by every mutation with a pointer to its named error.
func observe(op string, start time.Time, err *error) {
	operationsTotal.WithLabelValues(op, errs.KindOf(*err)).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
