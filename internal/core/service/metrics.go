package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

var (
	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "transactions_total",
		Help:      "Recorded ledger transactions by type and outcome.",
	}, []string{"type", "outcome"})

	stockUnitsMoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "stock_units_moved_total",
		Help:      "Units moved by committed transactions.",
	}, []string{"type"})

	lockWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ledger",
		Name:      "lock_wait_seconds",
		Help:      "Time spent acquiring product mutation scopes.",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5},
	})

	productsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "product_operations_total",
		Help:      "Product registry operations by operation and outcome.",
	}, []string{"operation", "outcome"})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "events_dropped_total",
		Help:      "Committed transaction events dropped because the queue was full.",
	})
)

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := domain.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
