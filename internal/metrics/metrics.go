package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_placed_total", Help: "Orders submitted to the exchange"},
		[]string{"symbol", "side"},
	)
	OrdersFilledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_filled_total", Help: "Orders that reached FILLED"},
		[]string{"symbol"},
	)
	OrdersCanceledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_canceled_total", Help: "Orders that reached CANCELED"},
		[]string{"symbol"},
	)
	OrdersRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_rejected_total", Help: "Orders refused by exchange policy"},
		[]string{"symbol"},
	)
	OCOFailClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "oco_fail_closed_total", Help: "Primary legs cancelled after sibling placement failed"},
		[]string{"symbol"},
	)
	OCOCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "oco_completed_total", Help: "OCO groups that reached a terminal state"},
		[]string{"symbol"},
	)
	SignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Strategy signals emitted"},
		[]string{"symbol", "signal"},
	)
	IntentRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "intent_retries_total", Help: "Transient intent failures retried"},
		[]string{"symbol"},
	)
	ResyncsTotal = promauto.NewCounter(
		prometheus.CounterOpts{Name: "resyncs_total", Help: "Snapshot resynchronizations performed"},
	)
)
