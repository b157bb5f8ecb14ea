package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SagaMetrics counts the order/payment/compensation flow.
type SagaMetrics struct {
	ordersCreated    prometheus.Counter
	oversellRejected prometheus.Counter
	paymentOutcomes  *prometheus.CounterVec
	compensations    prometheus.Counter
	duplicateNotify  prometheus.Counter
}

// NewSagaMetrics registers the saga counters on the provided registerer.
func NewSagaMetrics(reg prometheus.Registerer) *SagaMetrics {
	if reg == nil {
		return &SagaMetrics{}
	}
	ordersCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders created with stock reserved.",
	})
	oversellRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_insufficient_stock_total",
		Help: "Order creations rejected for insufficient stock.",
	})
	paymentOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_outcomes_total",
		Help: "Payment notify outcomes applied, by mapped state.",
	}, []string{"state"})
	compensations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "order_compensations_total",
		Help: "Orders whose stock was restored after a failed payment.",
	})
	duplicateNotify := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_notify_duplicates_total",
		Help: "Notify callbacks dropped as already-terminal replays.",
	})
	reg.MustRegister(ordersCreated, oversellRejected, paymentOutcomes, compensations, duplicateNotify)
	return &SagaMetrics{
		ordersCreated:    ordersCreated,
		oversellRejected: oversellRejected,
		paymentOutcomes:  paymentOutcomes,
		compensations:    compensations,
		duplicateNotify:  duplicateNotify,
	}
}

// IncOrdersCreated counts a successful order creation.
func (m *SagaMetrics) IncOrdersCreated() {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.Inc()
}

// IncOversellRejected counts an InsufficientStock rejection.
func (m *SagaMetrics) IncOversellRejected() {
	if m == nil || m.oversellRejected == nil {
		return
	}
	m.oversellRejected.Inc()
}

// IncPaymentOutcome counts a notify application by mapped payment state.
func (m *SagaMetrics) IncPaymentOutcome(state string) {
	if m == nil || m.paymentOutcomes == nil {
		return
	}
	if state == "" {
		state = "unknown"
	}
	m.paymentOutcomes.WithLabelValues(state).Inc()
}

// IncCompensations counts one completed restock compensation.
func (m *SagaMetrics) IncCompensations() {
	if m == nil || m.compensations == nil {
		return
	}
	m.compensations.Inc()
}

// IncDuplicateNotify counts a replayed terminal notify.
func (m *SagaMetrics) IncDuplicateNotify() {
	if m == nil || m.duplicateNotify == nil {
		return
	}
	m.duplicateNotify.Inc()
}
