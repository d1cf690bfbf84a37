package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

// SagaMetrics covers the checkout saga: ledger operations, compensation,
// settlement callbacks and staff bulk operations. A nil *SagaMetrics is a no-op.
type SagaMetrics struct {
	stockOps             *prometheus.CounterVec
	checkouts            *prometheus.CounterVec
	compensationFailures prometheus.Counter
	settlements          *prometheus.CounterVec
	bulkOps              *prometheus.CounterVec
	driftedVariants      prometheus.Gauge
}

// NewSagaMetrics registers the saga collectors on reg.
func NewSagaMetrics(reg prometheus.Registerer) *SagaMetrics {
	if reg == nil {
		return nil
	}
	m := &SagaMetrics{
		stockOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_operations_total",
			Help:      "Stock ledger operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		compensationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_compensation_failures_total",
			Help:      "Release calls that failed while compensating a checkout; reserved is left inflated.",
		}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_callbacks_total",
			Help:      "Settlement callbacks by rail and action taken.",
		}, []string{"rail", "action"}),
		bulkOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillment_operations_total",
			Help:      "Per-order results of staff bulk operations.",
		}, []string{"operation", "outcome"}),
		driftedVariants: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reservation_drifted_variants",
			Help:      "Variants whose reserved counter disagrees with pending orders at the last audit.",
		}),
	}
	reg.MustRegister(m.stockOps, m.checkouts, m.compensationFailures, m.settlements, m.bulkOps, m.driftedVariants)
	return m
}

func (m *SagaMetrics) ObserveStockOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.stockOps.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

func (m *SagaMetrics) ObserveCheckout(outcome string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *SagaMetrics) IncCompensationFailure() {
	if m == nil {
		return
	}
	m.compensationFailures.Inc()
}

func (m *SagaMetrics) ObserveSettlement(rail, action string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(rail), normalizeLabel(action)).Inc()
}

func (m *SagaMetrics) ObserveBulkOperation(operation string, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.bulkOps.WithLabelValues(normalizeLabel(operation), outcome).Inc()
}

func (m *SagaMetrics) SetDriftedVariants(count int) {
	if m == nil {
		return
	}
	m.driftedVariants.Set(float64(count))
}
