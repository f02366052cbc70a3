package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics exposes counters for the marketplace engines, labelled by
// module so plan and ticket traffic can be told apart.
type MarketMetrics struct {
	plansCreated     prometheus.Counter
	eventsCreated    prometheus.Counter
	purchases        *prometheus.CounterVec
	cancellations    *prometheus.CounterVec
	refundsRequested *prometheus.CounterVec
	withdrawals      *prometheus.CounterVec
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			plansCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_plans_created_total",
				Help: "Count of subscription plans deployed through the registry.",
			}),
			eventsCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_events_created_total",
				Help: "Count of one-off events hosted by the ticket engine.",
			}),
			purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_purchases_total",
				Help: "Count of successful purchases by module.",
			}, []string{"module"}),
			cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_cancellations_total",
				Help: "Count of cancellations by module.",
			}, []string{"module"}),
			refundsRequested: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_refunds_requested_total",
				Help: "Count of escrow credits booked by module.",
			}, []string{"module"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_withdrawals_total",
				Help: "Count of escrow payouts by module.",
			}, []string{"module"}),
		}
		prometheus.MustRegister(
			marketRegistry.plansCreated,
			marketRegistry.eventsCreated,
			marketRegistry.purchases,
			marketRegistry.cancellations,
			marketRegistry.refundsRequested,
			marketRegistry.withdrawals,
		)
	})
	return marketRegistry
}

func (m *MarketMetrics) PlanCreated() {
	if m == nil {
		return
	}
	m.plansCreated.Inc()
}

func (m *MarketMetrics) EventCreated() {
	if m == nil {
		return
	}
	m.eventsCreated.Inc()
}

func (m *MarketMetrics) Purchase(module string) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(module).Inc()
}

func (m *MarketMetrics) Cancellation(module string) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(module).Inc()
}

func (m *MarketMetrics) RefundRequested(module string) {
	if m == nil {
		return
	}
	m.refundsRequested.WithLabelValues(module).Inc()
}

func (m *MarketMetrics) Withdrawal(module string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(module).Inc()
}
