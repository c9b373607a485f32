package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PromotionValidationTotal counts promotion validation outcomes by reason ("valid" on success).
	PromotionValidationTotal *prometheus.CounterVec
	// CheckoutCompletedTotal counts checkout completion attempts by result.
	CheckoutCompletedTotal *prometheus.CounterVec
	// CheckoutFinalTotal records the final charged amount in minor units.
	CheckoutFinalTotal prometheus.Histogram
	// StockDecrementFailures counts order lines whose stock could not be reduced.
	StockDecrementFailures prometheus.Counter
	// LoyaltyPointsTotal counts loyalty points spent and earned.
	LoyaltyPointsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PromotionValidationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotion_validation_total",
			Help:      "Count of promotion validation outcomes by reason.",
		}, []string{"reason"})
		CheckoutCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_completed_total",
			Help:      "Count of checkout completion attempts by result.",
		}, []string{"result"})
		CheckoutFinalTotal = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_final_total_minor",
			Help:      "Final charged amount of completed checkouts in minor currency units.",
			Buckets:   []float64{10_000, 50_000, 100_000, 250_000, 500_000, 1_000_000, 5_000_000, 10_000_000},
		})
		StockDecrementFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_decrement_failures_total",
			Help:      "Number of order lines whose stock could not be decremented after payment.",
		})
		LoyaltyPointsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loyalty_points_total",
			Help:      "Loyalty points moved by checkouts.",
		}, []string{"direction"})

		mustRegisterCollector(reg, PromotionValidationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PromotionValidationTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutCompletedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutCompletedTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutFinalTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				CheckoutFinalTotal = v
			}
		})
		mustRegisterCollector(reg, StockDecrementFailures, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				StockDecrementFailures = v
			}
		})
		mustRegisterCollector(reg, LoyaltyPointsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				LoyaltyPointsTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
