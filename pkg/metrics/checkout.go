package metrics

import "github.com/prometheus/client_golang/prometheus"

// CheckoutMetrics tracks order placement and payment settlement.
type CheckoutMetrics struct {
	groupsCreated *prometheus.CounterVec
	ordersCreated *prometheus.CounterVec
	payments      *prometheus.CounterVec
	guestMerges   *prometheus.CounterVec
	groupAmount   prometheus.Histogram
}

// Payment outcomes recorded by ObservePayment.
const (
	PaymentOutcomeVerified = "verified"
	PaymentOutcomeFailed   = "failed"
	PaymentOutcomeReplayed = "replayed"
)

// NewCheckoutMetrics registers checkout metrics on reg.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	m := &CheckoutMetrics{
		groupsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "groups_created_total",
			Help:      "Checkout groups committed, by payment method.",
		}, []string{"payment_method"}),
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "orders_created_total",
			Help:      "Shop orders committed, by payment method.",
		}, []string{"payment_method"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "payment_verifications_total",
			Help:      "Gateway payment verifications, by outcome.",
		}, []string{"outcome"}),
		guestMerges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "guest_merges_total",
			Help:      "Guest cart merges, by whether any line was skipped.",
		}, []string{"skipped"}),
		groupAmount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "group_amount_major_units",
			Help:      "Checkout group grand totals in major currency units.",
			Buckets:   prometheus.ExponentialBuckets(100, 2, 12),
		}),
	}
	reg.MustRegister(m.groupsCreated, m.ordersCreated, m.payments, m.guestMerges, m.groupAmount)
	return m
}

// ObserveGroupCreated records one committed checkout group.
func (m *CheckoutMetrics) ObserveGroupCreated(paymentMethod string, orders int, amountCents int) {
	if m == nil || m.groupsCreated == nil {
		return
	}
	label := normalizeLabel(paymentMethod)
	m.groupsCreated.WithLabelValues(label).Inc()
	m.ordersCreated.WithLabelValues(label).Add(float64(orders))
	m.groupAmount.Observe(float64(amountCents) / 100)
}

// ObservePayment records a verification outcome.
func (m *CheckoutMetrics) ObservePayment(outcome string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveGuestMerge records a guest cart merge.
func (m *CheckoutMetrics) ObserveGuestMerge(skipped bool) {
	if m == nil || m.guestMerges == nil {
		return
	}
	label := "false"
	if skipped {
		label = "true"
	}
	m.guestMerges.WithLabelValues(label).Inc()
}
