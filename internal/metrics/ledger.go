package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records the outcome of stock ledger operations.
type LedgerMetrics struct {
	duration *prometheus.HistogramVec
	results  *prometheus.CounterVec
	products prometheus.Counter
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
// A nil registerer yields a recorder that drops every observation.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_operation_duration_seconds",
		Help:    "Duration of stock ledger operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operations_total",
		Help: "Stock ledger operations by outcome.",
	}, []string{"op", "outcome"})
	products := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_products_submitted_total",
		Help: "Product ids submitted to stock additions.",
	})
	reg.MustRegister(duration, results, products)
	return &LedgerMetrics{
		duration: duration,
		results:  results,
		products: products,
	}
}

// Observe records the duration and outcome of one operation.
func (m *LedgerMetrics) Observe(op, outcome string, elapsed time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	op = normalizeLabel(op)
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
	m.results.WithLabelValues(op, normalizeLabel(outcome)).Inc()
}

// AddProducts counts submitted product ids. Model ids are tenant data and
// are kept out of the labels.
func (m *LedgerMetrics) AddProducts(n int) {
	if m == nil || m.products == nil || n <= 0 {
		return
	}
	m.products.Add(float64(n))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
