package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)

	m.Observe("upsert", "ok", 10*time.Millisecond)
	m.Observe("upsert", "ok", 20*time.Millisecond)
	m.Observe("upsert", "", time.Millisecond)
	m.AddProducts(3)
	m.AddProducts(0)
	m.AddProducts(-2)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.results.WithLabelValues("upsert", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.results.WithLabelValues("upsert", "unknown")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.products))

	series, err := testutil.GatherAndCount(reg, "ledger_products_submitted_total")
	require.NoError(t, err)
	assert.Equal(t, 1, series, "submitted products are a single unlabeled series")
}

func TestLedgerMetricsNilSafe(t *testing.T) {
	var m *LedgerMetrics
	m.Observe("upsert", "ok", time.Second)
	m.AddProducts(1)

	empty := NewLedgerMetrics(nil)
	empty.Observe("upsert", "ok", time.Second)
	empty.AddProducts(1)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestStoreUpGauge(t *testing.T) {
	up := NewStoreUpGauge(prometheus.NewRegistry(), "memory", stubPinger{})
	assert.Equal(t, float64(1), testutil.ToFloat64(up))

	down := NewStoreUpGauge(prometheus.NewRegistry(), "redis", stubPinger{err: errors.New("connection refused")})
	assert.Equal(t, float64(0), testutil.ToFloat64(down))
}
