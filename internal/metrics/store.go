package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const storePingTimeout = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

// NewStoreUpGauge registers ledger_store_up, which pings store on every scrape
// and reports 1 when it answers.
func NewStoreUpGauge(reg prometheus.Registerer, driver string, store pinger) prometheus.GaugeFunc {
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "ledger_store_up",
		Help:        "Whether the ledger document store answered a ping.",
		ConstLabels: prometheus.Labels{"driver": normalizeLabel(driver)},
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), storePingTimeout)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			return 0
		}
		return 1
	})
	if reg != nil {
		reg.MustRegister(gauge)
	}
	return gauge
}
