package feed

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the feed's Prometheus metrics.
type Metrics struct {
	RecordsApplied *prometheus.CounterVec
	RecordsDropped prometheus.Counter
	Offset         *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	applied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbor_feed_records_applied_total",
		Help: "Feed records applied to the index by operation",
	}, []string{"op"})

	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbor_feed_records_dropped_total",
		Help: "Feed records that could not be decoded",
	})

	offset := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arbor_feed_offset",
		Help: "Last applied offset per partition",
	}, []string{"partition"})

	reg.MustRegister(applied, dropped, offset)

	return &Metrics{
		RecordsApplied: applied,
		RecordsDropped: dropped,
		Offset:         offset,
	}
}
