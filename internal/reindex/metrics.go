package reindex

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the crawler's and pool's Prometheus metrics.
type Metrics struct {
	NodesIndexed *prometheus.CounterVec
	NodesSkipped *prometheus.CounterVec
	CrawlSeconds *prometheus.HistogramVec
	JobsRunning  prometheus.Gauge
	JobsFinished *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	nodesIndexed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbor_reindex_nodes_indexed_total",
		Help: "Nodes submitted to the index backend by workspace",
	}, []string{"workspace"})

	nodesSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbor_reindex_nodes_skipped_total",
		Help: "Nodes skipped during a crawl by reason",
	}, []string{"reason"})

	crawlSeconds := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arbor_reindex_crawl_duration_seconds",
		Help:    "Time spent crawling one subtree",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"workspace"})

	jobsRunning := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arbor_reindex_jobs_running",
		Help: "Asynchronous reindex jobs currently holding a worker",
	})

	jobsFinished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbor_reindex_jobs_finished_total",
		Help: "Asynchronous reindex jobs by outcome",
	}, []string{"outcome"})

	reg.MustRegister(nodesIndexed, nodesSkipped, crawlSeconds, jobsRunning, jobsFinished)

	return &Metrics{
		NodesIndexed: nodesIndexed,
		NodesSkipped: nodesSkipped,
		CrawlSeconds: crawlSeconds,
		JobsRunning:  jobsRunning,
		JobsFinished: jobsFinished,
	}
}

// Skip reasons.
const (
	skipMissing      = "missing"
	skipNonQueryable = "non_queryable"
)
