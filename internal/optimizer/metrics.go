package optimizer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the optimizer's Prometheus metrics.
type Metrics struct {
	RulesExecuted   *prometheus.CounterVec
	RuleErrors      *prometheus.CounterVec
	RuleLimitHits   prometheus.Counter
	OptimizeSeconds prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	rulesExecuted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbor_optimizer_rules_executed_total",
		Help: "Optimizer rule executions by rule name",
	}, []string{"rule"})

	ruleErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbor_optimizer_rule_errors_total",
		Help: "Optimizer rule failures by rule name",
	}, []string{"rule"})

	ruleLimitHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbor_optimizer_rule_limit_total",
		Help: "Optimizations aborted by the iteration ceiling",
	})

	optimizeSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "arbor_optimizer_duration_seconds",
		Help:    "Time spent optimizing one plan",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	reg.MustRegister(rulesExecuted, ruleErrors, ruleLimitHits, optimizeSeconds)

	return &Metrics{
		RulesExecuted:   rulesExecuted,
		RuleErrors:      ruleErrors,
		RuleLimitHits:   ruleLimitHits,
		OptimizeSeconds: optimizeSeconds,
	}
}
