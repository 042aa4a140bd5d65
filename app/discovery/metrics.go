package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mention_comb",
		Subsystem: "discovery",
		Name:      "requests_total",
		Help:      "Discovery LLM calls by tier and status (ok, error, schema_mismatch, cached)",
	}, []string{"tier", "status"})

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mention_comb",
		Subsystem: "discovery",
		Name:      "latency_seconds",
		Help:      "Discovery LLM call latency",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
	}, []string{"tier"})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mention_comb",
		Subsystem: "discovery",
		Name:      "tokens_total",
		Help:      "Tokens consumed by tier and direction (prompt, completion)",
	}, []string{"tier", "direction"})

	costTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mention_comb",
		Subsystem: "discovery",
		Name:      "cost_usd_total",
		Help:      "Estimated spend in USD by tier",
	}, []string{"tier"})
)

func observe(tier string, meta Meta) {
	requestLatency.WithLabelValues(tier).Observe(float64(meta.LatencyMs) / 1000)
	tokensTotal.WithLabelValues(tier, "prompt").Add(float64(meta.PromptTokens))
	tokensTotal.WithLabelValues(tier, "completion").Add(float64(meta.CompletionTokens))
	costTotal.WithLabelValues(tier).Add(meta.Cost)
}
