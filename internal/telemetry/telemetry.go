package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChatTurns counts completed chat turns by result (ok, error).
	ChatTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "souk",
		Name:      "chat_turns_total",
		Help:      "Completed chat turns by result.",
	}, []string{"result"})

	// LoopIterations observes how many iterations each chat turn took.
	LoopIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "souk",
		Name:      "agent_loop_iterations",
		Help:      "Tool-calling loop iterations per chat turn.",
		Buckets:   []float64{1, 2, 3, 4, 5},
	})

	// CapabilityInvocations counts capability executions by name and outcome.
	CapabilityInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "souk",
		Name:      "capability_invocations_total",
		Help:      "Capability executions by name and outcome.",
	}, []string{"capability", "outcome"})

	// NegotiationRounds counts negotiation rounds by resulting session status.
	NegotiationRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "souk",
		Name:      "negotiation_rounds_total",
		Help:      "Negotiation rounds by resulting session status.",
	}, []string{"status"})

	// RetrievalFallbacks counts catalog searches that fell back to lexical matching.
	RetrievalFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "souk",
		Name:      "retrieval_fallbacks_total",
		Help:      "Catalog searches served by the lexical fallback.",
	})

	// RequestDuration observes HTTP handler latency by route.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "souk",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP handler latency by route and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "code"})
)
