package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiTokensIn,
		aiTokensOut,
		aiCallsLatency,
		aiCallErrors,
		aiChunksPerSession,
		aiStopReasons,
		aiContextShrinks,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCallsLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_seconds",
			Help:    "Provider call latency distribution in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		},
		[]string{"provider", "model", "success"},
	)

	aiCallErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_call_errors_total",
			Help: "Provider call failures by error kind.",
		},
		[]string{"provider", "kind"},
	)

	aiChunksPerSession = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_chunks_per_session",
			Help:    "Number of provider calls made by one chunked generation session.",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16, 25, 50, 100},
		},
		[]string{"provider"},
	)

	aiStopReasons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_generation_stop_total",
			Help: "Why chunked generation sessions ended.",
		},
		[]string{"provider", "reason"},
	)

	aiContextShrinks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_context_shrinks_total",
			Help: "Retries made with a reduced output budget after a context-length error.",
		},
		[]string{"provider"},
	)
)

// ObserveProviderCall records one provider round trip.
func ObserveProviderCall(provider, model string, tokensIn, tokensOut int, elapsed time.Duration, success bool) {
	lbl := []string{norm(provider), norm(model)}
	aiTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	aiTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
	aiCallsLatency.WithLabelValues(norm(provider), norm(model), strconv.FormatBool(success)).
		Observe(elapsed.Seconds())
}

func IncProviderError(provider, kind string) {
	aiCallErrors.WithLabelValues(norm(provider), norm(kind)).Inc()
}

func ObserveGenerationSession(provider string, chunks int, reason string) {
	aiChunksPerSession.WithLabelValues(norm(provider)).Observe(float64(chunks))
	aiStopReasons.WithLabelValues(norm(provider), norm(reason)).Inc()
}

func IncContextShrink(provider string) {
	aiContextShrinks.WithLabelValues(norm(provider)).Inc()
}
