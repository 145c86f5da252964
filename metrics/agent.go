package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded by the agent counters.
const (
	OutcomeStored       = "stored"
	OutcomeRejected     = "rejected"
	OutcomeUnsupported  = "unsupported_scheme"
	OutcomeReplay       = "replay"
	OutcomeInconsistent = "inconsistent"
	OutcomeFulfilled    = "fulfilled"
	OutcomeSuccess      = "success"
	OutcomeFailure      = "failure"
)

// AgentMetrics are the metrics of a blocklock agent.
type AgentMetrics struct {
	// Scheme the agent handles.
	scheme string

	blocks          *prometheus.CounterVec
	requests        *prometheus.CounterVec
	released        *prometheus.CounterVec
	resyncs         *prometheus.CounterVec
	batchFetches    *prometheus.CounterVec
	pendingRequests *prometheus.GaugeVec
	lastSeenBlock   *prometheus.GaugeVec
}

// NewDefaultAgentMetrics creates the agent metrics for the given scheme.
func NewDefaultAgentMetrics(pkg, scheme string) AgentMetrics {
	metrics := AgentMetrics{
		scheme: scheme,
		blocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_blocks", pkg),
				Help: "How many new block notifications were handled, partitioned by kind (next, stale, gap).",
			},
			[]string{"scheme", "kind"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_decryption_requests", pkg),
				Help: "How many decryption requests were observed, partitioned by outcome.",
			},
			[]string{"scheme", "outcome"},
		),
		released: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_released_requests", pkg),
				Help: "How many decryption requests were handed over for fulfillment.",
			},
			[]string{"scheme"},
		),
		resyncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_resyncs", pkg),
				Help: "How many state synchronizations with the chain ran, partitioned by status.",
			},
			[]string{"scheme", "status"},
		),
		batchFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_batch_fetches", pkg),
				Help: "How many batched request fetches ran, partitioned by status.",
			},
			[]string{"scheme", "status"},
		),
		pendingRequests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: fmt.Sprintf("%s_pending_requests", pkg),
				Help: "Number of requests waiting for their condition.",
			},
			[]string{"scheme"},
		),
		lastSeenBlock: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: fmt.Sprintf("%s_last_seen_block", pkg),
				Help: "Last block handled by the agent.",
			},
			[]string{"scheme"},
		),
	}
	metrics.blocks = registerOnce(metrics.blocks)
	metrics.requests = registerOnce(metrics.requests)
	metrics.released = registerOnce(metrics.released)
	metrics.resyncs = registerOnce(metrics.resyncs)
	metrics.batchFetches = registerOnce(metrics.batchFetches)
	metrics.pendingRequests = registerOnce(metrics.pendingRequests)
	metrics.lastSeenBlock = registerOnce(metrics.lastSeenBlock)
	return metrics
}

// Blocks returns the counter of block notifications of the given kind.
func (m *AgentMetrics) Blocks(kind string) prometheus.Counter {
	return m.blocks.WithLabelValues(m.scheme, kind)
}

// Requests returns the counter of observed requests with the given outcome.
func (m *AgentMetrics) Requests(outcome string) prometheus.Counter {
	return m.requests.WithLabelValues(m.scheme, outcome)
}

// Released returns the counter of released requests.
func (m *AgentMetrics) Released() prometheus.Counter {
	return m.released.WithLabelValues(m.scheme)
}

// Resyncs returns the counter of synchronizations with the given status.
func (m *AgentMetrics) Resyncs(status string) prometheus.Counter {
	return m.resyncs.WithLabelValues(m.scheme, status)
}

// BatchFetches returns the counter of batch fetches with the given status.
func (m *AgentMetrics) BatchFetches(status string) prometheus.Counter {
	return m.batchFetches.WithLabelValues(m.scheme, status)
}

// PendingRequests returns the gauge of requests waiting for their condition.
func (m *AgentMetrics) PendingRequests() prometheus.Gauge {
	return m.pendingRequests.WithLabelValues(m.scheme)
}

// LastSeenBlock returns the gauge of the agent's block cursor.
func (m *AgentMetrics) LastSeenBlock() prometheus.Gauge {
	return m.lastSeenBlock.WithLabelValues(m.scheme)
}
