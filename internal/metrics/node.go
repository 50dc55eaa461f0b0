// Package metrics exposes application metrics collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	nodeSubmitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blackbook",
		Subsystem: "node",
		Name:      "submit_total",
		Help:      "Count of transaction submissions by kind.",
	}, []string{"kind", "status"})

	nodeSubmitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blackbook",
		Subsystem: "node",
		Name:      "submit_duration_seconds",
		Help:      "Duration of validating and queueing a transaction.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind", "status"})

	nodeBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blackbook",
		Subsystem: "node",
		Name:      "blocks_total",
		Help:      "Count of submitted blocks by outcome.",
	}, []string{"status"})

	nodeBlockTransactions = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "blackbook",
		Subsystem: "node",
		Name:      "block_transactions",
		Help:      "Number of transactions per committed block.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	nodeChainHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "blackbook",
		Subsystem: "node",
		Name:      "chain_height",
		Help:      "Height of the chain tip.",
	})

	nodeMempoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "blackbook",
		Subsystem: "node",
		Name:      "mempool_size",
		Help:      "Number of pending transactions.",
	})

	nodeDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blackbook",
		Subsystem: "node",
		Name:      "dropped_transactions_total",
		Help:      "Count of pending transactions dropped after a state change made them invalid.",
	})
)

// Node tracks metrics for the ledger node.
type Node struct{}

// NewNode constructs a Node metrics collector.
func NewNode() *Node {
	return &Node{}
}

// ObserveSubmit records a transaction submission outcome and duration.
func (m Node) ObserveSubmit(kind string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	if kind == "" {
		kind = "unknown"
	}
	nodeSubmitTotal.WithLabelValues(kind, status).Inc()
	nodeSubmitDuration.WithLabelValues(kind, status).Observe(time.Since(started).Seconds())
}

// ObserveBlock records a submitted block and, when committed, its size and height.
func (m Node) ObserveBlock(err error, txs int, height uint64) {
	if err != nil {
		nodeBlocksTotal.WithLabelValues("error").Inc()
		return
	}
	nodeBlocksTotal.WithLabelValues("success").Inc()
	nodeBlockTransactions.Observe(float64(txs))
	nodeChainHeight.Set(float64(height))
}

// ObserveMempool records the pending pool size and any dropped transactions.
func (m Node) ObserveMempool(size, dropped int) {
	nodeMempoolSize.Set(float64(size))
	if dropped > 0 {
		nodeDropped.Add(float64(dropped))
	}
}
