package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	minerSolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blackbook",
		Subsystem: "miner",
		Name:      "solve_total",
		Help:      "Count of proof-of-work searches.",
	}, []string{"status"})

	minerSolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blackbook",
		Subsystem: "miner",
		Name:      "solve_duration_seconds",
		Help:      "Duration of a proof-of-work search.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"status"})

	minerCommitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blackbook",
		Subsystem: "miner",
		Name:      "commit_total",
		Help:      "Count of mined blocks submitted to the node.",
	}, []string{"status"})

	minerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "blackbook",
		Subsystem: "miner",
		Name:      "state",
		Help:      "Miner state: 0 idle, 1 mining, 2 committed.",
	})
)

// Miner tracks metrics for the mining service.
type Miner struct{}

// NewMiner constructs a Miner metrics collector.
func NewMiner() *Miner {
	return &Miner{}
}

// ObserveSolve records a nonce search outcome and duration.
func (m Miner) ObserveSolve(err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	minerSolveTotal.WithLabelValues(status).Inc()
	minerSolveDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
}

// ObserveCommit records whether the node accepted a mined block.
func (m Miner) ObserveCommit(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	minerCommitTotal.WithLabelValues(status).Inc()
}

// SetState records the current miner state.
func (m Miner) SetState(state int) {
	minerState.Set(float64(state))
}
