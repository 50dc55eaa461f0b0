package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	watcherSweepTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blackbook",
		Subsystem: "watcher",
		Name:      "sweep_total",
		Help:      "Count of expiry sweeps.",
	}, []string{"status"})

	watcherSweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blackbook",
		Subsystem: "watcher",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of an expiry sweep.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	watcherClosedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blackbook",
		Subsystem: "watcher",
		Name:      "closed_markets_total",
		Help:      "Count of markets closed because their close time passed.",
	})
)

// Watcher tracks metrics for the market expiry watcher.
type Watcher struct{}

// NewWatcher constructs a Watcher metrics collector.
func NewWatcher() *Watcher {
	return &Watcher{}
}

// ObserveSweep records one sweep and the number of markets it closed.
func (m Watcher) ObserveSweep(err error, closed int, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	watcherSweepTotal.WithLabelValues(status).Inc()
	watcherSweepDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
	watcherClosedTotal.Add(float64(closed))
}
