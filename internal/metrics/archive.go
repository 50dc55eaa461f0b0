package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "blackbook"

var (
	archiveWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "archive",
		Name:      "writes_total",
		Help:      "Archive batch writes by table operation and outcome.",
	}, []string{"operation", "status"})
	archiveWriteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "archive",
		Name:      "write_duration_seconds",
		Help:      "Time spent sending one archive batch.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"operation"})
	archiveLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "archive",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful write per operation.",
	}, []string{"operation"})
)

// Archive records ClickHouse block archive writes.
type Archive struct{}

func NewArchive() *Archive {
	return &Archive{}
}

// Observe records one archive write started at started.
func (Archive) Observe(operation string, err error, started time.Time) {
	archiveWritesTotal.WithLabelValues(operation, status(err)).Inc()
	archiveWriteDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	if err == nil {
		archiveLastSuccess.WithLabelValues(operation).SetToCurrentTime()
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
