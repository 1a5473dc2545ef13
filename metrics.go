package arrowpq

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type writerMetrics struct {
	rowGroupsOpened     prometheus.Counter
	columnChunksWritten prometheus.Counter
	rowsWritten         prometheus.Counter
	rowGroupDuration    prometheus.Histogram
}

func newWriterMetrics(reg prometheus.Registerer) *writerMetrics {
	return &writerMetrics{
		rowGroupsOpened: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "arrowpq_row_groups_opened_total",
			Help: "Number of row groups opened by the writer.",
		}),
		columnChunksWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "arrowpq_column_chunks_written_total",
			Help: "Number of column chunks written.",
		}),
		rowsWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "arrowpq_rows_written_total",
			Help: "Number of logical table rows written.",
		}),
		rowGroupDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "arrowpq_row_group_write_duration_seconds",
			Help:    "Time taken to write one row group across all columns.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
}
