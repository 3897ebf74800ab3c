package index

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the prometheus collectors of an index. A nil *Metrics records nothing.
type Metrics struct {
	chunksAdded     prometheus.Counter
	chunksSkipped   prometheus.Counter
	embedBatches    prometheus.Counter
	queries         *prometheus.CounterVec
	queryDuration   prometheus.Histogram
	distanceAnomaly prometheus.Counter
}

// NewMetrics registers the index collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		chunksAdded: factory.NewCounter(prometheus.CounterOpts{
			Name: "syllabus_index_chunks_added_total",
			Help: "Number of chunks embedded and written to the collection",
		}),
		chunksSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "syllabus_index_chunks_skipped_total",
			Help: "Number of chunks skipped for a missing id or text",
		}),
		embedBatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "syllabus_index_embed_batches_total",
			Help: "Number of embedding calls made while adding documents",
		}),
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "syllabus_index_queries_total",
			Help: "Number of similarity queries by outcome",
		}, []string{"status"}), // status: ok, empty, error
		queryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "syllabus_index_query_duration_seconds",
			Help:    "Duration of similarity queries including the query embedding",
			Buckets: prometheus.DefBuckets,
		}),
		distanceAnomaly: factory.NewCounter(prometheus.CounterOpts{
			Name: "syllabus_index_distance_anomalies_total",
			Help: "Number of negative cosine distances reported by the backend",
		}),
	}
}

func (m *Metrics) added(n int) {
	if m != nil {
		m.chunksAdded.Add(float64(n))
	}
}

func (m *Metrics) skipped(n int) {
	if m != nil && n > 0 {
		m.chunksSkipped.Add(float64(n))
	}
}

func (m *Metrics) batch() {
	if m != nil {
		m.embedBatches.Inc()
	}
}

func (m *Metrics) anomaly() {
	if m != nil {
		m.distanceAnomaly.Inc()
	}
}

func (m *Metrics) query(status string, start time.Time) {
	if m != nil {
		m.queries.WithLabelValues(status).Inc()
		m.queryDuration.Observe(time.Since(start).Seconds())
	}
}
