package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks upload issuance and transform outcomes.
type PipelineMetrics struct {
	uploads    *prometheus.CounterVec
	items      *prometheus.CounterVec
	transforms *prometheus.HistogramVec
	deliveries prometheus.Histogram
}

// NewPipelineMetrics registers the pipeline collectors on reg.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	uploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_uploads_issued_total",
		Help: "Upload requests handled, by outcome.",
	}, []string{"outcome"})
	items := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_pipeline_items_total",
		Help: "Object notifications handled by the transform worker, by outcome.",
	}, []string{"outcome"})
	transforms := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gallery_transform_duration_seconds",
		Help:    "Time spent processing one raw object.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"outcome"})
	deliveries := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gallery_notification_batch_size",
		Help:    "Notifications per dispatched batch.",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
	})
	reg.MustRegister(uploads, items, transforms, deliveries)
	return &PipelineMetrics{
		uploads:    uploads,
		items:      items,
		transforms: transforms,
		deliveries: deliveries,
	}
}

// RecordUploadIssued counts one upload request outcome.
func (p *PipelineMetrics) RecordUploadIssued(outcome string) {
	if p == nil || p.uploads == nil {
		return
	}
	p.uploads.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// RecordItem counts one notification outcome.
func (p *PipelineMetrics) RecordItem(outcome string) {
	if p == nil || p.items == nil {
		return
	}
	p.items.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveTransform records the wall time of one processed object.
func (p *PipelineMetrics) ObserveTransform(outcome string, duration time.Duration) {
	if p == nil || p.transforms == nil {
		return
	}
	p.transforms.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// ObserveBatch records the size of one dispatched notification batch.
func (p *PipelineMetrics) ObserveBatch(size int) {
	if p == nil || p.deliveries == nil {
		return
	}
	p.deliveries.Observe(float64(size))
}
