// Package metrics – Prometheus метрики гейта.
//
//   - verigate_verification_total{leg,result}   – ответы плеч верификации (ok|degraded)
//   - verigate_verification_seconds{leg}        – задержка плеча
//   - verigate_previews_total{result}           – исход preview (ok|rejected|safe_mode|canceled|invalid)
//   - verigate_decisions_total{decision}        – метки допуска
//   - verigate_anchors_total{kind,result}       – анкоринг (anchored|absent|skipped)
//   - verigate_anchor_queue_dropped_total       – задания, не попавшие в очередь
//   - verigate_anchor_worker_running            – 1 если worker запущен
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	verificationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verigate_verification_total",
			Help: "Verification leg results",
		},
		[]string{"leg", "result"},
	)

	verificationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verigate_verification_seconds",
			Help:    "Verification leg latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"leg"},
	)

	previewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verigate_previews_total",
			Help: "Preview pipeline outcomes",
		},
		[]string{"result"},
	)

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verigate_decisions_total",
			Help: "Admission decisions",
		},
		[]string{"decision"},
	)

	anchorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verigate_anchors_total",
			Help: "Anchoring attempts by kind and result",
		},
		[]string{"kind", "result"},
	)

	anchorQueueDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verigate_anchor_queue_dropped_total",
			Help: "Anchor jobs dropped because the queue was full",
		},
	)

	anchorWorkerRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "verigate_anchor_worker_running",
			Help: "1 while the anchor worker is running",
		},
	)
)

func init() {
	prometheus.MustRegister(verificationTotal, verificationSeconds)
	prometheus.MustRegister(previewsTotal, decisionsTotal)
	prometheus.MustRegister(anchorsTotal, anchorQueueDropped, anchorWorkerRunning)
}

// ObserveVerification учитывает ответ одного плеча
func ObserveVerification(leg string, degraded bool, took time.Duration) {
	result := "ok"
	if degraded {
		result = "degraded"
	}
	verificationTotal.WithLabelValues(leg, result).Inc()
	verificationSeconds.WithLabelValues(leg).Observe(took.Seconds())
}

// IncPreview учитывает исход preview
func IncPreview(result string) {
	previewsTotal.WithLabelValues(result).Inc()
}

// IncDecision учитывает метку допуска
func IncDecision(decision string) {
	decisionsTotal.WithLabelValues(decision).Inc()
}

// IncAnchor учитывает попытку анкоринга
func IncAnchor(kind, result string) {
	anchorsTotal.WithLabelValues(kind, result).Inc()
}

// IncAnchorDropped учитывает отброшенное задание
func IncAnchorDropped() {
	anchorQueueDropped.Inc()
}

// SetAnchorWorkerRunning выставляет состояние worker
func SetAnchorWorkerRunning(running bool) {
	if running {
		anchorWorkerRunning.Set(1)
		return
	}
	anchorWorkerRunning.Set(0)
}
