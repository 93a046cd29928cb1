// Package metrics exports the Prometheus collectors for live sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zynk"

// Registry holds every collector served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Live sessions currently registered.",
	})
	sessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Sessions that reached a terminal state, by outcome.",
	}, []string{"outcome"})
	mediaUnits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "media_units_total",
		Help:      "Inbound media units, by kind and whether they were kept.",
	}, []string{"kind", "result"})
	inferenceCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inference_calls_total",
		Help:      "Feedback inference calls, by result.",
	}, []string{"result"})
	inferenceDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "inference_duration_seconds",
		Help:      "Latency of feedback inference calls.",
		Buckets:   prometheus.DefBuckets,
	})
	encodeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "encode_duration_seconds",
		Help:      "Duration of ffmpeg invocations, by strategy and result.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"strategy", "result"})
	uploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_total",
		Help:      "Artifact uploads, by result.",
	}, []string{"result"})
	segmentsPersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feedback_segments_total",
		Help:      "Feedback segments flushed at session end, by result.",
	}, []string{"result"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		activeSessions,
		sessionsTotal,
		mediaUnits,
		inferenceCalls,
		inferenceDuration,
		encodeDuration,
		uploads,
		segmentsPersisted,
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// SetActiveSessions records the registry size.
func SetActiveSessions(n int) { activeSessions.Set(float64(n)) }

// SessionEnded counts a terminal session.
func SessionEnded(outcome string) { sessionsTotal.WithLabelValues(outcome).Inc() }

// MediaReceived counts one inbound frame, audio chunk, video chunk or blob.
func MediaReceived(kind string, kept bool) {
	r := "kept"
	if !kept {
		r = "dropped"
	}
	mediaUnits.WithLabelValues(kind, r).Inc()
}

// InferenceObserved records one inference call. result is "actionable",
// "ok", "unavailable" or "error".
func InferenceObserved(resultLabel string, d time.Duration) {
	inferenceCalls.WithLabelValues(resultLabel).Inc()
	inferenceDuration.Observe(d.Seconds())
}

// EncodeObserved records one ffmpeg invocation.
func EncodeObserved(strategy string, d time.Duration, err error) {
	encodeDuration.WithLabelValues(strategy, result(err)).Observe(d.Seconds())
}

// UploadObserved records one artifact upload.
func UploadObserved(err error) { uploads.WithLabelValues(result(err)).Inc() }

// SegmentsFlushed records a feedback batch.
func SegmentsFlushed(count int, err error) {
	segmentsPersisted.WithLabelValues(result(err)).Add(float64(count))
}
