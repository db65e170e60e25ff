package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	FramesEmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "videoengine",
		Name:      "frames_emitted_total",
		Help:      "Total number of frames published via on_frame.",
	})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "videoengine",
		Name:      "cache_hits_total",
		Help:      "Total number of frame cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "videoengine",
		Name:      "cache_misses_total",
		Help:      "Total number of frame cache misses.",
	})

	CacheSizeFrames = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "videoengine",
		Name:      "cache_size_frames",
		Help:      "Current number of frames held in the frame cache.",
	})

	ReportedFPS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "videoengine",
		Name:      "reported_fps",
		Help:      "Most recently reported effective playback fps.",
	})

	WorkerRestartsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "videoengine",
		Name:      "worker_restarts_total",
		Help:      "Total number of transient errors reported by the streamer worker loop, which keeps running after each one.",
	})

	ErrorBudgetExceededTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "videoengine",
		Name:      "error_budget_exceeded_total",
		Help:      "Total number of times the streamer worker's error budget was exceeded, forcing termination.",
	})

	ConsecutiveErrors = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "videoengine",
		Name:      "consecutive_errors",
		Help:      "Current consecutive error count observed by the streamer supervisor.",
	})

	SeekRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "videoengine",
		Name:      "seek_requests_total",
		Help:      "Total number of seek requests accepted by the seek arbiter.",
	})

	SeekCoalescedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "videoengine",
		Name:      "seek_coalesced_total",
		Help:      "Total number of seek requests superseded before being consumed.",
	})

	DecoderSeekDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "videoengine",
		Name:      "decoder_seek_duration_seconds",
		Help:      "Duration of decoder position_to calls in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
	})

	DecoderReadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "videoengine",
		Name:      "decoder_read_duration_seconds",
		Help:      "Duration of decoder read_next calls in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
	})

	PrefetchFetchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "videoengine",
		Name:      "prefetch_fetches_total",
		Help:      "Total number of frames fetched by the cache prefetcher.",
	})
)

// Register registers every collector with reg. Called once at process
// startup, mirroring the teacher's cmd/server/main.go wiring.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		FramesEmittedTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		CacheSizeFrames,
		ReportedFPS,
		WorkerRestartsTotal,
		ErrorBudgetExceededTotal,
		ConsecutiveErrors,
		SeekRequestsTotal,
		SeekCoalescedTotal,
		DecoderSeekDuration,
		DecoderReadDuration,
		PrefetchFetchesTotal,
	)
}
