package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	PlaybackPlaying = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hypnotone_playback_playing",
		Help: "1 while a stage is generating audio, 0 when idle",
	})
	ActiveListeners = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hypnotone_active_listeners",
		Help: "Number of connected WebRTC listeners",
	})
	CatalogSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hypnotone_catalog_sessions",
		Help: "Number of sessions in the loaded catalog",
	})
)

// Counters
var (
	SessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hypnotone_sessions_started_total",
		Help: "Total session runs started",
	})
	SessionsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hypnotone_sessions_finished_total",
		Help: "Total session runs finished by reason",
	}, []string{"reason"})
	StagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hypnotone_stages_total",
		Help: "Total stages by waveform and outcome",
	}, []string{"waveform", "outcome"})
	FramesWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hypnotone_frames_written_total",
		Help: "Total PCM frames accepted by the audio sink",
	})
	SinkOpenErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hypnotone_sink_open_errors_total",
		Help: "Total failures to open the audio output",
	})
	SinkWriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hypnotone_sink_write_errors_total",
		Help: "Total audio writes that failed for reasons other than stop",
	})
	StopTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hypnotone_stop_timeouts_total",
		Help: "Total stops where the generator missed the cooperative deadline",
	})
	StopAbandonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hypnotone_stop_abandoned_total",
		Help: "Total stops where the generator stayed blocked after its sink was closed",
	})
	NarrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hypnotone_narrations_total",
		Help: "Total narration requests by outcome",
	}, []string{"outcome"})
	CatalogReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hypnotone_catalog_reloads_total",
		Help: "Total session catalog loads by outcome",
	}, []string{"outcome"})
	ListenersRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hypnotone_listeners_rejected_total",
		Help: "Listeners rejected due to capacity limit",
	})
)

// Histograms
var (
	StopLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hypnotone_stop_duration_ms",
		Help:    "Time for the generation worker to stop, in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 200, 500, 1000},
	})
	EncodeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hypnotone_opus_encode_duration_ms",
		Help:    "Opus encode duration per 20ms packet, in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
)
