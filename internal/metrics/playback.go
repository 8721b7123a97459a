// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package metrics exposes prometheus instrumentation for the preview engine.
// Label values are normalized to a closed set to keep cardinality strict.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StrategyVideoNarration = "video_narration"
	StrategyVideoOnly      = "video_only"
	StrategyAudioOnly      = "audio_only"
	StrategyStatic         = "static"
	strategyUnknown        = "unknown"

	OutcomeFinished  = "finished"
	OutcomeCancelled = "cancelled"
	OutcomeDegraded  = "degraded"
	outcomeUnknown   = "unknown"

	SeekSameScene  = "same_scene"
	SeekCrossScene = "cross_scene"
	seekUnknown    = "unknown"

	PreloadKindImage = "image"
	PreloadKindAudio = "audio"
	PreloadKindVideo = "video"
	preloadUnknown   = "unknown"
)

var (
	playbackStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyplay_playback_start_total",
		Help: "Scene playback starts by strategy",
	}, []string{"strategy"})

	playbackOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyplay_playback_outcome_total",
		Help: "Scene playback outcomes by strategy and outcome",
	}, []string{"strategy", "outcome"})

	seekTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyplay_seek_total",
		Help: "Timeline seeks by branch",
	}, []string{"branch"})

	preloadFailureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyplay_preload_failure_total",
		Help: "Swallowed preload failures by resource kind",
	}, []string{"kind"})

	syncDriftSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storyplay_sync_drift_seconds",
		Help:    "Absolute audio/video drift observed per tick in combined scenes",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
)

// IncPlaybackStart increments scene playback starts.
func IncPlaybackStart(strategy string) {
	playbackStartTotal.WithLabelValues(normalizeStrategy(strategy)).Inc()
}

// IncPlaybackOutcome increments scene playback outcomes.
func IncPlaybackOutcome(strategy, outcome string) {
	playbackOutcomeTotal.WithLabelValues(normalizeStrategy(strategy), normalizeOutcome(outcome)).Inc()
}

// IncSeek increments seeks by branch.
func IncSeek(branch string) {
	switch branch {
	case SeekSameScene, SeekCrossScene:
	default:
		branch = seekUnknown
	}
	seekTotal.WithLabelValues(branch).Inc()
}

// IncPreloadFailure increments swallowed preload failures.
func IncPreloadFailure(kind string) {
	switch kind {
	case PreloadKindImage, PreloadKindAudio, PreloadKindVideo:
	default:
		kind = preloadUnknown
	}
	preloadFailureTotal.WithLabelValues(kind).Inc()
}

// ObserveSyncDrift records the absolute drift seen on a combined-scene tick.
func ObserveSyncDrift(seconds float64) {
	if seconds < 0 {
		seconds = -seconds
	}
	syncDriftSeconds.Observe(seconds)
}

func normalizeStrategy(s string) string {
	switch s {
	case StrategyVideoNarration, StrategyVideoOnly, StrategyAudioOnly, StrategyStatic:
		return s
	default:
		return strategyUnknown
	}
}

func normalizeOutcome(o string) string {
	switch o {
	case OutcomeFinished, OutcomeCancelled, OutcomeDegraded:
		return o
	default:
		return outcomeUnknown
	}
}
