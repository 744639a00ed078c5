package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAnnouncements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "announce_sessions_total",
		Help: "Announcement sessions by outcome",
	}, []string{"outcome"})

	metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "announce_state_transitions_total",
		Help: "Session state transitions",
	}, []string{"from", "to"})

	metricSpeakRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "announce_speak_retries_total",
		Help: "Retried speak calls",
	})

	metricRestores = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "announce_restores_total",
		Help: "Speaker restorations by path",
	}, []string{"path"})

	metricSkippedSpeakers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "announce_speakers_skipped_total",
		Help: "Speakers excluded as unavailable at session start",
	})

	metricSessionMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "announce_session_ms",
		Help:    "Full session wall time (ms)",
		Buckets: prometheus.ExponentialBuckets(100, 1.8, 12),
	})

	metricPrepareMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "announce_prepare_ms",
		Help:    "Preparation phase wall time (ms)",
		Buckets: prometheus.ExponentialBuckets(50, 1.8, 10),
	})
)
