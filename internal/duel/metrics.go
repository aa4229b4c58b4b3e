package duel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duel_sessions_created_total",
		Help: "Total duel sessions created.",
	})

	metricSessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duel_sessions_finished_total",
		Help: "Total duel sessions finished, by reason.",
	}, []string{"reason"})

	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duel_active_sessions",
		Help: "Sessions currently held by the registry.",
	})

	metricAnswersAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duel_answers_accepted_total",
		Help: "Answers accepted for scoring.",
	})

	metricQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duel_matchmaking_queue_depth",
		Help: "Players waiting in the matchmaking queue.",
	})
)
