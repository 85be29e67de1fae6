package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readguard_events_total",
		Help: "Kernel events processed, by type.",
	}, []string{"type"})

	stateDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "readguard_state_drops_total",
		Help: "State updates dropped because the store was at capacity.",
	})

	reclaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readguard_state_reclaims_total",
		Help: "State entries reclaimed, by reason (exit or sweep).",
	}, []string{"reason"})
)
