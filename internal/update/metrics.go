package update

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blacksmith",
		Subsystem: "update",
		Name:      "runs_started_total",
		Help:      "Number of regeneration runs started.",
	})

	runsSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blacksmith",
		Subsystem: "update",
		Name:      "runs_superseded_total",
		Help:      "Number of in-flight runs cancelled by a newer request.",
	})

	runInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "blacksmith",
		Subsystem: "update",
		Name:      "run_in_flight",
		Help:      "Whether a regeneration run is currently executing (0 or 1).",
	})

	generationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blacksmith",
		Subsystem: "update",
		Name:      "generation_failures_total",
		Help:      "Generation capability failures, by target. These skip the target, not the run.",
	}, []string{"target"})

	targetsRegenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blacksmith",
		Subsystem: "update",
		Name:      "targets_regenerated_total",
		Help:      "Targets whose generated file set was written and staged.",
	})
)
