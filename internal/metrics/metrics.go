// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Cache lookups by level and outcome.",
	}, []string{"level", "outcome"})

	CacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "cache",
		Name:      "invalidations_total",
		Help:      "Entity-level cache invalidations triggered by writes.",
	})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "arbitrage",
		Subsystem: "pipeline",
		Name:      "cycle_duration_seconds",
		Help:      "Wall-clock duration of pipeline cycles.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "pipeline",
		Name:      "cycles_total",
		Help:      "Completed pipeline cycles by result.",
	}, []string{"result"})

	EntitiesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "pipeline",
		Name:      "entities_processed_total",
		Help:      "Due entities processed across all cycles.",
	})

	UnitsDeferred = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "pipeline",
		Name:      "units_deferred_total",
		Help:      "Work units pushed to a later cycle by the budget or shutdown.",
	})

	MatchesScored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "matching",
		Name:      "pairs_scored_total",
		Help:      "Candidate pairs scored by decision.",
	}, []string{"decision"})

	OpportunitiesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "opportunities",
		Name:      "detected_total",
		Help:      "Opportunities emitted by risk level.",
	}, []string{"risk_level"})

	ActiveOpportunities = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbitrage",
		Subsystem: "opportunities",
		Name:      "active",
		Help:      "Currently non-expired opportunities.",
	})

	TierEntities = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "arbitrage",
		Subsystem: "scheduler",
		Name:      "tier_entities",
		Help:      "Tracked entities per tier.",
	}, []string{"tier"})

	PriceWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "prices",
		Name:      "writes_total",
		Help:      "Price observation writes by outcome.",
	}, []string{"outcome"})
)
