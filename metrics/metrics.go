package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BlocksIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dagstitch_blocks_ingested_total",
		Help: "Blocks inserted into the DAG window",
	})

	BlocksDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dagstitch_blocks_duplicate_total",
		Help: "Block notifications ignored because the block was already resident",
	})

	Orphans = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dagstitch_orphans_total",
		Help: "Blocks classified off the selected chain",
	})

	FracturesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dagstitch_fractures_detected_total",
		Help: "Fracture candidates found in the window",
	})

	StitchesDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dagstitch_stitches_dispatched_total",
		Help: "Stitch requests broadcast",
	})

	StitchesSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dagstitch_stitches_suppressed_total",
		Help: "Fracture candidates not stitched, by reason",
	}, []string{"reason"})

	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dagstitch_broadcast_failures_total",
		Help: "Stitch broadcasts that failed",
	})

	Healings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dagstitch_healings_total",
		Help: "Healing monitor outcomes, by status",
	}, []string{"status"})

	RewardsPaid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dagstitch_rewards_paid_sompi_total",
		Help: "Sum of rewards paid",
	})

	OrphanRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dagstitch_orphan_rate",
		Help: "Rolling orphan rate",
	})

	BlockRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dagstitch_block_rate",
		Help: "Observed blocks per second",
	})

	WindowSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dagstitch_window_size",
		Help: "Blocks resident in the DAG window",
	})
)

// Suppression reasons
const (
	ReasonGate      = "gate"
	ReasonDuplicate = "duplicate"
)
