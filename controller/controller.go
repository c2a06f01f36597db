package controller

import (
	"math"
	"time"

	"dag-stitch/models"
)

// Weights of the two suspicion components
const (
	deltaWeight = 0.7
	rateWeight  = 0.3
)

// Config holds the controller's static parameters
type Config struct {
	Adaptive      bool
	BaseMinDelta  uint64
	BaseRateLimit time.Duration
	MinRateLimit  time.Duration
	BaseReward    uint64
	MaxReward     uint64
	TargetBPS     float64
	SusThreshold  float64
	HistoryWindow int
}

// Controller turns fracture signals into stitch decisions and reward amounts.
// It has a single writer: the stitch loop.
type Controller struct {
	cfg        Config
	orphans    *ring[bool]
	timestamps *ring[uint64]
	lastStitch time.Time
}

// New creates a controller with empty history
func New(cfg Config) *Controller {
	if cfg.HistoryWindow < 1 {
		cfg.HistoryWindow = 1
	}
	if cfg.TargetBPS <= 0 {
		cfg.TargetBPS = 1
	}
	return &Controller{
		cfg:        cfg,
		orphans:    newRing[bool](cfg.HistoryWindow),
		timestamps: newRing[uint64](cfg.HistoryWindow),
	}
}

// UpdateBlock records whether a newly observed block was orphaned
func (c *Controller) UpdateBlock(block models.BlockInfo, isOrphan bool) {
	c.orphans.push(isOrphan)
	c.timestamps.push(block.Timestamp)
}

// OrphanRate is the orphaned fraction of the most recent observations
func (c *Controller) OrphanRate() float64 {
	n := c.orphans.len()
	if n == 0 {
		return 0
	}
	orphaned := 0
	c.orphans.each(func(o bool) {
		if o {
			orphaned++
		}
	})
	return float64(orphaned) / float64(n)
}

// BlockRate estimates blocks per second from the recorded block timestamps.
// It returns the target rate until two distinct timestamps are known.
func (c *Controller) BlockRate() float64 {
	n := c.timestamps.len()
	if n < 2 {
		return c.cfg.TargetBPS
	}
	lo, hi := uint64(math.MaxUint64), uint64(0)
	c.timestamps.each(func(ts uint64) {
		lo = min(lo, ts)
		hi = max(hi, ts)
	})
	if hi == lo {
		return c.cfg.TargetBPS
	}
	return float64(n-1) / (float64(hi-lo) / 1000)
}

// MinDelta is the effective weight gap a fracture must reach.
// In adaptive mode a fractured network lowers the bar by up to half.
func (c *Controller) MinDelta() uint64 {
	if !c.cfg.Adaptive {
		return c.cfg.BaseMinDelta
	}
	return uint64(float64(c.cfg.BaseMinDelta) * (1 - c.OrphanRate()/2))
}

// Cooldown is the effective minimum spacing between stitches, never below MinRateLimit
func (c *Controller) Cooldown() time.Duration {
	cooldown := c.cfg.BaseRateLimit
	if c.cfg.Adaptive {
		cooldown = time.Duration(float64(c.cfg.BaseRateLimit) * (1 - c.OrphanRate()))
	}
	return max(cooldown, c.cfg.MinRateLimit)
}

// Sus scores a fracture in [0, 1]. Larger gaps and block rates far from the target score higher.
func (c *Controller) Sus(delta uint64, bps float64) float64 {
	scale := float64(max(c.cfg.BaseMinDelta, 1))
	deltaScore := 1 - math.Exp(-float64(delta)/scale)

	rateScore := 1.0
	if bps > 0 {
		dev := math.Abs(math.Log(bps / c.cfg.TargetBPS))
		rateScore = dev / (1 + dev)
	}
	return clamp01(deltaWeight*deltaScore + rateWeight*rateScore)
}

// ShouldStitch gates a candidate fracture on threshold, cooldown and, in adaptive mode, suspicion
func (c *Controller) ShouldStitch(delta uint64, bps float64, now time.Time) bool {
	if delta < c.MinDelta() {
		return false
	}
	if c.CoolingDown(now) {
		return false
	}
	if !c.cfg.Adaptive {
		return true
	}
	return c.Sus(delta, bps) >= c.cfg.SusThreshold
}

// CoolingDown reports whether now is still inside the cooldown of the last stitch
func (c *Controller) CoolingDown(now time.Time) bool {
	return !c.lastStitch.IsZero() && now.Sub(c.lastStitch) < c.Cooldown()
}

// Reward interpolates between the base and maximum reward. Fixed at base when not adaptive.
func (c *Controller) Reward(sus float64) uint64 {
	if !c.cfg.Adaptive || c.cfg.MaxReward <= c.cfg.BaseReward {
		return c.cfg.BaseReward
	}
	span := float64(c.cfg.MaxReward - c.cfg.BaseReward)
	reward := c.cfg.BaseReward + uint64(math.Round(span*clamp01(sus)))
	return min(reward, c.cfg.MaxReward)
}

// RecordStitch closes the rate-limit window starting at now
func (c *Controller) RecordStitch(now time.Time) {
	c.lastStitch = now
}

// LastStitch returns the time of the last recorded stitch, zero if none
func (c *Controller) LastStitch() time.Time {
	return c.lastStitch
}

// Checkpoint captures the state that must survive a restart
func (c *Controller) Checkpoint(now time.Time) *models.Checkpoint {
	cp := &models.Checkpoint{
		ID:        "controller",
		Timestamp: now.UnixMilli(),
	}
	if !c.lastStitch.IsZero() {
		cp.LastStitch = c.lastStitch.UnixMilli()
	}
	c.orphans.each(func(o bool) {
		cp.OrphanHistory = append(cp.OrphanHistory, o)
	})
	return cp
}

// Restore loads state from a checkpoint. Block timestamps are not restored.
func (c *Controller) Restore(cp *models.Checkpoint) {
	if cp == nil {
		return
	}
	if cp.LastStitch > 0 {
		c.lastStitch = time.UnixMilli(cp.LastStitch)
	}
	for _, o := range cp.OrphanHistory {
		c.orphans.push(o)
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
