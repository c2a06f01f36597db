package stitcher

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"dag-stitch/controller"
	"dag-stitch/dag"
	"dag-stitch/healing"
	"dag-stitch/ledger"
	"dag-stitch/logger"
	"dag-stitch/metrics"
	"dag-stitch/models"
	"dag-stitch/repository"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/libp2p/go-libp2p/core/crypto"
	"go.uber.org/zap"
)

const recentStitches = 256

// Ledger is the subset of the ledger node the stitcher needs
type Ledger interface {
	GetTipHashes(ctx context.Context) ([]string, error)
	GetBlock(ctx context.Context, id string) (*models.LedgerBlock, error)
}

// BlockSource yields block-added notifications in arrival order
type BlockSource interface {
	Blocks() <-chan models.LedgerBlock
	Err() error
}

// Broadcaster publishes signed stitch requests
type Broadcaster interface {
	BroadcastStitch(ctx context.Context, weakID string, tips []string, reward uint64, key crypto.PrivKey) (*models.StitchRequest, error)
}

// Deps are the collaborators wired into a Stitcher
type Deps struct {
	Window      *dag.Window
	Controller  *controller.Controller
	Ledger      Ledger
	Broadcaster Broadcaster
	Payer       healing.Payer
	Key         crypto.PrivKey

	// Journal is optional
	Journal repository.StitchRepositoryInterface

	// DedupeTTL is how long an identical fracture stays suppressed after dispatch.
	// Defaults to one healing monitor's lifetime.
	DedupeTTL time.Duration

	// Now and Spawn default to time.Now and starting the monitor on its own goroutine
	Now   func() time.Time
	Spawn func(ctx context.Context, m *healing.Monitor)
}

// Stitcher is the event loop: every notification flows through window, controller and,
// when a fracture qualifies, broadcast and a detached healing monitor.
// Window and controller are only touched from the loop goroutine.
type Stitcher struct {
	window      *dag.Window
	ctrl        *controller.Controller
	ledger      Ledger
	broadcaster Broadcaster
	payer       healing.Payer
	key         crypto.PrivKey
	journal     repository.StitchRepositoryInterface
	now         func() time.Time
	spawn       func(ctx context.Context, m *healing.Monitor)

	recent     *lru.Cache[string, time.Time]
	dedupeTTL  time.Duration
	blocksSeen uint64
	status     atomic.Pointer[models.Status]
}

// New wires a stitcher and restores controller state from the journal's latest checkpoint
func New(deps Deps) (*Stitcher, error) {
	if deps.Window == nil || deps.Controller == nil || deps.Ledger == nil || deps.Broadcaster == nil || deps.Payer == nil {
		return nil, errors.New("stitcher: missing dependency")
	}

	recent, err := lru.New[string, time.Time](recentStitches)
	if err != nil {
		return nil, err
	}

	s := &Stitcher{
		window:      deps.Window,
		ctrl:        deps.Controller,
		ledger:      deps.Ledger,
		broadcaster: deps.Broadcaster,
		payer:       deps.Payer,
		key:         deps.Key,
		journal:     deps.Journal,
		now:         deps.Now,
		spawn:       deps.Spawn,
		recent:      recent,
		dedupeTTL:   deps.DedupeTTL,
	}
	if s.dedupeTTL <= 0 {
		s.dedupeTTL = healing.DefaultAttempts * healing.DefaultInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.spawn == nil {
		s.spawn = func(ctx context.Context, m *healing.Monitor) { go m.Run(ctx) }
	}

	if s.journal != nil {
		cp, err := s.journal.GetLatestCheckpoint()
		if err != nil {
			logger.Logger.Warn("Failed to load controller checkpoint", zap.Error(err))
		} else if cp != nil {
			s.ctrl.Restore(cp)
			logger.Logger.Info("Controller state restored",
				zap.Int64("last_stitch", cp.LastStitch),
				zap.Int("orphan_history", len(cp.OrphanHistory)))
		}
	}

	s.publishStatus()
	return s, nil
}

// Run consumes notifications until the stream ends or ctx is cancelled.
// A closed stream is returned as an error wrapping ledger.ErrStreamClosed.
func (s *Stitcher) Run(ctx context.Context, src BlockSource) error {
	defer s.checkpoint()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case block, ok := <-src.Blocks():
			if !ok {
				if err := src.Err(); err != nil {
					return err
				}
				return ledger.ErrStreamClosed
			}
			s.Process(ctx, block)
		}
	}
}

// Process handles one block-added notification
func (s *Stitcher) Process(ctx context.Context, block models.LedgerBlock) {
	info := block.Info()
	if !s.window.AddBlock(info) {
		metrics.BlocksDuplicate.Inc()
		logger.Logger.Debug("Duplicate block ignored", zap.String("hash", info.Hash))
		return
	}
	defer s.publishStatus()

	s.blocksSeen++
	metrics.BlocksIngested.Inc()

	orphan := !s.window.IsInSelectedChain(info.Hash)
	if orphan {
		metrics.Orphans.Inc()
	}
	s.ctrl.UpdateBlock(info, orphan)

	logger.Logger.Info("New block",
		zap.String("hash", info.Hash),
		zap.Uint64("blue_score", info.BlueScore),
		zap.Bool("orphan", orphan))

	now := s.now()
	if s.ctrl.CoolingDown(now) {
		logger.Logger.Debug("Cooling down, fracture scan skipped", zap.String("hash", info.Hash))
		return
	}

	frac, found := s.window.FindFracture(s.ctrl.MinDelta())
	if !found {
		return
	}
	metrics.FracturesDetected.Inc()

	tips := frac.TipHashes()
	logger.Logger.Info("Fracture detected",
		zap.String("weak_block", frac.Weak.Hash),
		zap.Strings("tips", tips),
		zap.Uint64("delta", frac.MinDelta),
		zap.Float64("centrality", frac.Centrality))

	key := fractureKey(frac.Weak.Hash, tips)
	if at, seen := s.recent.Get(key); seen && now.Sub(at) < s.dedupeTTL {
		metrics.StitchesSuppressed.WithLabelValues(metrics.ReasonDuplicate).Inc()
		logger.Logger.Debug("Fracture already stitched", zap.String("weak_block", frac.Weak.Hash))
		return
	}

	bps := s.ctrl.BlockRate()
	if !s.ctrl.ShouldStitch(frac.MinDelta, bps, now) {
		metrics.StitchesSuppressed.WithLabelValues(metrics.ReasonGate).Inc()
		logger.Logger.Info("Stitch suppressed",
			zap.String("weak_block", frac.Weak.Hash),
			zap.Uint64("delta", frac.MinDelta),
			zap.Float64("bps", bps))
		return
	}

	sus := s.ctrl.Sus(frac.MinDelta, bps)
	reward := s.ctrl.Reward(sus)

	req, err := s.broadcaster.BroadcastStitch(ctx, frac.Weak.Hash, tips, reward, s.key)
	if err != nil {
		metrics.BroadcastFailures.Inc()
		logger.Logger.Warn("Stitch broadcast failed",
			zap.String("weak_block", frac.Weak.Hash),
			zap.Error(err))
		return
	}

	s.ctrl.RecordStitch(now)
	s.recent.Add(key, now)
	metrics.StitchesDispatched.Inc()
	logger.Logger.Info("Stitch request sent",
		zap.String("stitch_id", req.ID),
		zap.String("weak_block", frac.Weak.Hash),
		zap.Strings("tips", tips),
		zap.Float64("sus", sus),
		zap.Uint64("reward_sompi", reward))

	s.journalStitch(&models.StitchRecord{
		ID:           req.ID,
		WeakBlock:    frac.Weak.Hash,
		Tips:         tips,
		TriggerBlock: info.Hash,
		Reward:       reward,
		Suspicion:    sus,
		Status:       models.StitchPending,
		CreatedAt:    now.UnixMilli(),
		UpdatedAt:    now.UnixMilli(),
	})
	s.checkpoint()

	monitor := healing.NewMonitor(req.ID, info.Hash, tips, reward, s.ledger, s.payer)
	monitor.OnOutcome = s.recordOutcome
	if slices.Contains(tips, info.Hash) {
		monitor.TipLister = s.ledger
	}
	s.spawn(ctx, monitor)
}

// Status returns the latest loop snapshot; safe for concurrent use
func (s *Stitcher) Status() *models.Status {
	return s.status.Load()
}

func (s *Stitcher) publishStatus() {
	st := &models.Status{
		WindowSize:     s.window.Len(),
		WindowCapacity: s.window.Capacity(),
		BlocksSeen:     s.blocksSeen,
		OrphanRate:     s.ctrl.OrphanRate(),
		BlockRate:      s.ctrl.BlockRate(),
		MinDelta:       s.ctrl.MinDelta(),
		Cooldown:       s.ctrl.Cooldown().String(),
		UpdatedAt:      s.now(),
	}
	if last := s.ctrl.LastStitch(); !last.IsZero() {
		st.LastStitch = &last
	}
	s.status.Store(st)

	metrics.WindowSize.Set(float64(st.WindowSize))
	metrics.OrphanRate.Set(st.OrphanRate)
	metrics.BlockRate.Set(st.BlockRate)
}

func (s *Stitcher) checkpoint() {
	if s.journal == nil {
		return
	}
	if err := s.journal.PutCheckpoint(s.ctrl.Checkpoint(s.now())); err != nil {
		logger.Logger.Warn("Failed to checkpoint controller", zap.Error(err))
	}
}

func (s *Stitcher) journalStitch(rec *models.StitchRecord) {
	if s.journal == nil {
		return
	}
	if err := s.journal.PutStitch(rec); err != nil {
		logger.Logger.Warn("Failed to journal stitch", zap.String("stitch_id", rec.ID), zap.Error(err))
	}
}

// recordOutcome runs on the monitor's goroutine and only touches the journal and metrics
func (s *Stitcher) recordOutcome(out healing.Outcome) {
	metrics.Healings.WithLabelValues(out.Status).Inc()
	if out.Status == models.StitchHealed {
		metrics.RewardsPaid.Add(float64(out.Reward))
	}

	if s.journal == nil {
		return
	}
	rec, err := s.journal.GetStitch(out.StitchID)
	if err != nil {
		logger.Logger.Warn("Healing outcome for unknown stitch", zap.String("stitch_id", out.StitchID), zap.Error(err))
		return
	}
	rec.Status = out.Status
	rec.TxID = out.TxID
	rec.Attempts = out.Attempts
	rec.UpdatedAt = s.now().UnixMilli()
	s.journalStitch(rec)
}

func fractureKey(weak string, tips []string) string {
	return weak + "|" + strings.Join(tips, ",")
}
