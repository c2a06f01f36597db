package healing

import (
	"context"
	"errors"
	"time"

	"dag-stitch/logger"
	"dag-stitch/models"

	"go.uber.org/zap"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultAttempts = 30
)

var ErrNoPayee = errors.New("block has no coinbase output to pay")

// BlockFetcher is the ledger lookup the monitor polls
type BlockFetcher interface {
	GetBlock(ctx context.Context, id string) (*models.LedgerBlock, error)
}

// TipLister lists the ledger's current DAG tips
type TipLister interface {
	GetTipHashes(ctx context.Context) ([]string, error)
}

// Payer pays a reward to an address and returns the submitted transaction id
type Payer interface {
	PayReward(ctx context.Context, address string, amount uint64) (string, error)
}

// Outcome is the terminal result of one monitor
type Outcome struct {
	StitchID string
	Status   string
	TxID     string
	Payee    string
	Reward   uint64
	Attempts int
	Err      error
}

// Monitor watches one dispatched stitch until its tips are merged or the attempt budget runs out.
// Every field is owned by the monitor; nothing is shared with the stitch loop.
type Monitor struct {
	StitchID string
	Target   string
	Tips     []string
	Reward   uint64

	Fetcher BlockFetcher
	Payer   Payer

	// TipLister, if set, makes each attempt check the ledger's current tips instead of Target.
	// A block cannot list itself as a parent, so a Target inside Tips never heals on its own.
	TipLister TipLister

	Interval time.Duration
	Attempts int

	// OnOutcome, if set, is called exactly once when the monitor terminates
	OnOutcome func(Outcome)
}

// NewMonitor copies the tip set and applies the default polling schedule
func NewMonitor(stitchID, target string, tips []string, reward uint64, fetcher BlockFetcher, payer Payer) *Monitor {
	return &Monitor{
		StitchID: stitchID,
		Target:   target,
		Tips:     append([]string(nil), tips...),
		Reward:   reward,
		Fetcher:  fetcher,
		Payer:    payer,
		Interval: DefaultInterval,
		Attempts: DefaultAttempts,
	}
}

// Run polls until healed, the budget is spent or ctx is cancelled
func (m *Monitor) Run(ctx context.Context) {
	out := m.run(ctx)
	if m.OnOutcome != nil {
		m.OnOutcome(out)
	}
}

func (m *Monitor) run(ctx context.Context) Outcome {
	out := Outcome{StitchID: m.StitchID, Status: models.StitchExpired}

	timer := time.NewTimer(m.Interval)
	defer timer.Stop()

	for attempt := 1; attempt <= m.Attempts; attempt++ {
		select {
		case <-ctx.Done():
			out.Err = ctx.Err()
			return out
		case <-timer.C:
		}
		out.Attempts = attempt

		block := m.poll(ctx)
		if block == nil {
			timer.Reset(m.Interval)
			continue
		}

		logger.Logger.Info("Fracture healed",
			zap.String("stitch_id", m.StitchID),
			zap.String("block", block.Hash),
			zap.Int("attempt", attempt))

		out.Status = models.StitchUnpaid
		payee, err := PayeeAddress(block)
		if err != nil {
			out.Err = err
			logger.Logger.Warn("Cannot resolve reward payee",
				zap.String("stitch_id", m.StitchID), zap.Error(err))
			return out
		}
		out.Payee = payee

		txid, err := m.Payer.PayReward(ctx, payee, m.Reward)
		if err != nil {
			out.Err = err
			logger.Logger.Warn("Reward payment failed",
				zap.String("stitch_id", m.StitchID),
				zap.String("payee", payee),
				zap.Error(err))
			return out
		}

		out.Status = models.StitchHealed
		out.TxID = txid
		out.Reward = m.Reward
		logger.Logger.Info("Reward sent",
			zap.String("stitch_id", m.StitchID),
			zap.String("payee", payee),
			zap.Uint64("reward_sompi", m.Reward),
			zap.String("txid", txid))
		return out
	}

	logger.Logger.Warn("Fracture not healed",
		zap.String("stitch_id", m.StitchID),
		zap.String("block", m.Target),
		zap.Int("attempts", out.Attempts))
	return out
}

// poll returns the first candidate block that merges every tip, or nil
func (m *Monitor) poll(ctx context.Context) *models.LedgerBlock {
	candidates := []string{m.Target}
	if m.TipLister != nil {
		hashes, err := m.TipLister.GetTipHashes(ctx)
		if err != nil {
			return nil
		}
		candidates = hashes
	}

	for _, hash := range candidates {
		block, err := m.Fetcher.GetBlock(ctx, hash)
		if err != nil || block == nil {
			continue
		}
		if Healed(m.Tips, block.Parents) {
			return block
		}
	}
	return nil
}

// Healed reports whether every expected tip is now a direct parent
func Healed(tips, parents []string) bool {
	set := make(map[string]struct{}, len(parents))
	for _, p := range parents {
		set[p] = struct{}{}
	}
	for _, t := range tips {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

// PayeeAddress resolves the miner address from the first output of the block's first transaction
func PayeeAddress(block *models.LedgerBlock) (string, error) {
	if len(block.Transactions) == 0 || len(block.Transactions[0].Outputs) == 0 {
		return "", ErrNoPayee
	}
	addr := block.Transactions[0].Outputs[0].Address
	if addr == "" {
		return "", ErrNoPayee
	}
	return addr, nil
}
