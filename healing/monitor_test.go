package healing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dag-stitch/logger"
	"dag-stitch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	logger.Logger = zap.NewNop()
	goleak.VerifyTestMain(m)
}

// scriptedFetcher answers attempt n with script(n)
type scriptedFetcher struct {
	mu     sync.Mutex
	calls  int
	script func(n int) (*models.LedgerBlock, error)
}

func (f *scriptedFetcher) GetBlock(_ context.Context, _ string) (*models.LedgerBlock, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	return f.script(n)
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingPayer struct {
	mu       sync.Mutex
	payments []string
	amounts  []uint64
	err      error
}

func (p *recordingPayer) PayReward(_ context.Context, address string, amount uint64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments = append(p.payments, address)
	p.amounts = append(p.amounts, amount)
	if p.err != nil {
		return "", p.err
	}
	return "tx-1", nil
}

func coinbaseBlock(hash string, parents []string, payee string) *models.LedgerBlock {
	b := &models.LedgerBlock{BlockInfo: models.BlockInfo{Hash: hash, Parents: parents}}
	if payee != "" {
		b.Transactions = []models.Transaction{{ID: "cb", Outputs: []models.TxOutput{{Address: payee, Amount: 50}}}}
	}
	return b
}

func fastMonitor(fetcher BlockFetcher, payer Payer) (*Monitor, chan Outcome) {
	m := NewMonitor("s1", "target", []string{"B", "C"}, 2_500, fetcher, payer)
	m.Interval = time.Millisecond
	outcomes := make(chan Outcome, 1)
	m.OnOutcome = func(o Outcome) { outcomes <- o }
	return m, outcomes
}

func TestMonitor_PaysOnceWhenHealedOnFifthAttempt(t *testing.T) {
	fetcher := &scriptedFetcher{script: func(n int) (*models.LedgerBlock, error) {
		switch {
		case n <= 2:
			return nil, errors.New("rpc unavailable")
		case n < 5:
			return coinbaseBlock("target", []string{"B"}, "miner"), nil
		default:
			return coinbaseBlock("target", []string{"A", "B", "C"}, "miner"), nil
		}
	}}
	payer := &recordingPayer{}
	m, outcomes := fastMonitor(fetcher, payer)

	m.Run(context.Background())

	out := <-outcomes
	assert.Equal(t, models.StitchHealed, out.Status)
	assert.Equal(t, "tx-1", out.TxID)
	assert.Equal(t, 5, out.Attempts)
	assert.Equal(t, 5, fetcher.Calls())
	assert.Equal(t, []string{"miner"}, payer.payments)
	assert.Equal(t, []uint64{2_500}, payer.amounts)
}

func TestMonitor_ExpiresSilentlyAfterBudget(t *testing.T) {
	fetcher := &scriptedFetcher{script: func(int) (*models.LedgerBlock, error) {
		return coinbaseBlock("target", []string{"B"}, "miner"), nil
	}}
	payer := &recordingPayer{}
	m, outcomes := fastMonitor(fetcher, payer)

	m.Run(context.Background())

	out := <-outcomes
	assert.Equal(t, models.StitchExpired, out.Status)
	assert.NoError(t, out.Err)
	assert.Equal(t, DefaultAttempts, fetcher.Calls())
	assert.Empty(t, payer.payments)
}

func TestMonitor_NoPayeeTerminatesWithoutPayment(t *testing.T) {
	fetcher := &scriptedFetcher{script: func(int) (*models.LedgerBlock, error) {
		return coinbaseBlock("target", []string{"B", "C"}, ""), nil
	}}
	payer := &recordingPayer{}
	m, outcomes := fastMonitor(fetcher, payer)

	m.Run(context.Background())

	out := <-outcomes
	assert.Equal(t, models.StitchUnpaid, out.Status)
	assert.ErrorIs(t, out.Err, ErrNoPayee)
	assert.Equal(t, 1, fetcher.Calls())
	assert.Empty(t, payer.payments)
}

func TestMonitor_PaymentFailureIsNotRetried(t *testing.T) {
	fetcher := &scriptedFetcher{script: func(int) (*models.LedgerBlock, error) {
		return coinbaseBlock("target", []string{"B", "C"}, "miner"), nil
	}}
	payer := &recordingPayer{err: errors.New("insufficient funds")}
	m, outcomes := fastMonitor(fetcher, payer)

	m.Run(context.Background())

	out := <-outcomes
	assert.Equal(t, models.StitchUnpaid, out.Status)
	require.Error(t, out.Err)
	assert.Equal(t, 1, fetcher.Calls())
	assert.Len(t, payer.payments, 1)
}

func TestMonitor_StopsOnCancel(t *testing.T) {
	fetcher := &scriptedFetcher{script: func(int) (*models.LedgerBlock, error) {
		return nil, errors.New("down")
	}}
	m, outcomes := fastMonitor(fetcher, &recordingPayer{})
	m.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	out := <-outcomes
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Zero(t, fetcher.Calls())
}

type tipSequence struct {
	mu    sync.Mutex
	calls int
	tips  func(n int) []string
}

func (l *tipSequence) GetTipHashes(context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.tips(l.calls), nil
}

type blockTable map[string]*models.LedgerBlock

func (t blockTable) GetBlock(_ context.Context, id string) (*models.LedgerBlock, error) {
	b, ok := t[id]
	if !ok {
		return nil, errors.New("unknown block")
	}
	return b, nil
}

func TestMonitor_TipTargetHealsThroughCurrentTips(t *testing.T) {
	blocks := blockTable{
		"C": coinbaseBlock("C", []string{"A"}, "loser"),
		"D": coinbaseBlock("D", []string{"B", "C"}, "miner"),
	}
	tips := &tipSequence{tips: func(n int) []string {
		if n < 3 {
			return []string{"B", "C"}
		}
		return []string{"D"}
	}}
	payer := &recordingPayer{}
	m := NewMonitor("s1", "C", []string{"B", "C"}, 700, blocks, payer)
	m.Interval = time.Millisecond
	m.TipLister = tips
	outcomes := make(chan Outcome, 1)
	m.OnOutcome = func(o Outcome) { outcomes <- o }

	m.Run(context.Background())

	out := <-outcomes
	assert.Equal(t, models.StitchHealed, out.Status)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, "miner", out.Payee)
	assert.Equal(t, []string{"miner"}, payer.payments)
}

func TestMonitor_TipTargetWithoutTipListerExpires(t *testing.T) {
	blocks := blockTable{"C": coinbaseBlock("C", []string{"A"}, "loser")}
	payer := &recordingPayer{}
	m := NewMonitor("s1", "C", []string{"B", "C"}, 700, blocks, payer)
	m.Interval = time.Millisecond
	m.Attempts = 3
	outcomes := make(chan Outcome, 1)
	m.OnOutcome = func(o Outcome) { outcomes <- o }

	m.Run(context.Background())

	out := <-outcomes
	assert.Equal(t, models.StitchExpired, out.Status)
	assert.Empty(t, payer.payments)
}

func TestNewMonitor_CopiesTips(t *testing.T) {
	tips := []string{"B", "C"}
	m := NewMonitor("s", "t", tips, 1, nil, nil)
	tips[0] = "mutated"
	assert.Equal(t, []string{"B", "C"}, m.Tips)
	assert.Equal(t, DefaultInterval, m.Interval)
	assert.Equal(t, DefaultAttempts, m.Attempts)
}

func TestHealed(t *testing.T) {
	assert.True(t, Healed([]string{"B", "C"}, []string{"C", "X", "B"}))
	assert.False(t, Healed([]string{"B", "C"}, []string{"B"}))
	assert.True(t, Healed(nil, []string{"B"}))
}
