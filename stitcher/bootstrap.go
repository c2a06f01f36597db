package stitcher

import (
	"context"
	"fmt"
	"sort"

	"dag-stitch/logger"
	"dag-stitch/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const bootstrapConcurrency = 8

// Bootstrap fills the window with up to its capacity of recent blocks, walking back from the
// current tips through parents. Blocks that fail to fetch are skipped.
// Insertion is oldest first so parent edges form.
func (s *Stitcher) Bootstrap(ctx context.Context) error {
	tips, err := s.ledger.GetTipHashes(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	capacity := s.window.Capacity()
	collected := make(map[string]*models.LedgerBlock, capacity)
	queued := make(map[string]struct{})
	frontier := make([]string, 0, len(tips))
	for _, h := range tips {
		if _, dup := queued[h]; !dup {
			queued[h] = struct{}{}
			frontier = append(frontier, h)
		}
	}

	for len(frontier) > 0 && len(collected) < capacity {
		if remaining := capacity - len(collected); len(frontier) > remaining {
			frontier = frontier[:remaining]
		}

		fetched, err := s.fetchAll(ctx, frontier)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}

		var next []string
		for _, b := range fetched {
			if b == nil || len(collected) >= capacity {
				continue
			}
			collected[b.Hash] = b
			for _, p := range b.Parents {
				if _, seen := queued[p]; seen {
					continue
				}
				queued[p] = struct{}{}
				next = append(next, p)
			}
		}
		frontier = next
	}

	blocks := make([]models.BlockInfo, 0, len(collected))
	for _, b := range collected {
		blocks = append(blocks, b.Info())
	}
	sort.Slice(blocks, func(i, j int) bool {
		a, b := blocks[i], blocks[j]
		if a.BlueScore != b.BlueScore {
			return a.BlueScore < b.BlueScore
		}
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.Hash < b.Hash
	})
	for _, b := range blocks {
		s.window.AddBlock(b)
	}

	logger.Logger.Info("DAG bootstrapped",
		zap.Int("nodes", s.window.Len()),
		zap.Int("tips", len(tips)))
	s.publishStatus()
	return nil
}

// fetchAll fetches blocks concurrently; a failed fetch leaves a nil slot
func (s *Stitcher) fetchAll(ctx context.Context, hashes []string) ([]*models.LedgerBlock, error) {
	out := make([]*models.LedgerBlock, len(hashes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bootstrapConcurrency)
	for i, h := range hashes {
		g.Go(func() error {
			b, err := s.ledger.GetBlock(gctx, h)
			if err != nil {
				logger.Logger.Warn("Skipping block during bootstrap", zap.String("hash", h), zap.Error(err))
				return nil
			}
			out[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, ctx.Err()
}
