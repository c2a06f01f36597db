package dag

import "dag-stitch/models"

// ChainPolicy decides which of two blocks the consensus prefers when picking
// the best tip and each selected parent.
type ChainPolicy interface {
	Prefer(a, b models.BlockInfo) bool
}

// HeaviestFirst prefers the higher blue score and falls back to the lexically smaller hash
type HeaviestFirst struct{}

func (HeaviestFirst) Prefer(a, b models.BlockInfo) bool {
	if a.BlueScore != b.BlueScore {
		return a.BlueScore > b.BlueScore
	}
	return a.Hash < b.Hash
}

// BestTip returns the preferred resident block that has no resident children
func (w *Window) BestTip() (models.BlockInfo, bool) {
	var best models.BlockInfo
	found := false
	for _, id := range w.order {
		if w.graph.From(id).Len() > 0 {
			continue
		}
		b := w.blocks[id]
		if !found || w.policy.Prefer(b, best) {
			best = b
			found = true
		}
	}
	return best, found
}

// SelectedChain walks from the best tip through preferred resident parents.
// The result is ordered tip first.
func (w *Window) SelectedChain() []string {
	tip, ok := w.BestTip()
	if !ok {
		return nil
	}

	chain := []string{tip.Hash}
	cur := w.index[tip.Hash]
	for {
		parents := w.graph.To(cur)
		if parents.Len() == 0 {
			return chain
		}

		var next int64
		found := false
		for parents.Next() {
			pid := parents.Node().ID()
			if !found || w.policy.Prefer(w.blocks[pid], w.blocks[next]) {
				next = pid
				found = true
			}
		}
		chain = append(chain, w.blocks[next].Hash)
		cur = next
	}
}

// IsInSelectedChain reports whether a resident block lies on the selected chain.
// Blocks outside the window are never on it.
func (w *Window) IsInSelectedChain(hash string) bool {
	if !w.Contains(hash) {
		return false
	}
	for _, h := range w.SelectedChain() {
		if h == hash {
			return true
		}
	}
	return false
}
