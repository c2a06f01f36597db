package dag

import (
	"fmt"
	"testing"

	"dag-stitch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(hash string, score uint64, parents ...string) models.BlockInfo {
	return models.BlockInfo{Hash: hash, BlueScore: score, Parents: parents, Timestamp: score * 1000}
}

func hashesOf(blocks []models.BlockInfo) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.Hash
	}
	return out
}

func TestAddBlock_NeverExceedsCapacity(t *testing.T) {
	w := NewWindow(5, nil)
	for i := 0; i < 50; i++ {
		parent := fmt.Sprintf("b%d", i-1)
		w.AddBlock(block(fmt.Sprintf("b%d", i), uint64(i), parent))
		require.LessOrEqual(t, w.Len(), 5)
	}
	assert.Equal(t, 5, w.Len())
	assert.Equal(t, []string{"b45", "b46", "b47", "b48", "b49"}, w.Hashes())
}

func TestAddBlock_Idempotent(t *testing.T) {
	w := NewWindow(4, nil)
	b := block("A", 100)

	assert.True(t, w.AddBlock(b))
	assert.False(t, w.AddBlock(b))
	assert.Equal(t, 1, w.Len())
}

func TestAddBlock_EvictsOldestRegardlessOfWeight(t *testing.T) {
	w := NewWindow(3, nil)
	require.True(t, w.AddBlock(block("heavy", 1_000_000)))
	require.True(t, w.AddBlock(block("b", 1)))
	require.True(t, w.AddBlock(block("c", 2)))
	require.True(t, w.AddBlock(block("d", 3)))

	assert.False(t, w.Contains("heavy"))
	assert.Equal(t, []string{"b", "c", "d"}, w.Hashes())
}

func TestAddBlock_EvictionRemovesEdges(t *testing.T) {
	w := NewWindow(3, nil)
	w.AddBlock(block("A", 100))
	w.AddBlock(block("B", 150, "A"))
	w.AddBlock(block("C", 400, "A"))
	require.Len(t, w.Children("A"), 2)

	w.AddBlock(block("D", 500))

	assert.False(t, w.Contains("A"))
	_, found := w.FindFracture(0)
	assert.False(t, found)
}

func TestAddBlock_DanglingParentIsDropped(t *testing.T) {
	w := NewWindow(2, nil)
	w.AddBlock(block("A", 1))
	w.AddBlock(block("B", 2, "A"))
	w.AddBlock(block("C", 3, "A", "never-seen"))

	assert.False(t, w.Contains("A"))
	assert.Empty(t, w.Children("B"))
	assert.Empty(t, w.Children("C"))
	assert.Equal(t, 2, w.Len())
}

func TestAddBlock_CapacityOne(t *testing.T) {
	w := NewWindow(1, nil)
	w.AddBlock(block("A", 1))
	w.AddBlock(block("B", 2, "A"))

	assert.Equal(t, []string{"B"}, w.Hashes())
	assert.Empty(t, w.Children("B"))
	_, found := w.FindFracture(0)
	assert.False(t, found)
}

func TestNewWindow_ClampsCapacity(t *testing.T) {
	w := NewWindow(0, nil)
	assert.Equal(t, 1, w.Capacity())
}

func TestFindFracture_EmptyWindow(t *testing.T) {
	w := NewWindow(10, nil)
	_, found := w.FindFracture(0)
	assert.False(t, found)
}

func TestFindFracture_NoNodeWithTwoChildren(t *testing.T) {
	w := NewWindow(10, nil)
	w.AddBlock(block("A", 1))
	w.AddBlock(block("B", 500, "A"))
	w.AddBlock(block("C", 900, "B"))

	_, found := w.FindFracture(0)
	assert.False(t, found)
}

func TestFindFracture_UsesMinimumDeltaAcrossChildren(t *testing.T) {
	w := NewWindow(3, nil)
	w.AddBlock(block("A", 100))
	w.AddBlock(block("B", 150, "A"))
	w.AddBlock(block("C", 400, "A"))

	_, found := w.FindFracture(200)
	assert.False(t, found, "min(50, 300) is below the threshold")

	f, found := w.FindFracture(50)
	require.True(t, found)
	assert.Equal(t, "A", f.Weak.Hash)
	assert.Equal(t, []string{"B", "C"}, f.TipHashes())
	assert.Equal(t, uint64(50), f.MinDelta)
}

func TestFindFracture_EqualWeightsOnlyMatchZeroThreshold(t *testing.T) {
	w := NewWindow(5, nil)
	w.AddBlock(block("A", 7))
	w.AddBlock(block("B", 7, "A"))
	w.AddBlock(block("C", 7, "A"))

	_, found := w.FindFracture(1)
	assert.False(t, found)

	f, found := w.FindFracture(0)
	require.True(t, found)
	assert.Equal(t, "A", f.Weak.Hash)
	assert.Zero(t, f.MinDelta)
}

func TestFindFracture_ReturnsAllCurrentChildren(t *testing.T) {
	w := NewWindow(10, nil)
	w.AddBlock(block("A", 10))
	w.AddBlock(block("B", 60, "A"))
	w.AddBlock(block("C", 70, "A"))
	w.AddBlock(block("D", 300, "A"))

	f, found := w.FindFracture(40)
	require.True(t, found)
	assert.Equal(t, []string{"B", "C", "D"}, f.TipHashes())
}

func TestFindFracture_EqualCentralityPrefersSmallerDelta(t *testing.T) {
	w := NewWindow(10, nil)
	w.AddBlock(block("X", 10))
	w.AddBlock(block("X1", 60, "X"))
	w.AddBlock(block("X2", 80, "X"))
	w.AddBlock(block("Y", 10))
	w.AddBlock(block("Y1", 40, "Y"))
	w.AddBlock(block("Y2", 100, "Y"))

	f, found := w.FindFracture(20)
	require.True(t, found)
	assert.Equal(t, "Y", f.Weak.Hash)
	assert.Equal(t, uint64(30), f.MinDelta)
}

func TestFindFracture_EqualDeltaPrefersHigherCentrality(t *testing.T) {
	w := NewWindow(10, nil)
	w.AddBlock(block("Y", 10))
	w.AddBlock(block("Y1", 60, "Y"))
	w.AddBlock(block("Y2", 80, "Y"))
	w.AddBlock(block("P", 5))
	w.AddBlock(block("X", 10, "P"))
	w.AddBlock(block("X1", 60, "X"))
	w.AddBlock(block("X2", 80, "X"))

	f, found := w.FindFracture(20)
	require.True(t, found)
	assert.Equal(t, "X", f.Weak.Hash)
	assert.Greater(t, f.Centrality, 0.0)
}

func TestFindFracture_DeterministicForFixedGraph(t *testing.T) {
	build := func() *Window {
		w := NewWindow(10, nil)
		w.AddBlock(block("X", 10))
		w.AddBlock(block("X1", 60, "X"))
		w.AddBlock(block("X2", 60, "X"))
		w.AddBlock(block("Y", 10))
		w.AddBlock(block("Y1", 60, "Y"))
		w.AddBlock(block("Y2", 60, "Y"))
		return w
	}

	for i := 0; i < 20; i++ {
		f, found := build().FindFracture(0)
		require.True(t, found)
		assert.Equal(t, "X", f.Weak.Hash)
	}
}

func TestSelectedChain_FollowsHeaviestParents(t *testing.T) {
	w := NewWindow(10, nil)
	w.AddBlock(block("G", 1))
	w.AddBlock(block("A", 2, "G"))
	w.AddBlock(block("B", 3, "G"))
	w.AddBlock(block("C", 4, "A", "B"))
	w.AddBlock(block("D", 3, "A"))

	assert.Equal(t, []string{"C", "B", "G"}, w.SelectedChain())
	assert.True(t, w.IsInSelectedChain("C"))
	assert.True(t, w.IsInSelectedChain("G"))
	assert.False(t, w.IsInSelectedChain("A"))
	assert.False(t, w.IsInSelectedChain("D"))
	assert.False(t, w.IsInSelectedChain("missing"))
}

func TestSelectedChain_Empty(t *testing.T) {
	w := NewWindow(3, nil)
	assert.Nil(t, w.SelectedChain())
	_, ok := w.BestTip()
	assert.False(t, ok)
}

type lightestFirst struct{}

func (lightestFirst) Prefer(a, b models.BlockInfo) bool { return a.BlueScore < b.BlueScore }

func TestSelectedChain_PluggablePolicy(t *testing.T) {
	w := NewWindow(10, lightestFirst{})
	w.AddBlock(block("G", 1))
	w.AddBlock(block("A", 2, "G"))
	w.AddBlock(block("B", 9, "G"))

	assert.Equal(t, []string{"A", "G"}, w.SelectedChain())
	assert.False(t, w.IsInSelectedChain("B"))
}
