package dag

import (
	"math"
	"sort"

	"dag-stitch/models"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"
)

// centralityEpsilon absorbs float noise when comparing betweenness scores
const centralityEpsilon = 1e-9

// Fracture is a weak node together with every child currently resident in the window
type Fracture struct {
	Weak       models.BlockInfo
	Tips       []models.BlockInfo
	MinDelta   uint64
	Centrality float64
}

// TipHashes returns the ids of the fracture tips in insertion order
func (f *Fracture) TipHashes() []string {
	hashes := make([]string, len(f.Tips))
	for i, t := range f.Tips {
		hashes[i] = t.Hash
	}
	return hashes
}

// Window is a fixed-capacity DAG of the most recently inserted blocks.
// Edges only exist between resident nodes; the oldest insertion is evicted first.
// A Window has a single writer and is not safe for concurrent use.
type Window struct {
	graph    *simple.DirectedGraph
	blocks   map[int64]models.BlockInfo
	index    map[string]int64
	order    []int64
	nextID   int64
	capacity int
	policy   ChainPolicy
}

// NewWindow creates a window holding at most capacity blocks.
// A capacity below one is raised to one.
func NewWindow(capacity int, policy ChainPolicy) *Window {
	if capacity < 1 {
		capacity = 1
	}
	if policy == nil {
		policy = HeaviestFirst{}
	}
	return &Window{
		graph:    simple.NewDirectedGraph(),
		blocks:   make(map[int64]models.BlockInfo, capacity),
		index:    make(map[string]int64, capacity),
		order:    make([]int64, 0, capacity),
		capacity: capacity,
		policy:   policy,
	}
}

// Len returns the number of resident blocks
func (w *Window) Len() int {
	return len(w.order)
}

// Capacity returns the configured maximum number of resident blocks
func (w *Window) Capacity() int {
	return w.capacity
}

// Contains reports whether the block is currently resident
func (w *Window) Contains(hash string) bool {
	_, ok := w.index[hash]
	return ok
}

// Block returns the resident block with the given hash
func (w *Window) Block(hash string) (models.BlockInfo, bool) {
	id, ok := w.index[hash]
	if !ok {
		return models.BlockInfo{}, false
	}
	return w.blocks[id], true
}

// Hashes returns the resident block ids, oldest first
func (w *Window) Hashes() []string {
	hashes := make([]string, len(w.order))
	for i, id := range w.order {
		hashes[i] = w.blocks[id].Hash
	}
	return hashes
}

// Children returns the resident children of a block in insertion order
func (w *Window) Children(hash string) []models.BlockInfo {
	id, ok := w.index[hash]
	if !ok {
		return nil
	}
	return w.infos(w.graph.From(id))
}

// AddBlock inserts a block. It returns false without mutation if the block is already resident.
// When full, the oldest inserted block and its edges are evicted before insertion.
// Parents that are not resident produce no edge.
func (w *Window) AddBlock(block models.BlockInfo) bool {
	if _, ok := w.index[block.Hash]; ok {
		return false
	}

	if len(w.order) >= w.capacity {
		w.evictOldest()
	}

	id := w.nextID
	w.nextID++

	block.Parents = append([]string(nil), block.Parents...)
	w.graph.AddNode(simple.Node(id))
	w.blocks[id] = block
	w.index[block.Hash] = id
	w.order = append(w.order, id)

	for _, parent := range block.Parents {
		pid, ok := w.index[parent]
		if !ok || pid == id {
			continue
		}
		w.graph.SetEdge(w.graph.NewEdge(simple.Node(pid), simple.Node(id)))
	}
	return true
}

func (w *Window) evictOldest() {
	oldest := w.order[0]
	w.order = w.order[1:]
	hash := w.blocks[oldest].Hash
	w.graph.RemoveNode(oldest)
	delete(w.blocks, oldest)
	delete(w.index, hash)
}

type candidate struct {
	id         int64
	centrality float64
	delta      uint64
}

// FindFracture returns the most central node with at least two children whose smallest
// weight gap to any child is at least minDelta. Ties on centrality go to the smaller gap,
// then to the earlier insertion. Betweenness is recomputed on every call.
func (w *Window) FindFracture(minDelta uint64) (*Fracture, bool) {
	if len(w.order) == 0 {
		return nil, false
	}

	betweenness := network.Betweenness(w.graph)

	var candidates []candidate
	for _, id := range w.order {
		children := w.graph.From(id)
		if children.Len() < 2 {
			continue
		}

		score := w.blocks[id].BlueScore
		delta := uint64(math.MaxUint64)
		for children.Next() {
			childScore := w.blocks[children.Node().ID()].BlueScore
			if d := absDiff(score, childScore); d < delta {
				delta = d
			}
		}
		if delta < minDelta {
			continue
		}
		candidates = append(candidates, candidate{id: id, centrality: betweenness[id], delta: delta})
	}

	if len(candidates) == 0 {
		return nil, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if math.Abs(a.centrality-b.centrality) > centralityEpsilon {
			return a.centrality > b.centrality
		}
		return a.delta < b.delta
	})

	best := candidates[0]
	return &Fracture{
		Weak:       w.blocks[best.id],
		Tips:       w.infos(w.graph.From(best.id)),
		MinDelta:   best.delta,
		Centrality: best.centrality,
	}, true
}

// infos resolves graph nodes to block snapshots ordered by insertion
func (w *Window) infos(nodes graph.Nodes) []models.BlockInfo {
	ids := make([]int64, 0, nodes.Len())
	for nodes.Next() {
		ids = append(ids, nodes.Node().ID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]models.BlockInfo, len(ids))
	for i, id := range ids {
		out[i] = w.blocks[id]
	}
	return out
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
