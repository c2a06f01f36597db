package models

import (
	"encoding/json"
	"time"
)

// StitchRequest is the signed message broadcast to miners asking them to merge the listed tips
type StitchRequest struct {
	ID        string   `json:"id"`
	WeakBlock string   `json:"weak_block"`
	Tips      []string `json:"tips"`
	Reward    uint64   `json:"reward_sompi"`
	Timestamp int64    `json:"timestamp"`  // unix ms
	PublicKey string   `json:"public_key"` // hex, libp2p-marshalled
	Signature string   `json:"signature,omitempty"`
}

// SigningBytes returns the canonical bytes covered by the signature
func (r *StitchRequest) SigningBytes() ([]byte, error) {
	unsigned := *r
	unsigned.Signature = ""
	return json.Marshal(unsigned)
}

// Stitch journal statuses
const (
	StitchPending = "pending"
	StitchHealed  = "healed"
	StitchUnpaid  = "unpaid"
	StitchExpired = "expired"
)

// StitchRecord is the persisted journal entry for one dispatched stitch
type StitchRecord struct {
	ID           string   `json:"id"`
	WeakBlock    string   `json:"weak_block"`
	Tips         []string `json:"tips"`
	TriggerBlock string   `json:"trigger_block"`
	Reward       uint64   `json:"reward_sompi"`
	Suspicion    float64  `json:"suspicion"`
	Status       string   `json:"status"`
	TxID         string   `json:"txid,omitempty"`
	Attempts     int      `json:"attempts,omitempty"`
	CreatedAt    int64    `json:"created_at"` // unix ms
	UpdatedAt    int64    `json:"updated_at"` // unix ms
}

// Checkpoint captures controller state so a restart does not reset the cooldown or orphan history
type Checkpoint struct {
	ID            string `json:"id"`
	Timestamp     int64  `json:"timestamp"`      // unix ms
	LastStitch    int64  `json:"last_stitch"`    // unix ms, 0 when never stitched
	OrphanHistory []bool `json:"orphan_history"` // oldest first
}

// Status is the read-only snapshot of the stitch loop served by the status API
type Status struct {
	WindowSize     int        `json:"window_size"`
	WindowCapacity int        `json:"window_capacity"`
	BlocksSeen     uint64     `json:"blocks_seen"`
	OrphanRate     float64    `json:"orphan_rate"`
	BlockRate      float64    `json:"block_rate"`
	MinDelta       uint64     `json:"min_delta"`
	Cooldown       string     `json:"cooldown"`
	LastStitch     *time.Time `json:"last_stitch,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
