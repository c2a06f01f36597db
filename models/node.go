package models

// BlockInfo is the snapshot of a ledger block kept in the DAG window
type BlockInfo struct {
	Hash      string   `json:"hash"`       // opaque block id
	BlueScore uint64   `json:"blue_score"` // consensus weight
	Parents   []string `json:"parents"`    // direct parent ids, in ledger order
	Timestamp uint64   `json:"timestamp"`  // unix timestamp in ms
}

// TxOutput is a single payment output of a ledger transaction
type TxOutput struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

// Transaction is the ledger transaction shape used for coinbase lookup and reward payments
type Transaction struct {
	ID        string     `json:"id"`
	From      string     `json:"from,omitempty"`
	Outputs   []TxOutput `json:"outputs"`
	Nonce     string     `json:"nonce,omitempty"`
	PublicKey string     `json:"public_key,omitempty"`
	Signature string     `json:"signature,omitempty"`
}

// LedgerBlock is a block as returned by the ledger node, including its transactions
type LedgerBlock struct {
	BlockInfo
	Transactions []Transaction `json:"transactions"`
}

// Info returns a copy of the block header fields
func (b *LedgerBlock) Info() BlockInfo {
	info := b.BlockInfo
	info.Parents = append([]string(nil), b.Parents...)
	return info
}
