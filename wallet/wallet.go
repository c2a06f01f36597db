package wallet

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dag-stitch/models"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/crypto"
)

// Wallet holds the operator's signing key
type Wallet struct {
	key     crypto.PrivKey
	address string
}

// LoadOrCreate reads a hex-encoded key from path, generating and saving a secp256k1 key if the file is absent
func LoadOrCreate(path string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read wallet key: %w", err)
	}

	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode wallet key: %w", err)
	}
	key, err := crypto.UnmarshalPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("unmarshal wallet key: %w", err)
	}
	return New(key)
}

func create(path string) (*Wallet, error) {
	key, _, err := crypto.GenerateSecp256k1Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate wallet key: %w", err)
	}
	raw, err := crypto.MarshalPrivateKey(key)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(raw)), 0o600); err != nil {
		return nil, fmt.Errorf("write wallet key: %w", err)
	}
	return New(key)
}

// New wraps an existing key
func New(key crypto.PrivKey) (*Wallet, error) {
	pub, err := key.GetPublic().Raw()
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(pub)
	return &Wallet{key: key, address: hex.EncodeToString(sum[:20])}, nil
}

// PrivateKey returns the signing key
func (w *Wallet) PrivateKey() crypto.PrivKey {
	return w.key
}

// Address returns the wallet's payout address
func (w *Wallet) Address() string {
	return w.address
}

// CreateTransaction builds and signs a single-output payment
func (w *Wallet) CreateTransaction(address string, amount uint64) (*models.Transaction, error) {
	if address == "" {
		return nil, errors.New("empty destination address")
	}
	if amount == 0 {
		return nil, errors.New("zero amount")
	}

	pub, err := crypto.MarshalPublicKey(w.key.GetPublic())
	if err != nil {
		return nil, err
	}
	tx := &models.Transaction{
		From:      w.address,
		Outputs:   []models.TxOutput{{Address: address, Amount: amount}},
		Nonce:     uuid.NewString(),
		PublicKey: hex.EncodeToString(pub),
	}

	payload, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(payload)
	sig, err := w.key.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	tx.ID = hex.EncodeToString(sum[:])
	tx.Signature = hex.EncodeToString(sig)
	return tx, nil
}

// Submitter submits signed transactions to the ledger
type Submitter interface {
	SubmitTransaction(ctx context.Context, tx *models.Transaction) (string, error)
}

// RewardPayer pays stitch rewards from the wallet
type RewardPayer struct {
	wallet    *Wallet
	submitter Submitter
}

func NewRewardPayer(w *Wallet, s Submitter) *RewardPayer {
	return &RewardPayer{wallet: w, submitter: s}
}

// PayReward creates a payment to address and submits it
func (p *RewardPayer) PayReward(ctx context.Context, address string, amount uint64) (string, error) {
	tx, err := p.wallet.CreateTransaction(address, amount)
	if err != nil {
		return "", err
	}
	return p.submitter.SubmitTransaction(ctx, tx)
}
