package x402

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/siddimore/x402-vouchers/internal/ledger"
	"github.com/siddimore/x402-vouchers/pkg/voucher"
)

// ProofLedger remembers which voucher each payment proof bought, so a retried
// purchase gets the same voucher back instead of a second one.
//
// The gate runs without one unless configured; in that mode every accepted
// proof mints a new voucher.
type ProofLedger struct {
	store ledger.Store
	ttl   time.Duration
}

// NewProofLedger keeps entries for ttl, normally the voucher validity window.
func NewProofLedger(store ledger.Store, ttl time.Duration) *ProofLedger {
	return &ProofLedger{store: store, ttl: ttl}
}

func proofKey(proof string) string {
	sum := sha256.Sum256([]byte(proof))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the voucher previously bought with proof, or nil.
func (l *ProofLedger) Lookup(ctx context.Context, proof string) (*voucher.Voucher, error) {
	raw, err := l.store.Get(ctx, proofKey(proof))
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger lookup: %w", err)
	}
	var v voucher.Voucher
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("ledger decode: %w", err)
	}
	return &v, nil
}

// Record binds proof to v. If another request bound the proof first, the
// earlier voucher is returned with stored=false.
func (l *ProofLedger) Record(ctx context.Context, proof string, v *voucher.Voucher) (*voucher.Voucher, bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false, err
	}
	stored, err := l.store.SetNX(ctx, proofKey(proof), raw, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("ledger record: %w", err)
	}
	if stored {
		return v, true, nil
	}
	prior, err := l.Lookup(ctx, proof)
	if err != nil {
		return nil, false, err
	}
	if prior == nil {
		return nil, false, errors.New("ledger record: entry vanished after conflict")
	}
	return prior, false, nil
}
