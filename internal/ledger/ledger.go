// Package ledger provides small expiring key/value stores used to remember
// which payment proofs have already bought a voucher.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get for a missing or expired key.
var ErrNotFound = errors.New("ledger: key not found")

// Store is an expiring key/value store with first-writer-wins semantics.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetNX stores value under key for ttl unless a live value already exists.
	// It reports whether this call stored the value.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Close releases the backend.
	Close() error
}

// Kind names a backend.
type Kind string

const (
	KindNone   Kind = "none"
	KindMemory Kind = "memory"
	KindBolt   Kind = "bolt"
	KindRedis  Kind = "redis"
)

// Config selects and parameterizes a backend.
type Config struct {
	Kind Kind

	// Path is the bbolt database file for KindBolt.
	Path string

	// RedisURL is a redis:// or rediss:// URL for KindRedis.
	RedisURL string
}

// Open builds the configured store. KindNone (or empty) returns nil, nil.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Kind {
	case "", KindNone:
		return nil, nil
	case KindMemory:
		return NewMemory(), nil
	case KindBolt:
		return OpenBolt(cfg.Path)
	case KindRedis:
		return OpenRedis(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("ledger: unknown kind %q", cfg.Kind)
	}
}
