package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var proofsBucket = []byte("proofs")

// Bolt is a Store backed by a single bbolt file. Each value is prefixed with
// its expiry as big-endian unix nanoseconds.
type Bolt struct {
	db  *bolt.DB
	now func() time.Time
}

var _ Store = (*Bolt)(nil)

// OpenBolt opens or creates the database at path.
func OpenBolt(path string) (*Bolt, error) {
	if path == "" {
		return nil, errors.New("ledger: bolt path is empty")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("ledger: open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(proofsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: create bucket: %w", err)
	}
	return &Bolt{db: db, now: time.Now}, nil
}

func (b *Bolt) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(proofsBucket).Get([]byte(key))
		value, live := b.decode(raw)
		if !live {
			return ErrNotFound
		}
		out = append([]byte(nil), value...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bolt) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	stored := false
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(proofsBucket)
		if _, live := b.decode(bucket.Get([]byte(key))); live {
			return nil
		}
		stored = true
		return bucket.Put([]byte(key), b.encode(value, b.now().Add(ttl)))
	})
	if err != nil {
		return false, fmt.Errorf("ledger: bolt put: %w", err)
	}
	return stored, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) encode(value []byte, expiry time.Time) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf, uint64(expiry.UnixNano()))
	copy(buf[8:], value)
	return buf
}

func (b *Bolt) decode(raw []byte) ([]byte, bool) {
	if len(raw) < 8 {
		return nil, false
	}
	expiry := time.Unix(0, int64(binary.BigEndian.Uint64(raw[:8])))
	if b.now().After(expiry) {
		return nil, false
	}
	return raw[8:], true
}
