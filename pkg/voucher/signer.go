package voucher

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"
)

// Signer produces a signature token over a canonical payload.
type Signer interface {
	Sign(payload []byte) (string, error)
}

// SignatureVerifier checks a signature token against a canonical payload.
type SignatureVerifier interface {
	Verify(payload []byte, signature string) (bool, error)
}

// ErrMalformedSignature is returned when a token cannot be decoded at all.
var ErrMalformedSignature = errors.New("malformed signature")

// MockHashSigner is the keyless demo signer. It folds the payload's UTF-16
// code units into a 32-bit rolling hash and wraps it as sig_<hex16>_mock.
// Anyone can forge it; it exists for bit-compatibility with issued vouchers.
type MockHashSigner struct{}

var (
	_ Signer            = MockHashSigner{}
	_ SignatureVerifier = MockHashSigner{}
)

// MockSignature computes the mock token for a canonical string.
func MockSignature(payload string) string {
	var hash uint32
	for _, unit := range utf16.Encode([]rune(payload)) {
		hash = hash*31 + uint32(unit)
	}
	return fmt.Sprintf("sig_%016x_mock", hash)
}

func (MockHashSigner) Sign(payload []byte) (string, error) {
	return MockSignature(string(payload)), nil
}

func (MockHashSigner) Verify(payload []byte, signature string) (bool, error) {
	return MockSignature(string(payload)) == signature, nil
}

// Signature token layout for Ed25519: ed25519:<keyID>:<hex>.
const (
	SigPrefixEd25519 = "ed25519"
	SigSeparator     = ":"
)

// Ed25519Signer signs canonical payloads with an Ed25519 private key.
type Ed25519Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
	KeyID   string
}

var (
	_ Signer            = (*Ed25519Signer)(nil)
	_ SignatureVerifier = (*Ed25519Signer)(nil)
)

// NewEd25519Signer generates a fresh key pair.
func NewEd25519Signer(keyID string) (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Ed25519Signer{privKey: priv, pubKey: pub, KeyID: keyID}, nil
}

// NewEd25519SignerFromSeed rebuilds a signer from a hex-encoded 32-byte seed.
func NewEd25519SignerFromSeed(seedHex, keyID string) (*Ed25519Signer, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("invalid seed hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed size %d, want %d", len(seed), ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Ed25519Signer{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
		KeyID:   keyID,
	}, nil
}

func (s *Ed25519Signer) Sign(payload []byte) (string, error) {
	sig := ed25519.Sign(s.privKey, payload)
	return SigPrefixEd25519 + SigSeparator + s.KeyID + SigSeparator + hex.EncodeToString(sig), nil
}

func (s *Ed25519Signer) Verify(payload []byte, signature string) (bool, error) {
	return s.PublicKey().Verify(payload, signature)
}

// Seed returns the hex-encoded private seed.
func (s *Ed25519Signer) Seed() string {
	return hex.EncodeToString(s.privKey.Seed())
}

// PublicKey returns the verifying half of the signer.
func (s *Ed25519Signer) PublicKey() Ed25519PublicKey {
	return Ed25519PublicKey{Key: s.pubKey, KeyID: s.KeyID}
}

// Ed25519PublicKey verifies vouchers without being able to issue them.
type Ed25519PublicKey struct {
	Key   ed25519.PublicKey
	KeyID string
}

var _ SignatureVerifier = Ed25519PublicKey{}

// NewEd25519PublicKey parses a hex-encoded public key.
func NewEd25519PublicKey(pubHex, keyID string) (Ed25519PublicKey, error) {
	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return Ed25519PublicKey{}, fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return Ed25519PublicKey{}, fmt.Errorf("invalid public key size")
	}
	return Ed25519PublicKey{Key: ed25519.PublicKey(pub), KeyID: keyID}, nil
}

// Hex returns the hex-encoded public key.
func (k Ed25519PublicKey) Hex() string {
	return hex.EncodeToString(k.Key)
}

// Verify reports false for a well-formed token from another key, and an
// ErrMalformedSignature-wrapped error for a token that is not Ed25519 at all.
func (k Ed25519PublicKey) Verify(payload []byte, signature string) (bool, error) {
	parts := strings.SplitN(signature, SigSeparator, 3)
	if len(parts) != 3 || parts[0] != SigPrefixEd25519 {
		return false, fmt.Errorf("%w: not an %s token", ErrMalformedSignature, SigPrefixEd25519)
	}
	if parts[1] != k.KeyID {
		return false, nil
	}
	sig, err := hex.DecodeString(parts[2])
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if len(sig) != ed25519.SignatureSize {
		return false, fmt.Errorf("%w: bad length %d", ErrMalformedSignature, len(sig))
	}
	return ed25519.Verify(k.Key, payload, sig), nil
}
