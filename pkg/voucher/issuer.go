package voucher

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VoucherIDPrefix starts every generated voucher id.
const VoucherIDPrefix = "voucher_"

// IssuerConfig configures an Issuer. Zero values get defaults.
type IssuerConfig struct {
	// Signer signs the canonical string. Defaults to MockHashSigner.
	Signer Signer

	// Validity is the gap between issuedAt and expiresAt. Defaults to DefaultValidity.
	Validity time.Duration

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	// NewID generates voucher ids. Defaults to NewVoucherID.
	NewID func() (string, error)
}

// Issuer is the voucher factory. It records nothing and does not consult the
// catalog; callers resolve the experience first.
type Issuer struct {
	signer   Signer
	validity time.Duration
	now      func() time.Time
	newID    func() (string, error)
}

// NewIssuer creates an Issuer.
func NewIssuer(config IssuerConfig) *Issuer {
	if config.Signer == nil {
		config.Signer = MockHashSigner{}
	}
	if config.Validity <= 0 {
		config.Validity = DefaultValidity
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.NewID == nil {
		config.NewID = NewVoucherID
	}
	return &Issuer{
		signer:   config.Signer,
		validity: config.Validity,
		now:      config.Now,
		newID:    config.NewID,
	}
}

// Validity returns the configured validity window.
func (i *Issuer) Validity() time.Duration {
	return i.validity
}

// Issue mints a signed voucher for experienceID held by purchaser.
func (i *Issuer) Issue(experienceID, purchaser string) (*Voucher, error) {
	id, err := i.newID()
	if err != nil {
		return nil, fmt.Errorf("generate voucher id: %w", err)
	}

	issuedAt := i.now().UTC().Truncate(time.Millisecond)
	v := &Voucher{
		VoucherID:    id,
		ExperienceID: experienceID,
		Purchaser:    purchaser,
		IssuedAt:     FormatTimestamp(issuedAt),
		ExpiresAt:    FormatTimestamp(issuedAt.Add(i.validity)),
	}

	sig, err := i.signer.Sign([]byte(CanonicalString(*v)))
	if err != nil {
		return nil, fmt.Errorf("sign voucher %s: %w", id, err)
	}
	v.Signature = sig
	return v, nil
}

// NewVoucherID returns voucher_<UUIDv7>. The UUID carries a millisecond
// timestamp and 74 random bits; there is no uniqueness registry.
func NewVoucherID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return VoucherIDPrefix + id.String(), nil
}
