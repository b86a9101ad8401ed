package voucher

import (
	"errors"
	"fmt"
	"time"
)

// Status is the three-way redemption outcome.
type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
	StatusExpired Status = "expired"
)

// Verdict is what a redemption returns. The ids are only echoed once the
// signature has been checked.
type Verdict struct {
	Status       Status `json:"status"`
	Message      string `json:"message"`
	VoucherID    string `json:"voucherId,omitempty"`
	ExperienceID string `json:"experienceId,omitempty"`
}

// Valid reports whether the verdict grants entry.
func (v Verdict) Valid() bool {
	return v.Status == StatusValid
}

var (
	// ErrSignatureMismatch means the voucher was tampered with or signed by someone else.
	ErrSignatureMismatch = errors.New("voucher signature mismatch")

	// ErrMalformedExpiry means a correctly signed voucher carries an unreadable expiresAt.
	ErrMalformedExpiry = errors.New("voucher expiry is malformed")
)

// ExpiredError is returned for an authentic voucher past its expiry.
type ExpiredError struct {
	ExpiresAt time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("voucher expired at %s", FormatTimestamp(e.ExpiresAt))
}

const (
	messageValid   = "Voucher successfully validated! Entry granted."
	messageInvalid = "Invalid voucher signature. This voucher may have been tampered with."
)

// Validator checks vouchers. It never performs I/O.
type Validator struct {
	verifier SignatureVerifier
	now      func() time.Time
}

// NewValidator creates a Validator. A nil verifier means MockHashSigner and a
// nil now means time.Now.
func NewValidator(verifier SignatureVerifier, now func() time.Time) *Validator {
	if verifier == nil {
		verifier = MockHashSigner{}
	}
	if now == nil {
		now = time.Now
	}
	return &Validator{verifier: verifier, now: now}
}

// Verify runs the signature check then the expiry check and returns the first
// failure: ErrSignatureMismatch, ErrMalformedExpiry or *ExpiredError.
func (val *Validator) Verify(v Voucher) error {
	ok, err := val.verifier.Verify([]byte(CanonicalString(v)), v.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}
	if !ok {
		return ErrSignatureMismatch
	}

	expiresAt, err := v.ExpiryTime()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedExpiry, err)
	}
	if expiresAt.Before(val.now()) {
		return &ExpiredError{ExpiresAt: expiresAt}
	}
	return nil
}

// Redeem turns Verify's outcome into a Verdict. It assumes v passed Validate.
func (val *Validator) Redeem(v Voucher) Verdict {
	err := val.Verify(v)

	var expired *ExpiredError
	switch {
	case err == nil:
		return Verdict{
			Status:       StatusValid,
			Message:      messageValid,
			VoucherID:    v.VoucherID,
			ExperienceID: v.ExperienceID,
		}
	case errors.As(err, &expired):
		return Verdict{
			Status:       StatusExpired,
			Message:      fmt.Sprintf("This voucher expired on %s.", expired.ExpiresAt.UTC().Format("2006-01-02")),
			VoucherID:    v.VoucherID,
			ExperienceID: v.ExperienceID,
		}
	case errors.Is(err, ErrMalformedExpiry):
		return Verdict{
			Status:  StatusInvalid,
			Message: "Invalid voucher expiry. This voucher cannot be validated.",
		}
	default:
		return Verdict{
			Status:  StatusInvalid,
			Message: messageInvalid,
		}
	}
}
