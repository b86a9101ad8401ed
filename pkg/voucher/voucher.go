// Package voucher mints and checks signed, time-limited access vouchers.
//
// A Voucher is a bearer credential: the server keeps no record of it, and a
// redemption verdict is recomputed entirely from the voucher's own fields and
// the current time.
package voucher

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TimestampLayout is the ISO-8601 form issuedAt and expiresAt are signed in.
// Changing it changes every signature.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// DefaultValidity is how long a freshly issued voucher stays redeemable.
const DefaultValidity = 30 * 24 * time.Hour

// Voucher is a signed proof of purchase for one experience.
//
// Timestamps are kept as the exact strings that were signed so a voucher
// round-trips through JSON without disturbing its signature.
type Voucher struct {
	VoucherID    string `json:"voucherId"`
	ExperienceID string `json:"experienceId"`
	Purchaser    string `json:"purchaser"`
	IssuedAt     string `json:"issuedAt"`
	ExpiresAt    string `json:"expiresAt"`
	Signature    string `json:"signature"`
}

// MissingFieldError reports a structurally incomplete voucher.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("Missing required field: %s", e.Field)
}

// Validate checks that every field is present, in the order the fields are
// signed with the signature last.
func (v Voucher) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"voucherId", v.VoucherID},
		{"experienceId", v.ExperienceID},
		{"purchaser", v.Purchaser},
		{"issuedAt", v.IssuedAt},
		{"expiresAt", v.ExpiresAt},
		{"signature", v.Signature},
	}
	for _, f := range fields {
		if f.value == "" {
			return &MissingFieldError{Field: f.name}
		}
	}
	return nil
}

// Decode reads a voucher from a JSON object, matching keys exactly. A key
// that differs from a field name only in case does not fill the field, so
// Validate reports it missing.
func Decode(data []byte) (Voucher, error) {
	var v Voucher
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return v, err
	}
	if raw == nil {
		return v, errors.New("voucher: not a JSON object")
	}

	fields := map[string]*string{
		"voucherId":    &v.VoucherID,
		"experienceId": &v.ExperienceID,
		"purchaser":    &v.Purchaser,
		"issuedAt":     &v.IssuedAt,
		"expiresAt":    &v.ExpiresAt,
		"signature":    &v.Signature,
	}
	for name, dst := range fields {
		value, ok := raw[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, dst); err != nil {
			return v, fmt.Errorf("voucher: field %s: %w", name, err)
		}
	}
	return v, nil
}

// ExpiryTime parses ExpiresAt.
func (v Voucher) ExpiryTime() (time.Time, error) {
	return parseTimestamp(v.ExpiresAt)
}

// IssuedTime parses IssuedAt.
func (v Voucher) IssuedTime() (time.Time, error) {
	return parseTimestamp(v.IssuedAt)
}

// FormatTimestamp renders t in TimestampLayout (UTC, millisecond precision).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
