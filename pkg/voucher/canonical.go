package voucher

import "strings"

// FieldSeparator joins the signed fields of the canonical string.
const FieldSeparator = ":"

// CanonicalString is the exact payload every Signer signs:
// voucherId:experienceId:purchaser:issuedAt:expiresAt.
func CanonicalString(v Voucher) string {
	return strings.Join([]string{
		v.VoucherID,
		v.ExperienceID,
		v.Purchaser,
		v.IssuedAt,
		v.ExpiresAt,
	}, FieldSeparator)
}
