package x402

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/siddimore/x402-vouchers/internal/logging"
	"github.com/siddimore/x402-vouchers/pkg/voucher"
)

// HeaderVoucher carries a voucher presented at the door, as base64url JSON.
const HeaderVoucher = "X-Voucher"

// AuthScheme is the Authorization scheme accepted in place of HeaderVoucher.
const AuthScheme = "Voucher"

// MiddlewareConfig holds the configuration for RequireVoucher
type MiddlewareConfig struct {
	// Validator checks presented vouchers. Defaults to a mock-signature
	// validator.
	Validator *voucher.Validator

	// Catalog prices the 402 challenge sent when no voucher is presented.
	// Required.
	Catalog ExperienceLookup

	// Experience extracts the experience id a request needs a voucher for.
	// Defaults to the "experienceId" path wildcard.
	Experience func(r *http.Request) string

	// ExemptPaths lists path prefixes that don't require a voucher
	ExemptPaths []string

	Currency  string
	Recipient string
	Logger    *slog.Logger
}

// RequireVoucher admits requests that present a valid voucher for the
// requested experience.
//
// No voucher gets a 402 challenge for the experience. A voucher that fails
// validation, or was bought for a different experience, gets a 403 Verdict.
//
// RequireVoucher panics if config.Catalog is nil.
func RequireVoucher(next http.Handler, config MiddlewareConfig) http.Handler {
	if config.Catalog == nil {
		panic("x402: RequireVoucher needs a catalog")
	}
	if config.Validator == nil {
		config.Validator = voucher.NewValidator(nil, nil)
	}
	if config.Currency == "" {
		config.Currency = DefaultCurrency
	}
	if config.Recipient == "" {
		config.Recipient = DemoRecipient
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Experience == nil {
		config.Experience = func(r *http.Request) string {
			return r.PathValue("experienceId")
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isExemptPath(r.URL.Path, config.ExemptPaths) {
			next.ServeHTTP(w, r)
			return
		}

		lg := logging.FromContext(r.Context(), config.Logger)
		experienceID := config.Experience(r)

		token := extractVoucherToken(r)
		if token == "" {
			exp, ok := config.Catalog.Get(experienceID)
			if !ok {
				writeError(w, NewNotFoundError("Experience not found"))
				return
			}
			challengesIssued.WithLabelValues(exp.ID).Inc()
			sendPaymentRequired(w, NewChallenge(exp, config.Currency, config.Recipient))
			return
		}

		v, err := decodeVoucherToken(token)
		if err != nil {
			writeError(w, NewValidationError("Malformed voucher"))
			return
		}

		verdict := config.Validator.Redeem(v)
		if verdict.Valid() && v.ExperienceID != experienceID {
			verdict = voucher.Verdict{
				Status:  voucher.StatusInvalid,
				Message: "This voucher is for a different experience.",
			}
		}
		redemptions.WithLabelValues(string(verdict.Status)).Inc()
		if !verdict.Valid() {
			lg.Info("voucher refused at door", "status", verdict.Status, "experience", experienceID)
			writeJSON(w, http.StatusForbidden, verdict)
			return
		}

		w.Header().Set(HeaderVoucherID, v.VoucherID)
		next.ServeHTTP(w, r)
	})
}

// EncodeVoucherToken renders v for HeaderVoucher.
func EncodeVoucherToken(v voucher.Voucher) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeVoucherToken(token string) (voucher.Voucher, error) {
	var v voucher.Voucher
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(token, "="))
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, err
	}
	return v, v.Validate()
}

// isExemptPath checks if the requested path is exempt from the voucher check
func isExemptPath(path string, exemptPaths []string) bool {
	for _, exemptPath := range exemptPaths {
		if strings.HasPrefix(path, exemptPath) {
			return true
		}
	}
	return false
}

// extractVoucherToken reads the Authorization header, then HeaderVoucher.
func extractVoucherToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, AuthScheme+" ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, AuthScheme+" "))
	}
	return r.Header.Get(HeaderVoucher)
}
