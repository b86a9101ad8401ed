package x402

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/siddimore/x402-vouchers/internal/logging"
	"github.com/siddimore/x402-vouchers/pkg/catalog"
	"github.com/siddimore/x402-vouchers/pkg/voucher"
)

// Request and response headers of the purchase handshake.
const (
	HeaderPurchaser        = "X-Purchaser"
	HeaderPaymentProof     = "X-Payment-Proof"
	HeaderVoucherID        = "X-Voucher-Id"
	HeaderIdempotentReplay = "X-Idempotent-Replay"
)

// ExperienceLookup resolves experience ids. *catalog.Catalog satisfies it.
type ExperienceLookup interface {
	Get(id string) (catalog.Experience, bool)
}

// GateConfig holds the configuration for the payment gate
type GateConfig struct {
	// Catalog resolves the experience being bought. Required.
	Catalog ExperienceLookup

	// Issuer mints vouchers. Defaults to a mock-signing issuer.
	Issuer *voucher.Issuer

	// Verifier checks payment proofs. Defaults to NewPrefixVerifier().
	Verifier PaymentVerifier

	// Ledger, when set, makes issuance idempotent per payment proof.
	Ledger *ProofLedger

	// Currency is quoted in challenges. Defaults to USDC.
	Currency string

	// Recipient is the address quoted in challenges. Defaults to DemoRecipient.
	Recipient string

	// Logger is used when the request context carries none.
	Logger *slog.Logger
}

// Gate implements the 402 purchase handshake:
//
//	no proof      -> 402 PaymentChallenge
//	bad proof     -> 400
//	good proof    -> 200 Voucher, X-Voucher-Id header
//
// It keeps no state between the challenge and the paid request.
type Gate struct {
	config GateConfig
}

// NewGate creates a Gate.
func NewGate(config GateConfig) (*Gate, error) {
	if config.Catalog == nil {
		return nil, errors.New("x402: gate needs a catalog")
	}
	if config.Issuer == nil {
		config.Issuer = voucher.NewIssuer(voucher.IssuerConfig{})
	}
	if config.Verifier == nil {
		config.Verifier = NewPrefixVerifier()
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
	return &Gate{config: config}, nil
}

func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lg := logging.FromContext(r.Context(), g.config.Logger)

	experienceID := r.URL.Query().Get("experienceId")
	if experienceID == "" {
		g.fail(w, lg, NewValidationError("Missing experienceId parameter"))
		return
	}

	exp, ok := g.config.Catalog.Get(experienceID)
	if !ok {
		g.fail(w, lg, NewNotFoundError("Experience not found"))
		return
	}
	lg = lg.With("experience", exp.ID)

	purchaser := r.Header.Get(HeaderPurchaser)
	if purchaser == "" {
		g.fail(w, lg, NewValidationError("Missing "+HeaderPurchaser+" header"))
		return
	}

	proof := r.Header.Get(HeaderPaymentProof)
	if proof == "" {
		challenge := NewChallenge(exp, g.config.Currency, g.config.Recipient)
		challengesIssued.WithLabelValues(exp.ID).Inc()
		lg.Info("payment required", "amount", challenge.Amount, "currency", challenge.Currency)
		sendPaymentRequired(w, challenge)
		return
	}

	req := PaymentRequest{
		ExperienceID: exp.ID,
		Purchaser:    purchaser,
		Amount:       exp.PriceUSDC,
		Currency:     g.config.Currency,
		Recipient:    g.config.Recipient,
	}
	if err := g.config.Verifier.Verify(r.Context(), proof, req); err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			g.fail(w, lg, NewPaymentRejectedError(rejected.Reason, err))
			return
		}
		g.fail(w, lg, NewUpstreamError(err))
		return
	}

	if g.config.Ledger != nil {
		prior, err := g.config.Ledger.Lookup(r.Context(), proof)
		if err != nil {
			g.fail(w, lg, newInternalError("Voucher ledger unavailable", err))
			return
		}
		if prior != nil {
			g.replay(w, lg, prior, exp.ID, purchaser)
			return
		}
	}

	v, err := g.config.Issuer.Issue(exp.ID, purchaser)
	if err != nil {
		g.fail(w, lg, newInternalError("Failed to issue voucher", err))
		return
	}

	if g.config.Ledger != nil {
		winner, stored, err := g.config.Ledger.Record(r.Context(), proof, v)
		if err != nil {
			g.fail(w, lg, newInternalError("Voucher ledger unavailable", err))
			return
		}
		if !stored {
			g.replay(w, lg, winner, exp.ID, purchaser)
			return
		}
	}

	vouchersIssued.WithLabelValues(exp.ID).Inc()
	lg.Info("voucher issued", "voucher_id", v.VoucherID, "expires_at", v.ExpiresAt)

	w.Header().Set(HeaderVoucherID, v.VoucherID)
	writeJSON(w, http.StatusOK, v)
}

// replay answers a purchase whose proof already bought prior.
func (g *Gate) replay(w http.ResponseWriter, lg *slog.Logger, prior *voucher.Voucher, experienceID, purchaser string) {
	if prior.ExperienceID != experienceID || prior.Purchaser != purchaser {
		proofReplays.WithLabelValues("conflict").Inc()
		g.fail(w, lg, NewConflictError("Payment proof already used for another purchase"))
		return
	}
	proofReplays.WithLabelValues("returned").Inc()
	lg.Info("voucher replayed", "voucher_id", prior.VoucherID)

	w.Header().Set(HeaderVoucherID, prior.VoucherID)
	w.Header().Set(HeaderIdempotentReplay, "true")
	writeJSON(w, http.StatusOK, prior)
}

func (g *Gate) fail(w http.ResponseWriter, lg *slog.Logger, e *Error) {
	gateErrors.WithLabelValues(string(e.Kind)).Inc()
	switch {
	case e.Status >= 500:
		lg.Error("voucher purchase failed", "kind", e.Kind, "err", e)
	case e.Kind == KindPaymentRejected:
		lg.Warn("payment proof rejected", "err", e)
	default:
		lg.Debug("voucher purchase refused", "kind", e.Kind, "reason", e.Message)
	}
	writeError(w, e)
}
