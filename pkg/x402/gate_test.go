package x402

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/siddimore/x402-vouchers/internal/ledger"
	"github.com/siddimore/x402-vouchers/pkg/catalog"
	"github.com/siddimore/x402-vouchers/pkg/voucher"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestGate_NoProof(t *testing.T) {
	gate := newTestGate(t, GateConfig{})

	resp := doBuy(gate, "exp-001", "alice", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("Expected status 402, got %d", resp.StatusCode)
	}

	var challenge PaymentChallenge
	if err := json.NewDecoder(resp.Body).Decode(&challenge); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if challenge.Status != 402 {
		t.Errorf("Expected status field 402, got %d", challenge.Status)
	}
	if challenge.Amount != 75 {
		t.Errorf("Expected amount 75, got %v", challenge.Amount)
	}
	if challenge.Currency != "USDC" {
		t.Errorf("Expected currency USDC, got %s", challenge.Currency)
	}
	if challenge.Recipient != DemoRecipient {
		t.Errorf("Expected recipient %s, got %s", DemoRecipient, challenge.Recipient)
	}
	if challenge.PaymentInstructions == "" {
		t.Error("Expected payment instructions")
	}
	if resp.Header.Get("X-Payment-Required") != "true" {
		t.Error("Expected X-Payment-Required header")
	}
	if resp.Header.Get("X-Payment-Amount") != "75" {
		t.Errorf("Expected X-Payment-Amount 75, got %q", resp.Header.Get("X-Payment-Amount"))
	}
}

func TestGate_ChallengeMatchesCatalogPrice(t *testing.T) {
	gate := newTestGate(t, GateConfig{})

	for _, exp := range catalog.Default().List() {
		resp := doBuy(gate, exp.ID, "alice", "")
		var challenge PaymentChallenge
		if err := json.NewDecoder(resp.Body).Decode(&challenge); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		resp.Body.Close()

		if challenge.Amount != exp.PriceUSDC {
			t.Errorf("%s: expected amount %v, got %v", exp.ID, exp.PriceUSDC, challenge.Amount)
		}
	}
}

func TestGate_ValidProof(t *testing.T) {
	gate := newTestGate(t, GateConfig{})

	resp := doBuy(gate, "exp-001", "alice", "tx_1234567")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status 200, got %d. Body: %s", resp.StatusCode, string(body))
	}

	var v voucher.Voucher
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if v.ExperienceID != "exp-001" {
		t.Errorf("Expected experienceId exp-001, got %s", v.ExperienceID)
	}
	if v.Purchaser != "alice" {
		t.Errorf("Expected purchaser alice, got %s", v.Purchaser)
	}
	if resp.Header.Get(HeaderVoucherID) != v.VoucherID {
		t.Errorf("Expected %s header %s, got %s", HeaderVoucherID, v.VoucherID, resp.Header.Get(HeaderVoucherID))
	}
	if v.IssuedAt != "2026-03-01T12:00:00.000Z" {
		t.Errorf("Expected issuedAt 2026-03-01T12:00:00.000Z, got %s", v.IssuedAt)
	}

	verdict := voucher.NewValidator(nil, fixedClock).Redeem(v)
	if !verdict.Valid() {
		t.Errorf("Expected issued voucher to redeem, got %+v", verdict)
	}
}

func TestGate_UnknownExperience(t *testing.T) {
	gate := newTestGate(t, GateConfig{})

	for _, proof := range []string{"", "tx_1234567"} {
		resp := doBuy(gate, "exp-999", "alice", proof)
		body := decodeErrorBody(t, resp)

		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("proof %q: expected status 404, got %d", proof, resp.StatusCode)
		}
		if body.Error != "Experience not found" {
			t.Errorf("proof %q: expected 'Experience not found', got %q", proof, body.Error)
		}
	}
}

func TestGate_MissingExperienceID(t *testing.T) {
	gate := newTestGate(t, GateConfig{})

	resp := doBuy(gate, "", "alice", "tx_1234567")
	body := decodeErrorBody(t, resp)

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
	if body.Error != "Missing experienceId parameter" {
		t.Errorf("Unexpected error message %q", body.Error)
	}
	if body.Kind != KindValidation {
		t.Errorf("Expected kind %s, got %s", KindValidation, body.Kind)
	}
}

func TestGate_MissingPurchaser(t *testing.T) {
	gate := newTestGate(t, GateConfig{})

	for _, proof := range []string{"", "tx_1234567"} {
		resp := doBuy(gate, "exp-002", "", proof)
		body := decodeErrorBody(t, resp)

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("proof %q: expected status 400, got %d", proof, resp.StatusCode)
		}
		if body.Error != "Missing X-Purchaser header" {
			t.Errorf("proof %q: unexpected error message %q", proof, body.Error)
		}
	}
}

func TestGate_InvalidProof(t *testing.T) {
	gate := newTestGate(t, GateConfig{})

	for _, proof := range []string{"abc", "tx_", "tx_123456", "TX_1234567", "0x12345678"} {
		resp := doBuy(gate, "exp-001", "alice", proof)
		body := decodeErrorBody(t, resp)

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("proof %q: expected status 400, got %d", proof, resp.StatusCode)
		}
		if body.Error != "Invalid payment proof format" {
			t.Errorf("proof %q: unexpected error message %q", proof, body.Error)
		}
		if body.Kind != KindPaymentRejected {
			t.Errorf("proof %q: expected kind %s, got %s", proof, KindPaymentRejected, body.Kind)
		}
	}
}

func TestGate_VerifierFailure(t *testing.T) {
	gate := newTestGate(t, GateConfig{
		Verifier: VerifierFunc(func(context.Context, string, PaymentRequest) error {
			return errors.New("connection refused")
		}),
	})

	resp := doBuy(gate, "exp-001", "alice", "tx_1234567")
	body := decodeErrorBody(t, resp)

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", resp.StatusCode)
	}
	if body.Kind != KindUpstream {
		t.Errorf("Expected kind %s, got %s", KindUpstream, body.Kind)
	}
}

func TestGate_VerifierSeesPrice(t *testing.T) {
	var got PaymentRequest
	gate := newTestGate(t, GateConfig{
		Verifier: VerifierFunc(func(_ context.Context, _ string, req PaymentRequest) error {
			got = req
			return nil
		}),
		Recipient: "0xSELLER",
	})

	resp := doBuy(gate, "exp-003", "bob", "anything")
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	want := PaymentRequest{ExperienceID: "exp-003", Purchaser: "bob", Amount: 120, Currency: "USDC", Recipient: "0xSELLER"}
	if got != want {
		t.Errorf("Expected verifier request %+v, got %+v", want, got)
	}
}

func TestGate_WithoutLedgerMintsEveryTime(t *testing.T) {
	gate := newTestGate(t, GateConfig{})

	first := buyVoucher(t, gate, "exp-001", "alice", "tx_1234567")
	second := buyVoucher(t, gate, "exp-001", "alice", "tx_1234567")

	if first.VoucherID == second.VoucherID {
		t.Errorf("Expected distinct voucher ids, got %s twice", first.VoucherID)
	}
}

func TestGate_LedgerReplay(t *testing.T) {
	store := ledger.NewMemory()
	gate := newTestGate(t, GateConfig{Ledger: NewProofLedger(store, time.Hour)})

	first := buyVoucher(t, gate, "exp-001", "alice", "tx_abcdefgh")

	resp := doBuy(gate, "exp-001", "alice", "tx_abcdefgh")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get(HeaderIdempotentReplay) != "true" {
		t.Error("Expected X-Idempotent-Replay header")
	}

	var second voucher.Voucher
	if err := json.NewDecoder(resp.Body).Decode(&second); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if second != *first {
		t.Errorf("Expected the same voucher back, got %+v and %+v", *first, second)
	}
	if store.Len() != 1 {
		t.Errorf("Expected 1 ledger entry, got %d", store.Len())
	}
}

func TestGate_LedgerConflict(t *testing.T) {
	gate := newTestGate(t, GateConfig{Ledger: NewProofLedger(ledger.NewMemory(), time.Hour)})

	buyVoucher(t, gate, "exp-001", "alice", "tx_abcdefgh")

	for _, tc := range []struct{ experience, purchaser string }{
		{"exp-002", "alice"},
		{"exp-001", "mallory"},
	} {
		resp := doBuy(gate, tc.experience, tc.purchaser, "tx_abcdefgh")
		body := decodeErrorBody(t, resp)

		if resp.StatusCode != http.StatusConflict {
			t.Errorf("%s/%s: expected status 409, got %d", tc.experience, tc.purchaser, resp.StatusCode)
		}
		if body.Kind != KindConflict {
			t.Errorf("%s/%s: expected kind %s, got %s", tc.experience, tc.purchaser, KindConflict, body.Kind)
		}
	}
}

func TestNewGate_RequiresCatalog(t *testing.T) {
	if _, err := NewGate(GateConfig{}); err == nil {
		t.Error("Expected error without catalog")
	}
}

func TestHandler_Routes(t *testing.T) {
	gate := newTestGate(t, GateConfig{})
	h := Handler(gate, RedeemHandler(voucher.NewValidator(nil, fixedClock), nil))

	req := httptest.NewRequest("POST", PathBuy+"?experienceId=exp-001", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405 for POST buy, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", PathBuy+"?experienceId=exp-001", nil)
	req.Header.Set(HeaderPurchaser, "alice")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("Expected status 402, got %d", w.Code)
	}
}

// Helper functions

func fixedClock() time.Time {
	return testNow
}

func newTestGate(t *testing.T, config GateConfig) *Gate {
	t.Helper()
	if config.Catalog == nil {
		config.Catalog = catalog.Default()
	}
	if config.Issuer == nil {
		config.Issuer = voucher.NewIssuer(voucher.IssuerConfig{Now: fixedClock})
	}
	gate, err := NewGate(config)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return gate
}

func doBuy(h http.Handler, experienceID, purchaser, proof string) *http.Response {
	target := PathBuy
	if experienceID != "" {
		target += "?experienceId=" + experienceID
	}
	req := httptest.NewRequest("GET", target, nil)
	if purchaser != "" {
		req.Header.Set(HeaderPurchaser, purchaser)
	}
	if proof != "" {
		req.Header.Set(HeaderPaymentProof, proof)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Result()
}

func buyVoucher(t *testing.T, h http.Handler, experienceID, purchaser, proof string) *voucher.Voucher {
	t.Helper()
	resp := doBuy(h, experienceID, purchaser, proof)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status 200, got %d. Body: %s", resp.StatusCode, string(body))
	}
	var v voucher.Voucher
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode voucher: %v", err)
	}
	return &v
}

func decodeErrorBody(t *testing.T, resp *http.Response) ErrorBody {
	t.Helper()
	defer resp.Body.Close()
	var body ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return body
}
