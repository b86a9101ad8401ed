package x402

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/siddimore/x402-vouchers/pkg/voucher"
)

func TestRedeem_Valid(t *testing.T) {
	v := issueTestVoucher(t)

	resp, verdict := doRedeem(t, redeemHandlerAt(testNow.Add(time.Hour)), mustJSON(t, v))

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if verdict.Status != voucher.StatusValid {
		t.Errorf("Expected status valid, got %s", verdict.Status)
	}
	if verdict.Message != "Voucher successfully validated! Entry granted." {
		t.Errorf("Unexpected message %q", verdict.Message)
	}
	if verdict.VoucherID != v.VoucherID || verdict.ExperienceID != v.ExperienceID {
		t.Errorf("Expected ids echoed, got %+v", verdict)
	}
}

func TestRedeem_Expired(t *testing.T) {
	v := issueTestVoucher(t)

	resp, verdict := doRedeem(t, redeemHandlerAt(testNow.Add(31*24*time.Hour)), mustJSON(t, v))

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
	if verdict.Status != voucher.StatusExpired {
		t.Errorf("Expected status expired, got %s", verdict.Status)
	}
	if verdict.Message != "This voucher expired on 2026-03-31." {
		t.Errorf("Unexpected message %q", verdict.Message)
	}
}

func TestRedeem_Tampered(t *testing.T) {
	v := issueTestVoucher(t)
	v.ExperienceID = "exp-003"

	resp, verdict := doRedeem(t, redeemHandlerAt(testNow), mustJSON(t, v))

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
	if verdict.Status != voucher.StatusInvalid {
		t.Errorf("Expected status invalid, got %s", verdict.Status)
	}
	if verdict.VoucherID != "" {
		t.Errorf("Expected no voucher id on invalid verdict, got %s", verdict.VoucherID)
	}
}

func TestRedeem_MissingField(t *testing.T) {
	v := issueTestVoucher(t)

	blank := v
	blank.Signature = ""

	var dropped map[string]interface{}
	if err := json.Unmarshal(mustJSON(t, v), &dropped); err != nil {
		t.Fatal(err)
	}
	delete(dropped, "signature")

	var renamed map[string]interface{}
	if err := json.Unmarshal(mustJSON(t, v), &renamed); err != nil {
		t.Fatal(err)
	}
	renamed["SIGNATURE"] = renamed["signature"]
	delete(renamed, "signature")

	var nulled map[string]interface{}
	if err := json.Unmarshal(mustJSON(t, v), &nulled); err != nil {
		t.Fatal(err)
	}
	nulled["signature"] = nil

	bodies := map[string][]byte{
		"empty value": mustJSON(t, blank),
		"key removed": mustJSON(t, dropped),
		"key renamed": mustJSON(t, renamed),
		"null value":  mustJSON(t, nulled),
	}
	for name, body := range bodies {
		resp, verdict := doRedeem(t, redeemHandlerAt(testNow), body)

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", name, resp.StatusCode)
		}
		if verdict.Message != "Missing required field: signature" {
			t.Errorf("%s: unexpected message %q", name, verdict.Message)
		}
	}
}

func TestRedeem_CaseFoldedKeys(t *testing.T) {
	v := issueTestVoucher(t)
	body := strings.Replace(string(mustJSON(t, v)), `"voucherId"`, `"VoucherId"`, 1)

	resp, verdict := doRedeem(t, redeemHandlerAt(testNow), []byte(body))

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
	if verdict.Message != "Missing required field: voucherId" {
		t.Errorf("Unexpected message %q", verdict.Message)
	}
}

func TestRedeem_InvalidJSON(t *testing.T) {
	v := issueTestVoucher(t)
	valid := mustJSON(t, v)

	bodies := map[string][]byte{
		"garbage":        []byte("not json"),
		"empty":          nil,
		"array":          []byte(`[1,2,3]`),
		"number field":   []byte(`{"voucherId":1}`),
		"null":           []byte(`null`),
		"trailing bytes": append(append([]byte{}, valid...), []byte(" {}")...),
	}
	for name, body := range bodies {
		resp, verdict := doRedeem(t, redeemHandlerAt(testNow), body)

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", name, resp.StatusCode)
		}
		if verdict.Message != "Invalid JSON format. Please provide a valid voucher object." {
			t.Errorf("%s: unexpected message %q", name, verdict.Message)
		}
	}
}

func TestRedeem_BodyTooLarge(t *testing.T) {
	body := `{"voucherId":"` + strings.Repeat("a", MaxRedeemBody) + `"}`

	resp, verdict := doRedeem(t, redeemHandlerAt(testNow), []byte(body))

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
	if verdict.Status != voucher.StatusInvalid {
		t.Errorf("Expected status invalid, got %s", verdict.Status)
	}
}

// Helper functions

func issueTestVoucher(t *testing.T) voucher.Voucher {
	t.Helper()
	v, err := voucher.NewIssuer(voucher.IssuerConfig{Now: fixedClock}).Issue("exp-001", "alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return *v
}

func redeemHandlerAt(now time.Time) http.Handler {
	return RedeemHandler(voucher.NewValidator(nil, func() time.Time { return now }), nil)
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return raw
}

func doRedeem(t *testing.T, h http.Handler, body []byte) (*http.Response, voucher.Verdict) {
	t.Helper()
	req := httptest.NewRequest("POST", PathRedeem, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	var verdict voucher.Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		t.Fatalf("Failed to decode verdict: %v", err)
	}
	return resp, verdict
}
