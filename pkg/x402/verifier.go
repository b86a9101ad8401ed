package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf16"
)

// PaymentRequest is what a proof is supposed to pay for.
type PaymentRequest struct {
	ExperienceID string  `json:"experienceId"`
	Purchaser    string  `json:"purchaser"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	Recipient    string  `json:"recipient"`
}

// PaymentVerifier decides whether a payment proof is acceptable.
//
// Verify returns nil to accept, an error matching ErrProofRejected to refuse
// the proof, and any other error when the verifier itself failed.
type PaymentVerifier interface {
	Verify(ctx context.Context, proof string, req PaymentRequest) error
}

// VerifierFunc adapts a function to PaymentVerifier.
type VerifierFunc func(ctx context.Context, proof string, req PaymentRequest) error

func (f VerifierFunc) Verify(ctx context.Context, proof string, req PaymentRequest) error {
	return f(ctx, proof, req)
}

// ErrProofRejected matches every refusal produced by Reject.
var ErrProofRejected = errors.New("payment proof rejected")

// RejectedError carries the client-facing reason for a refused proof.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return e.Reason
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrProofRejected
}

// Reject builds a refusal with the given reason.
func Reject(reason string) error {
	return &RejectedError{Reason: reason}
}

// PrefixVerifier is the demo format check: the proof must start with Prefix
// and be at least MinLength UTF-16 code units long.
//
// It does not look at amount, recipient or chain state and accepts the same
// proof any number of times. Do not use it where money is at stake.
type PrefixVerifier struct {
	Prefix    string
	MinLength int
}

// NewPrefixVerifier returns the default tx_ format check.
func NewPrefixVerifier() PrefixVerifier {
	return PrefixVerifier{Prefix: "tx_", MinLength: 10}
}

func (v PrefixVerifier) Verify(_ context.Context, proof string, _ PaymentRequest) error {
	if !strings.HasPrefix(proof, v.Prefix) || len(utf16.Encode([]rune(proof))) < v.MinLength {
		return Reject("Invalid payment proof format")
	}
	return nil
}

// NewStaticVerifier creates a verifier that checks against a list of valid proofs.
// Useful for testing and simple use cases
func NewStaticVerifier(validProofs []string) PaymentVerifier {
	proofSet := make(map[string]struct{}, len(validProofs))
	for _, p := range validProofs {
		proofSet[p] = struct{}{}
	}

	return VerifierFunc(func(_ context.Context, proof string, _ PaymentRequest) error {
		if _, ok := proofSet[proof]; !ok {
			return Reject("Unknown payment proof")
		}
		return nil
	})
}

// VerifierConfig holds configuration for facilitator-backed verification
type VerifierConfig struct {
	// Endpoint is the URL of the payment verification service
	Endpoint string

	// APIKey is the API key for authenticating with the payment service
	APIKey string

	// Timeout is the HTTP client timeout
	Timeout time.Duration

	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

// VerificationRequest is posted to the facilitator.
type VerificationRequest struct {
	Proof string `json:"proof"`
	PaymentRequest
}

// VerificationResponse represents the response from a payment verification service
type VerificationResponse struct {
	Valid         bool   `json:"valid"`
	TransactionID string `json:"transactionId,omitempty"`
	Error         string `json:"error,omitempty"`
}

// NewHTTPVerifier creates a verifier that asks an external facilitator.
//
// A 2xx answer with valid=false and any 4xx answer refuse the proof. Transport
// errors, 5xx answers and undecodable bodies are verifier failures.
func NewHTTPVerifier(config VerifierConfig) PaymentVerifier {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}

	client := config.Client
	if client == nil {
		client = &http.Client{
			Timeout: config.Timeout,
		}
	}

	return VerifierFunc(func(ctx context.Context, proof string, req PaymentRequest) error {
		body, err := json.Marshal(VerificationRequest{Proof: proof, PaymentRequest: req})
		if err != nil {
			return err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, config.Endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if config.APIKey != "" {
			httpReq.Header.Set("X-API-Key", config.APIKey)
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("facilitator request: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			_, _ = io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("facilitator returned %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			_, _ = io.Copy(io.Discard, resp.Body)
			return Reject("Payment proof rejected by facilitator")
		}

		var verifyResp VerificationResponse
		if err := json.NewDecoder(resp.Body).Decode(&verifyResp); err != nil {
			return fmt.Errorf("decode facilitator response: %w", err)
		}
		if !verifyResp.Valid {
			reason := "Payment proof rejected by facilitator"
			if verifyResp.Error != "" {
				reason += ": " + verifyResp.Error
			}
			return Reject(reason)
		}
		return nil
	})
}
