package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/siddimore/x402-vouchers/pkg/catalog"
	"github.com/siddimore/x402-vouchers/pkg/voucher"
)

// Client speaks the purchase and redemption protocol against a voucher server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a Client for baseURL with a 10s timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError is a non-protocol answer from the server.
type APIError struct {
	StatusCode int
	Kind       Kind
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("x402: %d %s: %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("x402: %d: %s", e.StatusCode, e.Message)
}

// Purchase is the result of Buy.
type Purchase struct {
	Voucher voucher.Voucher

	// Replayed is set when the server returned a voucher previously bought
	// with the same proof.
	Replayed bool
}

// Quote asks for the price of experienceID. The server answers with a 402
// challenge, which is returned as-is.
func (c *Client) Quote(ctx context.Context, experienceID, purchaser string) (*PaymentChallenge, error) {
	resp, err := c.buy(ctx, experienceID, purchaser, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		return nil, decodeAPIError(resp)
	}
	var challenge PaymentChallenge
	if err := json.NewDecoder(resp.Body).Decode(&challenge); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	return &challenge, nil
}

// Buy presents proof for experienceID and returns the issued voucher.
func (c *Client) Buy(ctx context.Context, experienceID, purchaser, proof string) (*Purchase, error) {
	if proof == "" {
		return nil, fmt.Errorf("x402: buy needs a payment proof")
	}
	resp, err := c.buy(ctx, experienceID, purchaser, proof)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}
	p := &Purchase{Replayed: resp.Header.Get(HeaderIdempotentReplay) == "true"}
	if err := json.NewDecoder(resp.Body).Decode(&p.Voucher); err != nil {
		return nil, fmt.Errorf("decode voucher: %w", err)
	}
	return p, nil
}

func (c *Client) buy(ctx context.Context, experienceID, purchaser, proof string) (*http.Response, error) {
	u := c.BaseURL + PathBuy + "?" + url.Values{"experienceId": {experienceID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if purchaser != "" {
		req.Header.Set(HeaderPurchaser, purchaser)
	}
	if proof != "" {
		req.Header.Set(HeaderPaymentProof, proof)
	}
	return c.HTTPClient.Do(req)
}

// Redeem submits v and returns the server's verdict. Refusals (400) come back
// as a Verdict, not an error.
func (c *Client) Redeem(ctx context.Context, v voucher.Voucher) (*voucher.Verdict, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return c.RedeemRaw(ctx, body)
}

// RedeemRaw submits an already encoded voucher body.
func (c *Client) RedeemRaw(ctx context.Context, body []byte) (*voucher.Verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+PathRedeem, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return nil, decodeAPIError(resp)
	}
	var verdict voucher.Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return &verdict, nil
}

// Experiences lists the server's catalog.
func (c *Client) Experiences(ctx context.Context) ([]catalog.Experience, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/experiences", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}
	var out struct {
		Experiences []catalog.Experience `json:"experiences"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode experiences: %w", err)
	}
	return out.Experiences, nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body ErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Kind = body.Kind
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
