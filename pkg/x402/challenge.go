package x402

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/siddimore/x402-vouchers/pkg/catalog"
)

const (
	// DefaultCurrency is the only currency experiences are priced in.
	DefaultCurrency = "USDC"

	// DemoRecipient is the placeholder address quoted when none is configured.
	DemoRecipient = "0xCABO...DEMO"
)

// PaymentChallenge is the 402 body telling the client how to pay.
type PaymentChallenge struct {
	Status              int     `json:"status"`
	Message             string  `json:"message"`
	Amount              float64 `json:"amount"`
	Currency            string  `json:"currency"`
	Recipient           string  `json:"recipient"`
	PaymentInstructions string  `json:"paymentInstructions"`
}

// NewChallenge quotes exp's price.
func NewChallenge(exp catalog.Experience, currency, recipient string) PaymentChallenge {
	amount := formatAmount(exp.PriceUSDC)
	return PaymentChallenge{
		Status:    http.StatusPaymentRequired,
		Message:   fmt.Sprintf("Payment required to access voucher for \"%s\"", exp.Name),
		Amount:    exp.PriceUSDC,
		Currency:  currency,
		Recipient: recipient,
		PaymentInstructions: fmt.Sprintf(
			"Send %s %s to the recipient address and include the transaction hash in the %s header.",
			amount, currency, HeaderPaymentProof),
	}
}

// sendPaymentRequired writes a 402 with the challenge body and the
// X-Payment-* hint headers.
func sendPaymentRequired(w http.ResponseWriter, challenge PaymentChallenge) {
	w.Header().Set("X-Payment-Required", "true")
	w.Header().Set("X-Payment-Amount", formatAmount(challenge.Amount))
	w.Header().Set("X-Payment-Currency", challenge.Currency)
	writeJSON(w, http.StatusPaymentRequired, challenge)
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
