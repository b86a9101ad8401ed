package x402

import (
	"encoding/json"
	"net/http"
)

// Kind is the machine-readable error class sent next to the human message.
type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindNotFound        Kind = "not_found"
	KindPaymentRequired Kind = "payment_required"
	KindPaymentRejected Kind = "payment_rejected"
	KindConflict        Kind = "conflict"
	KindUpstream        Kind = "upstream_error"
	KindInternal        Kind = "internal_error"
)

// Error is a request-terminal failure with its HTTP status.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError is a 400 for missing or malformed input.
func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Message: message}
}

// NewNotFoundError is a 404 for an unknown experience.
func NewNotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: message}
}

// NewPaymentRequiredError marks the 402 protocol step. The gate answers it
// with a PaymentChallenge rather than an error body.
func NewPaymentRequiredError(message string) *Error {
	return &Error{Kind: KindPaymentRequired, Status: http.StatusPaymentRequired, Message: message}
}

// NewPaymentRejectedError is a 400 for a proof that failed verification.
func NewPaymentRejectedError(message string, err error) *Error {
	return &Error{Kind: KindPaymentRejected, Status: http.StatusBadRequest, Message: message, Err: err}
}

// NewConflictError is a 409 for a proof already spent on another purchase.
func NewConflictError(message string) *Error {
	return &Error{Kind: KindConflict, Status: http.StatusConflict, Message: message}
}

// NewUpstreamError is a 502 for a payment verifier that could not answer.
func NewUpstreamError(err error) *Error {
	return &Error{Kind: KindUpstream, Status: http.StatusBadGateway, Message: "Payment verification unavailable", Err: err}
}

func newInternalError(message string, err error) *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Message: message, Err: err}
}

// ErrorBody is the JSON shape of every gate error.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  Kind   `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, e *Error) {
	writeJSON(w, e.Status, ErrorBody{Error: e.Message, Kind: e.Kind})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
