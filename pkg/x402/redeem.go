package x402

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/siddimore/x402-vouchers/internal/logging"
	"github.com/siddimore/x402-vouchers/pkg/voucher"
)

// Routes served by Handler.
const (
	PathBuy    = "/api/voucher/buy"
	PathRedeem = "/api/voucher/redeem"
)

// MaxRedeemBody caps the size of a redemption request body.
const MaxRedeemBody = 64 << 10

const messageInvalidJSON = "Invalid JSON format. Please provide a valid voucher object."

// RedeemHandler validates vouchers posted as JSON and answers with a Verdict:
// 200 when entry is granted, 400 otherwise.
func RedeemHandler(validator *voucher.Validator, logger *slog.Logger) http.Handler {
	if validator == nil {
		validator = voucher.NewValidator(nil, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lg := logging.FromContext(r.Context(), logger)

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRedeemBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				lg.Debug("redeem body too large", "limit", tooLarge.Limit)
			}
			refuse(w, messageInvalidJSON)
			return
		}

		v, err := voucher.Decode(body)
		if err != nil {
			refuse(w, messageInvalidJSON)
			return
		}
		if err := v.Validate(); err != nil {
			refuse(w, err.Error())
			return
		}

		verdict := validator.Redeem(v)
		redemptions.WithLabelValues(string(verdict.Status)).Inc()
		lg.Info("voucher redeemed", "status", verdict.Status, "voucher_id", verdict.VoucherID)

		status := http.StatusOK
		if !verdict.Valid() {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, verdict)
	})
}

func refuse(w http.ResponseWriter, message string) {
	redemptions.WithLabelValues(string(voucher.StatusInvalid)).Inc()
	writeJSON(w, http.StatusBadRequest, voucher.Verdict{
		Status:  voucher.StatusInvalid,
		Message: message,
	})
}

// Handler mounts the purchase and redemption routes.
func Handler(gate http.Handler, redeem http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET "+PathBuy, gate)
	mux.Handle("POST "+PathRedeem, redeem)
	return mux
}
