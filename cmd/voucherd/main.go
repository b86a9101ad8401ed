// voucherd sells experience vouchers over HTTP 402 and redeems them.
//
// With -backend set it also acts as a door: requests under
// /access/{experienceId}/ are proxied to the backend only for holders of a
// valid voucher for that experience.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/siddimore/x402-vouchers/internal/config"
	"github.com/siddimore/x402-vouchers/internal/ledger"
	"github.com/siddimore/x402-vouchers/internal/logging"
	"github.com/siddimore/x402-vouchers/internal/ratelimit"
	"github.com/siddimore/x402-vouchers/pkg/catalog"
	"github.com/siddimore/x402-vouchers/pkg/voucher"
	"github.com/siddimore/x402-vouchers/pkg/x402"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "voucherd: %v\n", err)
		os.Exit(2)
	}

	slog.SetDefault(slog.New(logging.Init(cfg.LogLevel)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("voucherd exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	lg := slog.Default()

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		var err error
		if cat, err = catalog.LoadFile(cfg.CatalogPath); err != nil {
			return err
		}
	}

	signer, sigVerifier, err := newSigner(cfg, lg)
	if err != nil {
		return err
	}
	issuer := voucher.NewIssuer(voucher.IssuerConfig{Signer: signer, Validity: cfg.Validity})
	validator := voucher.NewValidator(sigVerifier, nil)

	store, err := ledger.Open(ctx, cfg.LedgerConfig())
	if err != nil {
		return err
	}
	var proofs *x402.ProofLedger
	if store != nil {
		defer store.Close()
		proofs = x402.NewProofLedger(store, issuer.Validity())
	}
	if mem, ok := store.(*ledger.Memory); ok {
		go mem.Run(time.Minute, ctx.Done())
	}

	gate, err := x402.NewGate(x402.GateConfig{
		Catalog:   cat,
		Issuer:    issuer,
		Verifier:  newPaymentVerifier(cfg, lg),
		Ledger:    proofs,
		Recipient: cfg.Recipient,
		Logger:    lg,
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/api/voucher/", x402.Handler(gate, x402.RedeemHandler(validator, lg)))
	mux.Handle("/api/experiences", catalog.Handler(cat))
	mux.Handle("/api/experiences/", catalog.Handler(cat))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	if cfg.Backend != "" {
		door, err := newDoor(cfg, cat, validator, lg)
		if err != nil {
			return err
		}
		mux.Handle("/access/{experienceId}/", door)
	}

	var handler http.Handler = mux
	if cfg.RateLimitRPS > 0 {
		limiter := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst)
		go limiter.Run(time.Minute, ctx.Done())
		handler = limiter.Middleware(handler)
	}
	handler = logging.Middleware(lg, handler)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	lg.Info("voucherd starting",
		"listen", cfg.Listen,
		"experiences", cat.Len(),
		"signer", cfg.Signer,
		"ledger", cfg.Ledger,
		"validity", cfg.Validity.String(),
		"backend", cfg.Backend,
	)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newSigner(cfg *config.Config, lg *slog.Logger) (voucher.Signer, voucher.SignatureVerifier, error) {
	switch cfg.Signer {
	case config.SignerEd25519:
		var (
			s   *voucher.Ed25519Signer
			err error
		)
		if cfg.SignerSeed != "" {
			s, err = voucher.NewEd25519SignerFromSeed(cfg.SignerSeed, cfg.SignerKeyID)
		} else {
			s, err = voucher.NewEd25519Signer(cfg.SignerKeyID)
			lg.Warn("no signer seed configured, using an ephemeral key; vouchers will not survive a restart",
				"key_id", cfg.SignerKeyID)
		}
		if err != nil {
			return nil, nil, err
		}
		pub := s.PublicKey()
		lg.Info("ed25519 signer ready", "key_id", pub.KeyID, "public_key", pub.Hex())
		return s, pub, nil
	default:
		lg.Warn("using the mock hash signer; anyone can forge vouchers")
		return voucher.MockHashSigner{}, voucher.MockHashSigner{}, nil
	}
}

func newPaymentVerifier(cfg *config.Config, lg *slog.Logger) x402.PaymentVerifier {
	if cfg.VerifierURL != "" {
		lg.Info("verifying payment proofs with facilitator", "endpoint", cfg.VerifierURL)
		return x402.NewHTTPVerifier(x402.VerifierConfig{
			Endpoint: cfg.VerifierURL,
			APIKey:   cfg.VerifierAPIKey,
			Timeout:  cfg.VerifierTimeout,
		})
	}
	lg.Warn("payment proofs are only format-checked; no payment is confirmed",
		"prefix", cfg.ProofPrefix, "min_length", cfg.ProofMinLength)
	return x402.PrefixVerifier{Prefix: cfg.ProofPrefix, MinLength: cfg.ProofMinLength}
}

// newDoor proxies /access/{experienceId}/... to the backend for voucher holders.
func newDoor(cfg *config.Config, cat *catalog.Catalog, validator *voucher.Validator, lg *slog.Logger) (http.Handler, error) {
	target, err := url.Parse(cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Header.Set("X-Forwarded-Host", req.Host)
		req.Header.Set("X-Origin-Host", target.Host)
		req.Header.Del(x402.HeaderVoucher)
		if strings.HasPrefix(req.Header.Get("Authorization"), x402.AuthScheme+" ") {
			req.Header.Del("Authorization")
		}
	}

	lg.Info("voucher door enabled", "backend", cfg.Backend, "exempt", cfg.ExemptPaths)

	return x402.RequireVoucher(proxy, x402.MiddlewareConfig{
		Validator:   validator,
		Catalog:     cat,
		ExemptPaths: cfg.ExemptPaths,
		Recipient:   cfg.Recipient,
		Logger:      lg,
	}), nil
}
