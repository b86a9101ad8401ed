// Package config binds voucherd's flags and VOUCHERD_* environment variables.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/facebookgo/flagenv"
	"github.com/joho/godotenv"

	"github.com/siddimore/x402-vouchers/internal/ledger"
	"github.com/siddimore/x402-vouchers/pkg/voucher"
)

// EnvPrefix is prepended to upper-cased flag names to form env var names,
// e.g. -proof-prefix becomes VOUCHERD_PROOF_PREFIX.
const EnvPrefix = "VOUCHERD_"

// Signer kinds.
const (
	SignerMock    = "mock"
	SignerEd25519 = "ed25519"
)

// Config is the full server configuration.
type Config struct {
	Listen   string
	LogLevel string

	// CatalogPath is a YAML catalog; empty means the built-in demo catalog.
	CatalogPath string

	Recipient      string
	ProofPrefix    string
	ProofMinLength int

	// VerifierURL switches proof checking to an external facilitator.
	VerifierURL     string
	VerifierAPIKey  string
	VerifierTimeout time.Duration

	Signer      string
	SignerSeed  string
	SignerKeyID string
	Validity    time.Duration

	Ledger     string
	LedgerPath string
	RedisURL   string

	// RateLimitRPS of 0 disables rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	// Backend, when set, is proxied under /access/{experienceId}/ to holders
	// of a valid voucher for that experience.
	Backend     string
	ExemptPaths []string
}

// Load reads an optional .env file (path from VOUCHERD_ENV_FILE, default
// ".env"), parses args, then fills flags not given on the command line from
// the environment.
func Load(args []string) (*Config, error) {
	envFile := os.Getenv(EnvPrefix + "ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{}
	fs := flag.NewFlagSet("voucherd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg.bind(fs)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := flagenv.ParseSet(EnvPrefix, fs); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) bind(fs *flag.FlagSet) {
	fs.StringVar(&c.Listen, "listen", ":8402", "listen address")
	fs.StringVar(&c.LogLevel, "slog-level", "INFO", "logging level (see https://pkg.go.dev/log/slog#hdr-Levels)")
	fs.StringVar(&c.CatalogPath, "catalog", "", "YAML experience catalog; empty uses the built-in demo catalog")

	fs.StringVar(&c.Recipient, "recipient", "0xCABO...DEMO", "address quoted in 402 challenges")
	fs.StringVar(&c.ProofPrefix, "proof-prefix", "tx_", "required payment proof prefix (mock verifier)")
	fs.IntVar(&c.ProofMinLength, "proof-min-length", 10, "minimum payment proof length (mock verifier)")

	fs.StringVar(&c.VerifierURL, "verifier-url", "", "facilitator endpoint; replaces the mock proof check")
	fs.StringVar(&c.VerifierAPIKey, "verifier-api-key", "", "API key sent to the facilitator")
	fs.DurationVar(&c.VerifierTimeout, "verifier-timeout", 5*time.Second, "facilitator request timeout")

	fs.StringVar(&c.Signer, "signer", SignerMock, "voucher signer: mock or ed25519")
	fs.StringVar(&c.SignerSeed, "signer-seed", "", "hex ed25519 seed; empty generates an ephemeral key")
	fs.StringVar(&c.SignerKeyID, "signer-key-id", "k1", "ed25519 key id embedded in signatures")
	fs.DurationVar(&c.Validity, "validity", voucher.DefaultValidity, "voucher validity window")

	fs.StringVar(&c.Ledger, "ledger", string(ledger.KindNone), "proof ledger: none, memory, bolt or redis")
	fs.StringVar(&c.LedgerPath, "ledger-path", "vouchers.db", "bbolt file for -ledger=bolt")
	fs.StringVar(&c.RedisURL, "redis-url", "", "redis:// URL for -ledger=redis")

	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 10, "per-IP requests per second, 0 disables")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 20, "per-IP burst")

	fs.StringVar(&c.Backend, "backend", "", "backend URL to proxy to voucher holders (e.g. http://localhost:3000)")
	fs.Func("exempt", "comma-separated path prefixes under /access/ that need no voucher", func(v string) error {
		c.ExemptPaths = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.ExemptPaths = append(c.ExemptPaths, p)
			}
		}
		return nil
	})
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if c.VerifierURL == "" && c.ProofPrefix == "" {
		errs = append(errs, errors.New("proof-prefix is empty and no verifier-url is set"))
	}
	if c.ProofMinLength < 0 {
		errs = append(errs, errors.New("proof-min-length is negative"))
	}
	if c.Validity <= 0 {
		errs = append(errs, errors.New("validity must be positive"))
	}

	switch c.Signer {
	case SignerMock:
	case SignerEd25519:
		if c.SignerKeyID == "" || strings.Contains(c.SignerKeyID, voucher.SigSeparator) {
			errs = append(errs, fmt.Errorf("signer-key-id %q must be non-empty and contain no %q", c.SignerKeyID, voucher.SigSeparator))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown signer %q", c.Signer))
	}

	switch ledger.Kind(c.Ledger) {
	case ledger.KindNone, ledger.KindMemory:
	case ledger.KindBolt:
		if c.LedgerPath == "" {
			errs = append(errs, errors.New("ledger-path is required for the bolt ledger"))
		}
	case ledger.KindRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("redis-url is required for the redis ledger"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger %q", c.Ledger))
	}

	if c.RateLimitRPS < 0 || (c.RateLimitRPS > 0 && c.RateLimitBurst < 1) {
		errs = append(errs, errors.New("rate limit needs rps >= 0 and burst >= 1"))
	}

	if c.Backend != "" {
		if u, err := url.Parse(c.Backend); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("backend %q is not an absolute URL", c.Backend))
		}
	}

	return errors.Join(errs...)
}

// LedgerConfig converts the ledger settings.
func (c *Config) LedgerConfig() ledger.Config {
	return ledger.Config{
		Kind:     ledger.Kind(c.Ledger),
		Path:     c.LedgerPath,
		RedisURL: c.RedisURL,
	}
}
