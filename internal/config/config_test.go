package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siddimore/x402-vouchers/internal/ledger"
	"github.com/siddimore/x402-vouchers/pkg/voucher"
)

// noEnvFile points Load at a .env that does not exist.
func noEnvFile(t *testing.T) {
	t.Setenv(EnvPrefix+"ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
}

func TestLoad_Defaults(t *testing.T) {
	noEnvFile(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8402", cfg.Listen)
	assert.Equal(t, "0xCABO...DEMO", cfg.Recipient)
	assert.Equal(t, "tx_", cfg.ProofPrefix)
	assert.Equal(t, 10, cfg.ProofMinLength)
	assert.Equal(t, SignerMock, cfg.Signer)
	assert.Equal(t, voucher.DefaultValidity, cfg.Validity)
	assert.Equal(t, string(ledger.KindNone), cfg.Ledger)
	assert.Equal(t, 5*time.Second, cfg.VerifierTimeout)
}

func TestLoad_EnvOverlay(t *testing.T) {
	noEnvFile(t)
	t.Setenv("VOUCHERD_RECIPIENT", "0xFEED")
	t.Setenv("VOUCHERD_PROOF_MIN_LENGTH", "20")
	t.Setenv("VOUCHERD_LISTEN", ":9000")

	// Command line wins over the environment.
	cfg, err := Load([]string{"-listen", ":7000", "-validity", "48h"})
	require.NoError(t, err)

	assert.Equal(t, "0xFEED", cfg.Recipient)
	assert.Equal(t, 20, cfg.ProofMinLength)
	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, 48*time.Hour, cfg.Validity)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voucherd.env")
	require.NoError(t, os.WriteFile(path, []byte("VOUCHERD_PROOF_PREFIX=pay_\n"), 0o600))
	t.Setenv(EnvPrefix+"ENV_FILE", path)
	t.Cleanup(func() { os.Unsetenv("VOUCHERD_PROOF_PREFIX") })

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "pay_", cfg.ProofPrefix)
}

func TestLoad_BadFlag(t *testing.T) {
	noEnvFile(t)

	_, err := Load([]string{"-no-such-flag"})
	assert.Error(t, err)

	t.Setenv("VOUCHERD_VALIDITY", "forever")
	_, err = Load(nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Listen:         ":8402",
			ProofPrefix:    "tx_",
			ProofMinLength: 10,
			Signer:         SignerMock,
			SignerKeyID:    "k1",
			Validity:       time.Hour,
			Ledger:         "none",
			RateLimitRPS:   1,
			RateLimitBurst: 1,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }},
		{"no prefix no verifier", func(c *Config) { c.ProofPrefix = "" }},
		{"negative length", func(c *Config) { c.ProofMinLength = -1 }},
		{"zero validity", func(c *Config) { c.Validity = 0 }},
		{"unknown signer", func(c *Config) { c.Signer = "rsa" }},
		{"key id with colon", func(c *Config) { c.Signer = SignerEd25519; c.SignerKeyID = "a:b" }},
		{"unknown ledger", func(c *Config) { c.Ledger = "etcd" }},
		{"bolt without path", func(c *Config) { c.Ledger = "bolt"; c.LedgerPath = "" }},
		{"redis without url", func(c *Config) { c.Ledger = "redis" }},
		{"burst zero", func(c *Config) { c.RateLimitBurst = 0 }},
		{"relative backend", func(c *Config) { c.Backend = "localhost:3000/app" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}

	c := valid()
	c.ProofPrefix = ""
	c.VerifierURL = "https://facilitator.example.com/verify"
	assert.NoError(t, c.Validate())
}

func TestLoad_Backend(t *testing.T) {
	noEnvFile(t)
	t.Setenv("VOUCHERD_EXEMPT", "/access/exp-001/public, ,/access/exp-002/poster")

	cfg, err := Load([]string{"-backend", "http://localhost:3000"})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000", cfg.Backend)
	assert.Equal(t, []string{"/access/exp-001/public", "/access/exp-002/poster"}, cfg.ExemptPaths)
}
