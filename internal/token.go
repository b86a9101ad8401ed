// Package internal holds helpers shared by the voucher commands.
package internal

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateToken returns prefix followed by 32 random hex characters.
func GenerateToken(prefix string) string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return prefix + hex.EncodeToString(bytes)
}

// SimulatedProof fabricates a payment proof that passes the demo format check.
// No payment stands behind it.
func SimulatedProof() string {
	return GenerateToken("tx_") + "_mock"
}
