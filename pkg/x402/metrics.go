package x402

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	challengesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "x402_vouchers",
		Name:      "challenges_total",
		Help:      "402 payment challenges returned, by experience",
	}, []string{"experience"})

	vouchersIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "x402_vouchers",
		Name:      "issued_total",
		Help:      "Vouchers minted, by experience",
	}, []string{"experience"})

	proofReplays = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "x402_vouchers",
		Name:      "proof_replays_total",
		Help:      "Purchases that reused a recorded payment proof, by outcome",
	}, []string{"outcome"})

	gateErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "x402_vouchers",
		Name:      "gate_errors_total",
		Help:      "Issuance requests that ended in an error, by kind",
	}, []string{"kind"})

	redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "x402_vouchers",
		Name:      "redemptions_total",
		Help:      "Redemption verdicts, by status",
	}, []string{"status"})
)
