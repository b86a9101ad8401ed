// Package x402 sells experience vouchers over HTTP 402 Payment Required.
//
// A purchase is two requests. The first, without a payment proof, is answered
// with a 402 PaymentChallenge quoting the price. The second repeats the request
// with the proof in the X-Payment-Proof header and gets back a signed voucher:
//
//	GET /api/voucher/buy?experienceId=exp-001
//	X-Purchaser: alice
//
//	402 {"status":402,"amount":75,"currency":"USDC",...}
//
//	GET /api/voucher/buy?experienceId=exp-001
//	X-Purchaser: alice
//	X-Payment-Proof: tx_8f3a21c9
//
//	200 {"voucherId":"voucher_...","signature":"sig_..._mock",...}
//
// Vouchers are redeemed by POSTing them to /api/voucher/redeem.
//
// Basic usage:
//
//	gate, _ := x402.NewGate(x402.GateConfig{Catalog: catalog.Default()})
//	redeem := x402.RedeemHandler(voucher.NewValidator(nil, nil), nil)
//
//	http.ListenAndServe(":8402", x402.Handler(gate, redeem))
//
// The default PaymentVerifier only checks the proof's format. It does not
// confirm that any money moved and accepts the same proof again and again.
// Configure NewHTTPVerifier against a real facilitator before charging
// anyone, and a ProofLedger to stop a proof buying more than one voucher.
package x402
