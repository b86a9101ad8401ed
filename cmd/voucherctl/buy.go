package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/siddimore/x402-vouchers/internal"
	"github.com/siddimore/x402-vouchers/pkg/x402"
)

func buyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buy",
		Short: "Buy a voucher for an experience",
		Long: `Ask the server for a price, then present a payment proof and print the
issued voucher as JSON.

Without --proof or --simulate-payment only the 402 challenge is printed.
--simulate-payment fabricates a tx_ proof that only a demo server accepts.`,
		Args: cobra.NoArgs,
		RunE: runBuy,
	}

	cmd.Flags().StringP("experience", "e", "", "experience id (required)")
	cmd.Flags().StringP("purchaser", "p", "", "purchaser identity (required)")
	cmd.Flags().String("proof", "", "payment proof (transaction hash)")
	cmd.Flags().Bool("simulate-payment", false, "fabricate a demo payment proof")
	cmd.Flags().StringP("output", "o", "", "write the voucher to this file instead of stdout")
	cmd.MarkFlagRequired("experience")
	cmd.MarkFlagRequired("purchaser")
	cmd.MarkFlagsMutuallyExclusive("proof", "simulate-payment")

	return cmd
}

func runBuy(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	experience, _ := cmd.Flags().GetString("experience")
	purchaser, _ := cmd.Flags().GetString("purchaser")
	proof, _ := cmd.Flags().GetString("proof")
	simulate, _ := cmd.Flags().GetBool("simulate-payment")
	output, _ := cmd.Flags().GetString("output")

	client := x402.NewClient(server)
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	challenge, err := client.Quote(cmd.Context(), experience, purchaser)
	if err != nil {
		return err
	}
	fmt.Fprintf(errOut, "Payment required: %v %s to %s\n", challenge.Amount, challenge.Currency, challenge.Recipient)

	if simulate {
		proof = internal.SimulatedProof()
		fmt.Fprintf(errOut, "Simulated payment proof: %s\n", proof)
	}
	if proof == "" {
		return printJSON(out, challenge)
	}

	purchase, err := client.Buy(cmd.Context(), experience, purchaser, proof)
	if err != nil {
		var apiErr *x402.APIError
		if errors.As(err, &apiErr) && apiErr.Kind == x402.KindPaymentRejected {
			return fmt.Errorf("payment rejected: %s", apiErr.Message)
		}
		return err
	}
	if purchase.Replayed {
		fmt.Fprintln(errOut, "This proof was already used; returning the voucher it bought.")
	}
	fmt.Fprintf(errOut, "Voucher %s issued, valid until %s\n", purchase.Voucher.VoucherID, purchase.Voucher.ExpiresAt)

	if output != "" {
		raw, err := json.MarshalIndent(purchase.Voucher, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(output, append(raw, '\n'), 0o600)
	}
	return printJSON(out, purchase.Voucher)
}
