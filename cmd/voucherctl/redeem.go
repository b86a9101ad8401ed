package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/siddimore/x402-vouchers/pkg/voucher"
	"github.com/siddimore/x402-vouchers/pkg/x402"
)

func redeemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redeem [voucher.json]",
		Short: "Redeem a voucher at the server",
		Long:  "Post a voucher to the server and print its verdict. Reads stdin when no file is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")

			body, err := readVoucherInput(cmd, args)
			if err != nil {
				return err
			}

			verdict, err := x402.NewClient(server).RedeemRaw(cmd.Context(), body)
			if err != nil {
				return err
			}
			return reportVerdict(cmd, verdict)
		},
	}
	return cmd
}

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [voucher.json]",
		Short: "Check a voucher locally without contacting the server",
		Long: `Check a voucher's signature and expiry offline.

By default the mock hash signature is checked. Pass --public-key to check an
ed25519 signature instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pubHex, _ := cmd.Flags().GetString("public-key")
			keyID, _ := cmd.Flags().GetString("key-id")

			body, err := readVoucherInput(cmd, args)
			if err != nil {
				return err
			}

			v, err := voucher.Decode(body)
			if err != nil {
				return fmt.Errorf("decode voucher: %w", err)
			}
			if err := v.Validate(); err != nil {
				return err
			}

			var sigVerifier voucher.SignatureVerifier
			if pubHex != "" {
				pub, err := voucher.NewEd25519PublicKey(pubHex, keyID)
				if err != nil {
					return err
				}
				sigVerifier = pub
			}

			verdict := voucher.NewValidator(sigVerifier, nil).Redeem(v)
			return reportVerdict(cmd, &verdict)
		},
	}

	cmd.Flags().String("public-key", "", "hex ed25519 public key")
	cmd.Flags().String("key-id", "k1", "ed25519 key id")

	return cmd
}

func readVoucherInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(io.LimitReader(cmd.InOrStdin(), x402.MaxRedeemBody+1))
}

// errRefused makes the command exit non-zero after printing a refusal.
type errRefused struct {
	verdict *voucher.Verdict
}

func (e errRefused) Error() string {
	return fmt.Sprintf("voucher %s: %s", e.verdict.Status, e.verdict.Message)
}

func reportVerdict(cmd *cobra.Command, verdict *voucher.Verdict) error {
	if err := printJSON(cmd.OutOrStdout(), verdict); err != nil {
		return err
	}
	if !verdict.Valid() {
		return errRefused{verdict: verdict}
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
