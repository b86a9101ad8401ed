package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/siddimore/x402-vouchers/pkg/voucher"
)

func keygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 signing key for voucherd",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keyID, _ := cmd.Flags().GetString("key-id")

			s, err := voucher.NewEd25519Signer(keyID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "VOUCHERD_SIGNER=ed25519\n")
			fmt.Fprintf(out, "VOUCHERD_SIGNER_KEY_ID=%s\n", keyID)
			fmt.Fprintf(out, "VOUCHERD_SIGNER_SEED=%s\n", s.Seed())
			fmt.Fprintf(out, "# public key: %s\n", s.PublicKey().Hex())
			return nil
		},
	}

	cmd.Flags().String("key-id", "k1", "key id embedded in signatures")

	return cmd
}
