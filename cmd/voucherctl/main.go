// voucherctl buys, redeems and inspects experience vouchers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "voucherctl",
		Short:         "Buy and redeem x402 experience vouchers",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("server", envOr("VOUCHERCTL_SERVER", "http://localhost:8402"), "voucher server base URL")

	rootCmd.AddCommand(experiencesCmd())
	rootCmd.AddCommand(buyCmd())
	rootCmd.AddCommand(redeemCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(keygenCmd())

	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
