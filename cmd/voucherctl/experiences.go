package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/siddimore/x402-vouchers/pkg/x402"
)

func experiencesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "experiences",
		Short: "List the experiences for sale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")

			exps, err := x402.NewClient(server).Experiences(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE\tDATE\tLOCATION")
			for _, e := range exps {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%v USDC\t%s\t%s\n", e.ID, e.Name, e.Category, e.PriceUSDC, e.Date, e.Location)
			}
			return tw.Flush()
		},
	}
}
