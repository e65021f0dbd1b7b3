package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	stripeClient "github.com/soulart-temple/backend/internal/stripe"
)

func newSeedProductsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-products",
		Short: "Create the membership products and prices in Stripe",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			client := stripeClient.NewClient(viper.GetString("stripe_secret_key"), viper.GetString("stripe_product_app"), log)

			results, err := client.SeedProducts(cmd.Context(), stripeClient.DefaultOfferings)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIER\tPRODUCT\tPRICES\tCREATED")
			for _, r := range results {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%t\n", r.Product.Tier, r.Product.ID, len(r.Product.Prices), r.Created)
			}
			return tw.Flush()
		},
	}
}
