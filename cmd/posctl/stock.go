package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	billingv1 "github.com/vladislavdragonenkov/pos/api/billing/v1"
)

func newStockCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Inspect stock reconciliation",
	}

	discrepancies := &cobra.Command{
		Use:     "discrepancies",
		Aliases: []string{"disc"},
		Short:   "Review stock discrepancies recorded from sale events",
	}
	discrepancies.AddCommand(newDiscrepancyListCmd(opts))
	discrepancies.AddCommand(newDiscrepancyResolveCmd(opts))

	cmd.AddCommand(discrepancies)
	return cmd
}

func newDiscrepancyListCmd(opts *globalOptions) *cobra.Command {
	var limit int32

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open stock discrepancies, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.call(cmd, false, func(ctx context.Context, client billingv1.BillingServiceClient) error {
				resp, err := client.ListStockDiscrepancies(ctx, &billingv1.ListStockDiscrepanciesRequest{ShopID: opts.shopID, PageSize: limit})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), renderDiscrepancies(resp.Discrepancies))
				return err
			})
		},
	}
	cmd.Flags().Int32Var(&limit, "limit", 50, "max discrepancies to show")
	return cmd
}

func newDiscrepancyResolveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "resolve <discrepancy-id>",
		Short:   "Mark a discrepancy as settled after a manual stock count",
		Example: "  posctl stock discrepancies resolve 9b1e... --shop shop-1",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, false, func(ctx context.Context, client billingv1.BillingServiceClient) error {
				if _, err := client.ResolveStockDiscrepancy(ctx, &billingv1.ResolveStockDiscrepancyRequest{
					ShopID:        opts.shopID,
					DiscrepancyID: args[0],
				}); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "resolved "+args[0])
				return err
			})
		},
	}
}
