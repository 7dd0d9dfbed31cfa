package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	billingv1 "github.com/vladislavdragonenkov/pos/api/billing/v1"
)

func newPaymentCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "payment",
		Aliases: []string{"pay"},
		Short:   "Record payments against invoices",
	}
	cmd.AddCommand(newPaymentRecordCmd(opts))
	return cmd
}

func newPaymentRecordCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "record <invoice-id> <amount>",
		Short:   "Record a payment; overpayment is rejected",
		Example: "  posctl payment record 5f0c... 250.00 --shop shop-1",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, true, func(ctx context.Context, client billingv1.BillingServiceClient) error {
				resp, err := client.RecordPayment(ctx, &billingv1.RecordPaymentRequest{
					ShopID:    opts.shopID,
					InvoiceID: args[0],
					Amount:    args[1],
				})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), renderInvoice(resp.Invoice, paymentsOf(resp.Payment)))
				return err
			})
		},
	}
}
