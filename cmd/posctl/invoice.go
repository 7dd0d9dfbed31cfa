package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	billingv1 "github.com/vladislavdragonenkov/pos/api/billing/v1"
)

func newInvoiceCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "invoice",
		Aliases: []string{"inv"},
		Short:   "Create and inspect invoices",
	}
	cmd.AddCommand(
		newInvoiceCreateCmd(opts),
		newInvoiceGetCmd(opts),
		newInvoiceListCmd(opts),
		newInvoiceCancelCmd(opts),
		newInvoiceReconcileCmd(opts),
		newInvoiceTimelineCmd(opts),
	)
	return cmd
}

func newInvoiceCreateCmd(opts *globalOptions) *cobra.Command {
	var (
		items []string
		req   billingv1.CreateInvoiceRequest
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an invoice (sale)",
		Example: `  posctl invoice create --shop shop-1 --item tea:2:120.00 --item "cake:1:80.50:Honey cake" --paid 100
  posctl invoice create --shop shop-1 --item tea:1:120.00 --customer-name "Anna" --discount 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(items) == 0 {
				return fmt.Errorf("at least one --item is required")
			}
			for _, raw := range items {
				item, err := parseItem(raw)
				if err != nil {
					return err
				}
				req.Items = append(req.Items, item)
			}
			req.ShopID = opts.shopID

			return opts.call(cmd, true, func(ctx context.Context, client billingv1.BillingServiceClient) error {
				resp, err := client.CreateInvoice(ctx, &req)
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

	flags := cmd.Flags()
	flags.StringArrayVar(&items, "item", nil, "line item product:qty:unit_price[:name] (repeatable)")
	flags.StringVar(&req.CustomerID, "customer-id", "", "customer id")
	flags.StringVar(&req.CustomerName, "customer-name", "", "customer name")
	flags.StringVar(&req.CustomerPhone, "customer-phone", "", "customer phone")
	flags.StringVar(&req.Discount, "discount", "", "discount amount")
	flags.StringVar(&req.Tax, "tax", "", "tax amount")
	flags.StringVar(&req.InitialPayment, "paid", "", "amount paid at the counter; empty sells on credit")
	return cmd
}

// parseItem разбирает позицию формата product:qty:unit_price[:name].
func parseItem(raw string) (billingv1.CreateInvoiceItem, error) {
	parts := strings.SplitN(raw, ":", 4)
	if len(parts) < 3 {
		return billingv1.CreateInvoiceItem{}, fmt.Errorf("item %q: expected product:qty:unit_price[:name]", raw)
	}

	productID := strings.TrimSpace(parts[0])
	if productID == "" {
		return billingv1.CreateInvoiceItem{}, fmt.Errorf("item %q: product id is empty", raw)
	}
	qty, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 32)
	if err != nil {
		return billingv1.CreateInvoiceItem{}, fmt.Errorf("item %q: invalid qty: %w", raw, err)
	}

	item := billingv1.CreateInvoiceItem{
		ProductID: productID,
		Qty:       int32(qty),
		UnitPrice: strings.TrimSpace(parts[2]),
	}
	if len(parts) == 4 {
		item.ProductName = strings.TrimSpace(parts[3])
	}
	return item, nil
}

func paymentsOf(payment *billingv1.Payment) []billingv1.Payment {
	if payment == nil {
		return nil
	}
	return []billingv1.Payment{*payment}
}

func newInvoiceGetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <invoice-id>",
		Short: "Show an invoice with its items and payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, false, func(ctx context.Context, client billingv1.BillingServiceClient) error {
				resp, err := client.GetInvoice(ctx, &billingv1.GetInvoiceRequest{ShopID: opts.shopID, InvoiceID: args[0]})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				out := renderInvoice(resp.Invoice, resp.Payments)
				if len(resp.Timeline) > 0 {
					out += "\n" + renderTimeline(resp.Timeline)
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), out)
				return err
			})
		},
	}
}

func newInvoiceListCmd(opts *globalOptions) *cobra.Command {
	var limit int32

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent invoices of the shop, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.call(cmd, false, func(ctx context.Context, client billingv1.BillingServiceClient) error {
				resp, err := client.ListInvoices(ctx, &billingv1.ListInvoicesRequest{ShopID: opts.shopID, PageSize: limit})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), renderInvoiceList(resp.Invoices))
				return err
			})
		},
	}
	cmd.Flags().Int32Var(&limit, "limit", 20, "max invoices to show")
	return cmd
}

func newInvoiceCancelCmd(opts *globalOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <invoice-id>",
		Short: "Cancel an unpaid invoice and restock its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, true, func(ctx context.Context, client billingv1.BillingServiceClient) error {
				resp, err := client.CancelInvoice(ctx, &billingv1.CancelInvoiceRequest{ShopID: opts.shopID, InvoiceID: args[0], Reason: reason})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), renderInvoice(resp.Invoice, nil))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func newInvoiceReconcileCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <invoice-id>",
		Short: "Recompute paid and due amounts from the payment ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, false, func(ctx context.Context, client billingv1.BillingServiceClient) error {
				resp, err := client.ReconcileInvoice(ctx, &billingv1.ReconcileInvoiceRequest{ShopID: opts.shopID, InvoiceID: args[0]})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), renderInvoice(resp.Invoice, nil))
				return err
			})
		},
	}
}

func newInvoiceTimelineCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "timeline <invoice-id>",
		Short: "Show the audit trail of an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, false, func(ctx context.Context, client billingv1.BillingServiceClient) error {
				resp, err := client.GetTimeline(ctx, &billingv1.GetTimelineRequest{ShopID: opts.shopID, InvoiceID: args[0]})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), renderTimeline(resp.Events))
				return err
			})
		},
	}
}
