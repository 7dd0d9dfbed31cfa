package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	billingv1 "github.com/vladislavdragonenkov/pos/api/billing/v1"
	"github.com/vladislavdragonenkov/pos/internal/version"
)

const (
	envGRPCAddr       = "POS_GRPC_ADDR"
	envShopID         = "POS_SHOP_ID"
	defaultAddr       = "localhost:50051"
	idempotencyHeader = "idempotency-key"
)

// dialFunc открывает клиент биллинга; возвращаемая функция закрывает соединение.
type dialFunc func(addr string) (billingv1.BillingServiceClient, func() error, error)

func dialBilling(addr string) (billingv1.BillingServiceClient, func() error, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return billingv1.NewBillingServiceClient(conn), conn.Close, nil
}

type globalOptions struct {
	addr           string
	shopID         string
	timeout        time.Duration
	jsonOutput     bool
	idempotencyKey string
	dial           dialFunc
}

func newRootCmd(dial dialFunc) *cobra.Command {
	opts := &globalOptions{dial: dial}

	cmd := &cobra.Command{
		Use:           "posctl",
		Short:         "Operate the POS billing service",
		Long:          "posctl creates invoices, records payments, inspects invoice history and settles stock discrepancies through the billing gRPC API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.addr, "addr", envOr(envGRPCAddr, defaultAddr), "billing gRPC address (env "+envGRPCAddr+")")
	flags.StringVar(&opts.shopID, "shop", os.Getenv(envShopID), "shop id (env "+envShopID+")")
	flags.DurationVar(&opts.timeout, "timeout", 5*time.Second, "per-call timeout")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print raw JSON responses")
	flags.StringVar(&opts.idempotencyKey, "idempotency-key", "", "idempotency key for mutating calls (default: random)")

	cmd.AddCommand(newInvoiceCmd(opts))
	cmd.AddCommand(newPaymentCmd(opts))
	cmd.AddCommand(newStockCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show posctl build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// call открывает соединение, выполняет fn с таймаутом и переводит gRPC-статус в читаемую ошибку.
// mutating добавляет idempotency-key в metadata.
func (o *globalOptions) call(cmd *cobra.Command, mutating bool, fn func(ctx context.Context, client billingv1.BillingServiceClient) error) error {
	if strings.TrimSpace(o.shopID) == "" {
		return errors.New("shop id is required (--shop or " + envShopID + ")")
	}

	client, closeFn, err := o.dial(o.addr)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()
	if mutating {
		key := o.idempotencyKey
		if key == "" {
			key = uuid.NewString()
		}
		ctx = metadata.AppendToOutgoingContext(ctx, idempotencyHeader, key)
	}

	if err := fn(ctx, client); err != nil {
		if st, ok := status.FromError(err); ok {
			return fmt.Errorf("%s: %s", st.Code(), st.Message())
		}
		return err
	}
	return nil
}
