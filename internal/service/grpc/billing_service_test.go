package grpcsvc_test

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	billingv1 "github.com/vladislavdragonenkov/pos/api/billing/v1"
	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/service/billing"
	grpcsvc "github.com/vladislavdragonenkov/pos/internal/service/grpc"
	"github.com/vladislavdragonenkov/pos/internal/service/inventory"
	"github.com/vladislavdragonenkov/pos/internal/storage/memory"
)

const (
	bufSize  = 1024 * 1024
	testShop = "shop-1"
)

func idemCtx(key string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "idempotency-key", key)
}

type testEnv struct {
	client        billingv1.BillingServiceClient
	stock         domain.StockRepository
	discrepancies domain.StockDiscrepancyRepository
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	logger := loggerForTests()

	invoices := memory.NewInvoiceRepository()
	stock := memory.NewStockRepository()
	svc, err := billing.NewService(billing.Repositories{
		Invoices: invoices,
		Items:    memory.NewInvoiceItemRepository(),
		Payments: memory.NewPaymentRepository(invoices),
		Stock:    stock,
		Outbox:   memory.NewOutboxRepository(),
		Timeline: memory.NewTimelineRepository(),
	}, billing.WithLogger(logger.WithField("layer", "billing")))
	require.NoError(t, err)

	discrepancies := memory.NewStockDiscrepancyRepository()
	reconciler, err := inventory.NewReconciler(discrepancies, logger.WithField("layer", "inventory"))
	require.NoError(t, err)

	server := grpc.NewServer()
	billingv1.RegisterBillingServiceServer(server, grpcsvc.NewBillingService(svc, memory.NewIdempotencyRepository(), logger,
		grpcsvc.WithStockReconciler(reconciler),
	))

	go func() {
		if err := server.Serve(listener); err != nil {
			logger.WithError(err).Error("grpc serve failed")
		}
	}()

	dialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})

	return &testEnv{client: billingv1.NewBillingServiceClient(conn), stock: stock, discrepancies: discrepancies}
}

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	return logger.WithField("component", "test")
}

func (e *testEnv) seed(t *testing.T, productID string, priceMinor, stock int64) {
	t.Helper()
	require.NoError(t, e.stock.Upsert(domain.Product{ID: productID, ShopID: testShop, Name: productID, PriceMinor: priceMinor, Stock: stock}))
}

func saleRequest(qty int32, price, initial string) *billingv1.CreateInvoiceRequest {
	return &billingv1.CreateInvoiceRequest{
		ShopID:       testShop,
		CustomerName: "Walk-in",
		Items: []billingv1.CreateInvoiceItem{{
			ProductID:   "tea",
			ProductName: "Tea",
			UnitPrice:   price,
			Qty:         qty,
		}},
		InitialPayment: initial,
	}
}

func TestCreateInvoiceAndPay(t *testing.T) {
	env := newTestServer(t)
	env.seed(t, "tea", 5000, 10)

	created, err := env.client.CreateInvoice(idemCtx("create-1"), saleRequest(3, "50.00", "20.00"))
	require.NoError(t, err)
	require.Equal(t, "150.00", created.Invoice.Total)
	require.Equal(t, "20.00", created.Invoice.AmountPaid)
	require.Equal(t, "130.00", created.Invoice.DueAmount)
	require.Equal(t, "partial", created.Invoice.PaymentStatus)
	require.NotNil(t, created.Payment)
	require.Equal(t, "20.00", created.Payment.Amount)
	require.Len(t, created.Invoice.Items, 1)
	require.Equal(t, "150.00", created.Invoice.Items[0].LineTotal)

	paid, err := env.client.RecordPayment(idemCtx("pay-1"), &billingv1.RecordPaymentRequest{
		ShopID:    testShop,
		InvoiceID: created.Invoice.ID,
		Amount:    "130.00",
	})
	require.NoError(t, err)
	require.Equal(t, "paid", paid.Invoice.PaymentStatus)
	require.Equal(t, "0.00", paid.Invoice.DueAmount)

	got, err := env.client.GetInvoice(context.Background(), &billingv1.GetInvoiceRequest{ShopID: testShop, InvoiceID: created.Invoice.ID})
	require.NoError(t, err)
	require.Len(t, got.Payments, 2)
	require.Len(t, got.Invoice.Items, 1)
	require.NotEmpty(t, got.Timeline)

	list, err := env.client.ListInvoices(context.Background(), &billingv1.ListInvoicesRequest{ShopID: testShop})
	require.NoError(t, err)
	require.Len(t, list.Invoices, 1)

	timeline, err := env.client.GetTimeline(context.Background(), &billingv1.GetTimelineRequest{ShopID: testShop, InvoiceID: created.Invoice.ID})
	require.NoError(t, err)
	require.Equal(t, domain.TimelineInvoiceCreated, timeline.Events[0].Type)

	reconciled, err := env.client.ReconcileInvoice(context.Background(), &billingv1.ReconcileInvoiceRequest{ShopID: testShop, InvoiceID: created.Invoice.ID})
	require.NoError(t, err)
	require.Equal(t, paid.Invoice.Version, reconciled.Invoice.Version)
}

func TestErrorMapping(t *testing.T) {
	env := newTestServer(t)
	env.seed(t, "tea", 5000, 2)

	_, err := env.client.CreateInvoice(idemCtx("bad-price"), saleRequest(1, "abc", ""))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = env.client.CreateInvoice(idemCtx("too-precise"), saleRequest(1, "1.001", ""))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = env.client.CreateInvoice(idemCtx("zero-qty"), saleRequest(0, "50.00", ""))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = env.client.CreateInvoice(idemCtx("oversell"), saleRequest(5, "50.00", ""))
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = env.client.GetInvoice(context.Background(), &billingv1.GetInvoiceRequest{ShopID: testShop, InvoiceID: "missing"})
	require.Equal(t, codes.NotFound, status.Code(err))

	created, err := env.client.CreateInvoice(idemCtx("ok"), saleRequest(1, "50.00", "10.00"))
	require.NoError(t, err)

	_, err = env.client.RecordPayment(idemCtx("over"), &billingv1.RecordPaymentRequest{ShopID: testShop, InvoiceID: created.Invoice.ID, Amount: "40.01"})
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = env.client.RecordPayment(idemCtx("zero"), &billingv1.RecordPaymentRequest{ShopID: testShop, InvoiceID: created.Invoice.ID, Amount: "0"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = env.client.CancelInvoice(idemCtx("cancel-paid"), &billingv1.CancelInvoiceRequest{ShopID: testShop, InvoiceID: created.Invoice.ID})
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestIdempotencyKeyRequired(t *testing.T) {
	env := newTestServer(t)

	_, err := env.client.CreateInvoice(context.Background(), saleRequest(1, "50.00", ""))
	require.Equal(t, codes.InvalidArgument, status.Code(err))
	require.Contains(t, status.Convert(err).Message(), "idempotency-key")
}

func TestIdempotentReplay(t *testing.T) {
	env := newTestServer(t)
	env.seed(t, "tea", 5000, 10)

	first, err := env.client.CreateInvoice(idemCtx("create-replay"), saleRequest(2, "50.00", ""))
	require.NoError(t, err)
	second, err := env.client.CreateInvoice(idemCtx("create-replay"), saleRequest(2, "50.00", ""))
	require.NoError(t, err)
	require.Equal(t, first.Invoice.ID, second.Invoice.ID)

	list, err := env.client.ListInvoices(context.Background(), &billingv1.ListInvoicesRequest{ShopID: testShop})
	require.NoError(t, err)
	require.Len(t, list.Invoices, 1, "replay must not create a second invoice")

	product, err := env.stock.Get(testShop, "tea")
	require.NoError(t, err)
	require.Equal(t, int64(8), product.Stock, "replay must not decrement stock twice")

	_, err = env.client.CreateInvoice(idemCtx("create-replay"), saleRequest(3, "50.00", ""))
	require.Equal(t, codes.AlreadyExists, status.Code(err))

	payReq := &billingv1.RecordPaymentRequest{ShopID: testShop, InvoiceID: first.Invoice.ID, Amount: "100.00"}
	_, err = env.client.RecordPayment(idemCtx("pay-replay"), payReq)
	require.NoError(t, err)
	replayed, err := env.client.RecordPayment(idemCtx("pay-replay"), payReq)
	require.NoError(t, err, "replayed payment must return cached response, not over-payment error")
	require.Equal(t, "paid", replayed.Invoice.PaymentStatus)
}

func TestIdempotentFailureReplay(t *testing.T) {
	env := newTestServer(t)

	req := &billingv1.RecordPaymentRequest{ShopID: testShop, InvoiceID: "missing", Amount: "10.00"}
	_, err := env.client.RecordPayment(idemCtx("pay-missing"), req)
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = env.client.RecordPayment(idemCtx("pay-missing"), req)
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestIdempotencyKeysAreScopedByShopAndMethod(t *testing.T) {
	env := newTestServer(t)
	env.seed(t, "tea", 5000, 10)
	require.NoError(t, env.stock.Upsert(domain.Product{ID: "tea", ShopID: "shop-2", Name: "tea", PriceMinor: 5000, Stock: 10}))

	first, err := env.client.CreateInvoice(idemCtx("receipt-0001"), saleRequest(1, "50.00", ""))
	require.NoError(t, err)

	// Касса другого магазина начинает нумерацию чеков с того же значения.
	other := saleRequest(1, "50.00", "")
	other.ShopID = "shop-2"
	second, err := env.client.CreateInvoice(idemCtx("receipt-0001"), other)
	require.NoError(t, err)
	require.NotEqual(t, first.Invoice.ID, second.Invoice.ID)

	payReq := &billingv1.RecordPaymentRequest{ShopID: testShop, InvoiceID: first.Invoice.ID, Amount: "10.00"}
	_, err = env.client.RecordPayment(idemCtx("receipt-0001"), payReq)
	require.Equal(t, codes.AlreadyExists, status.Code(err))
	require.Contains(t, status.Convert(err).Message(), "another method")

	_, err = env.client.CreateInvoice(idemCtx("receipt-0002"), &billingv1.CreateInvoiceRequest{
		Items: saleRequest(1, "50.00", "").Items,
	})
	require.Equal(t, codes.InvalidArgument, status.Code(err), "idempotency key needs a shop")
}

func TestCancelInvoiceRestocks(t *testing.T) {
	env := newTestServer(t)
	env.seed(t, "tea", 5000, 10)

	created, err := env.client.CreateInvoice(idemCtx("create-c"), saleRequest(4, "50.00", ""))
	require.NoError(t, err)

	cancelled, err := env.client.CancelInvoice(idemCtx("cancel-c"), &billingv1.CancelInvoiceRequest{
		ShopID: testShop, InvoiceID: created.Invoice.ID, Reason: "mistake",
	})
	require.NoError(t, err)
	require.Equal(t, "cancelled", cancelled.Invoice.Status)
	require.Equal(t, "cancelled", cancelled.Invoice.PaymentStatus)

	product, err := env.stock.Get(testShop, "tea")
	require.NoError(t, err)
	require.Equal(t, int64(10), product.Stock)

	_, err = env.client.RecordPayment(idemCtx("pay-c"), &billingv1.RecordPaymentRequest{ShopID: testShop, InvoiceID: created.Invoice.ID, Amount: "1.00"})
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestConcurrentPaymentsOverGRPC(t *testing.T) {
	env := newTestServer(t)

	created, err := env.client.CreateInvoice(idemCtx("create-cc"), &billingv1.CreateInvoiceRequest{
		ShopID: testShop,
		Items:  []billingv1.CreateInvoiceItem{{ProductID: "svc", UnitPrice: "10.00", Qty: 5}},
	})
	require.NoError(t, err)

	const workers = 5
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.client.RecordPayment(idemCtx(fmt.Sprintf("pay-cc-%d", i)), &billingv1.RecordPaymentRequest{
				ShopID: testShop, InvoiceID: created.Invoice.ID, Amount: "10.00",
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := env.client.GetInvoice(context.Background(), &billingv1.GetInvoiceRequest{ShopID: testShop, InvoiceID: created.Invoice.ID})
	require.NoError(t, err)
	require.Equal(t, "50.00", got.Invoice.AmountPaid)
	require.Equal(t, "paid", got.Invoice.PaymentStatus)
}

func TestStockDiscrepancies_ListAndResolve(t *testing.T) {
	env := newTestServer(t)
	ctx := context.Background()

	for i, kind := range []domain.DiscrepancyKind{domain.DiscrepancyDecrementFailed, domain.DiscrepancyBackordered} {
		_, err := env.discrepancies.Record(domain.StockDiscrepancy{
			ShopID:    testShop,
			InvoiceID: fmt.Sprintf("inv-%d", i),
			ProductID: "tea",
			Qty:       2,
			Kind:      kind,
			EventID:   fmt.Sprintf("evt-%d", i),
		})
		require.NoError(t, err)
	}
	_, err := env.discrepancies.Record(domain.StockDiscrepancy{ShopID: "shop-2", ProductID: "tea", Qty: 1, Kind: domain.DiscrepancyBackordered, EventID: "evt-other"})
	require.NoError(t, err)

	listed, err := env.client.ListStockDiscrepancies(ctx, &billingv1.ListStockDiscrepanciesRequest{ShopID: testShop})
	require.NoError(t, err)
	require.Len(t, listed.Discrepancies, 2)
	for _, d := range listed.Discrepancies {
		require.Equal(t, testShop, d.ShopID)
		require.Equal(t, "tea", d.ProductID)
	}

	target := listed.Discrepancies[0].ID
	_, err = env.client.ResolveStockDiscrepancy(ctx, &billingv1.ResolveStockDiscrepancyRequest{ShopID: "shop-2", DiscrepancyID: target})
	require.Equal(t, codes.NotFound, status.Code(err), "another shop cannot close the record")

	_, err = env.client.ResolveStockDiscrepancy(ctx, &billingv1.ResolveStockDiscrepancyRequest{ShopID: testShop, DiscrepancyID: target})
	require.NoError(t, err)

	listed, err = env.client.ListStockDiscrepancies(ctx, &billingv1.ListStockDiscrepanciesRequest{ShopID: testShop, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, listed.Discrepancies, 1)
	require.NotEqual(t, target, listed.Discrepancies[0].ID)
}

func TestStockDiscrepancies_Validation(t *testing.T) {
	env := newTestServer(t)
	ctx := context.Background()

	_, err := env.client.ListStockDiscrepancies(ctx, &billingv1.ListStockDiscrepanciesRequest{})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = env.client.ResolveStockDiscrepancy(ctx, &billingv1.ResolveStockDiscrepancyRequest{ShopID: testShop})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = env.client.ResolveStockDiscrepancy(ctx, &billingv1.ResolveStockDiscrepancyRequest{ShopID: testShop, DiscrepancyID: "missing"})
	require.Equal(t, codes.NotFound, status.Code(err))
}
