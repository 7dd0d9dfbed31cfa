package integration

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	billingv1 "github.com/vladislavdragonenkov/pos/api/billing/v1"
	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pos/internal/service/billing"
	grpcsvc "github.com/vladislavdragonenkov/pos/internal/service/grpc"
	"github.com/vladislavdragonenkov/pos/internal/service/inventory"
	"github.com/vladislavdragonenkov/pos/internal/service/outbox"
	"github.com/vladislavdragonenkov/pos/internal/storage/memory"
)

const (
	rejectShop    = "shop-reject"
	backorderShop = "shop-backorder"
)

// capturePublisher собирает опубликованные события в виде Kafka-сообщений.
type capturePublisher struct {
	mu       sync.Mutex
	messages []*sarama.ConsumerMessage
}

func (p *capturePublisher) Publish(event domain.OutboxMessage) error {
	value, err := json.Marshal(kafka.OutboxEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, &sarama.ConsumerMessage{
		Topic: kafka.TopicForEvent(event.EventType, kafka.TopicInvoiceEvents),
		Key:   []byte(event.AggregateID),
		Value: value,
	})
	return nil
}

func (p *capturePublisher) onTopic(topic string) []*sarama.ConsumerMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*sarama.ConsumerMessage
	for _, m := range p.messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// InvoiceLifecycleTestSuite проверяет продажу, оплату, отмену и сверку остатков через gRPC-слой.
type InvoiceLifecycleTestSuite struct {
	suite.Suite
	api        *grpcsvc.BillingService
	stock      domain.StockRepository
	outboxRepo domain.OutboxRepository
	worker     *outbox.Worker
	published  *capturePublisher
	reconciler *inventory.Reconciler
}

func (s *InvoiceLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")

	invoices := memory.NewInvoiceRepository()
	s.stock = memory.NewStockRepository()
	s.outboxRepo = memory.NewOutboxRepository()

	for _, shop := range []string{rejectShop, backorderShop} {
		s.Require().NoError(s.stock.Upsert(domain.Product{ID: "espresso", ShopID: shop, Name: "Espresso", PriceMinor: 25000, Stock: 5}))
	}

	svc, err := billing.NewService(billing.Repositories{
		Invoices: invoices,
		Items:    memory.NewInvoiceItemRepository(),
		Payments: memory.NewPaymentRepository(invoices),
		Stock:    s.stock,
		Outbox:   s.outboxRepo,
		Timeline: memory.NewTimelineRepository(),
	},
		billing.WithLogger(logger.WithField("layer", "billing")),
		billing.WithPolicyResolver(billing.NewStaticPolicies(domain.StockPolicyReject, map[string]domain.StockPolicy{
			backorderShop: domain.StockPolicyBackorder,
		})),
	)
	s.Require().NoError(err)

	s.api = grpcsvc.NewBillingService(svc, memory.NewIdempotencyRepository(), logger)
	s.published = &capturePublisher{}
	s.worker = outbox.NewWorker(s.outboxRepo, s.published, outbox.WithLogger(logger), outbox.WithRetryBaseDelay(0))

	s.reconciler, err = inventory.NewReconciler(memory.NewStockDiscrepancyRepository(), logger)
	s.Require().NoError(err)
}

func (s *InvoiceLifecycleTestSuite) ctx() context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", uuid.NewString()))
}

func (s *InvoiceLifecycleTestSuite) sale(shop string, qty int32, initial string) (*billingv1.CreateInvoiceResponse, error) {
	return s.api.CreateInvoice(s.ctx(), &billingv1.CreateInvoiceRequest{
		ShopID:       shop,
		CustomerName: "Walk-in",
		Items: []billingv1.CreateInvoiceItem{{
			ProductID: "espresso",
			UnitPrice: "250.00",
			Qty:       qty,
		}},
		InitialPayment: initial,
	})
}

func (s *InvoiceLifecycleTestSuite) stockOf(shop string) int64 {
	product, err := s.stock.Get(shop, "espresso")
	s.Require().NoError(err)
	return product.Stock
}

func (s *InvoiceLifecycleTestSuite) TestPartialSaleSettledByInstallments() {
	created, err := s.sale(rejectShop, 2, "100.00")
	s.Require().NoError(err)
	inv := created.Invoice
	s.Equal("500.00", inv.Total)
	s.Equal("400.00", inv.DueAmount)
	s.Equal("partial", inv.PaymentStatus)
	s.Equal(int64(3), s.stockOf(rejectShop))

	for _, amount := range []string{"150.00", "250.00"} {
		_, err := s.api.RecordPayment(s.ctx(), &billingv1.RecordPaymentRequest{ShopID: rejectShop, InvoiceID: inv.ID, Amount: amount})
		s.Require().NoError(err)
	}

	got, err := s.api.GetInvoice(context.Background(), &billingv1.GetInvoiceRequest{ShopID: rejectShop, InvoiceID: inv.ID})
	s.Require().NoError(err)
	s.Equal("paid", got.Invoice.PaymentStatus)
	s.Equal("0.00", got.Invoice.DueAmount)
	s.Len(got.Payments, 3)
	s.NotEmpty(got.Timeline)

	_, err = s.api.RecordPayment(s.ctx(), &billingv1.RecordPaymentRequest{ShopID: rejectShop, InvoiceID: inv.ID, Amount: "0.01"})
	s.Equal(codes.FailedPrecondition, status.Code(err))
}

func (s *InvoiceLifecycleTestSuite) TestCreditSaleCancelledRestocks() {
	created, err := s.sale(rejectShop, 3, "")
	s.Require().NoError(err)
	s.Equal("pending", created.Invoice.PaymentStatus)
	s.Equal(int64(2), s.stockOf(rejectShop))

	cancelled, err := s.api.CancelInvoice(s.ctx(), &billingv1.CancelInvoiceRequest{ShopID: rejectShop, InvoiceID: created.Invoice.ID, Reason: "customer changed mind"})
	s.Require().NoError(err)
	s.Equal("cancelled", cancelled.Invoice.Status)
	s.Equal(int64(5), s.stockOf(rejectShop))

	_, err = s.api.RecordPayment(s.ctx(), &billingv1.RecordPaymentRequest{ShopID: rejectShop, InvoiceID: created.Invoice.ID, Amount: "10.00"})
	s.Equal(codes.FailedPrecondition, status.Code(err))
}

func (s *InvoiceLifecycleTestSuite) TestRejectPolicyBlocksOversell() {
	_, err := s.sale(rejectShop, 6, "")
	s.Equal(codes.FailedPrecondition, status.Code(err))
	s.Equal(int64(5), s.stockOf(rejectShop))

	list, err := s.api.ListInvoices(context.Background(), &billingv1.ListInvoicesRequest{ShopID: rejectShop})
	s.Require().NoError(err)
	s.Empty(list.Invoices)
}

func (s *InvoiceLifecycleTestSuite) TestBackorderReachesStockReconciliation() {
	created, err := s.sale(backorderShop, 7, "1750.00")
	s.Require().NoError(err)
	s.Equal("paid", created.Invoice.PaymentStatus)
	s.Equal(int64(-2), s.stockOf(backorderShop))

	result := s.worker.ProcessOnce(context.Background())
	s.Zero(result.Failed)
	s.Positive(result.Sent)

	stats, err := s.outboxRepo.Stats()
	s.Require().NoError(err)
	s.Zero(stats.PendingCount)

	s.NotEmpty(s.published.onTopic(kafka.TopicInvoiceEvents))
	s.NotEmpty(s.published.onTopic(kafka.TopicPaymentEvents))
	stockEvents := s.published.onTopic(kafka.TopicStockEvents)
	s.Require().Len(stockEvents, 1)

	for _, msg := range stockEvents {
		s.Require().NoError(s.reconciler.Handle(context.Background(), msg))
		s.Require().NoError(s.reconciler.Handle(context.Background(), msg))
	}

	open, err := s.reconciler.Open(backorderShop, 10)
	s.Require().NoError(err)
	s.Require().Len(open, 1)
	s.Equal(domain.DiscrepancyBackordered, open[0].Kind)
	s.Equal(created.Invoice.ID, open[0].InvoiceID)
	s.Equal(int32(7), open[0].Qty)
}

func (s *InvoiceLifecycleTestSuite) TestConcurrentPaymentsNeverOverpay() {
	created, err := s.sale(rejectShop, 1, "")
	s.Require().NoError(err)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	ctxs := make([]context.Context, workers)
	for i := range ctxs {
		ctxs[i] = s.ctx()
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(ctx context.Context) {
			defer wg.Done()
			_, err := s.api.RecordPayment(ctx, &billingv1.RecordPaymentRequest{ShopID: rejectShop, InvoiceID: created.Invoice.ID, Amount: "50.00"})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(ctxs[i])
	}
	wg.Wait()

	s.LessOrEqual(accepted, 5)
	reconciled, err := s.api.ReconcileInvoice(context.Background(), &billingv1.ReconcileInvoiceRequest{ShopID: rejectShop, InvoiceID: created.Invoice.ID})
	s.Require().NoError(err)
	s.Equal("250.00", reconciled.Invoice.AmountPaid)
	s.Equal("paid", reconciled.Invoice.PaymentStatus)
}

func (s *InvoiceLifecycleTestSuite) TestIdempotentCreateReplay() {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "till-1-receipt-42"))
	req := &billingv1.CreateInvoiceRequest{
		ShopID:         rejectShop,
		Items:          []billingv1.CreateInvoiceItem{{ProductID: "espresso", UnitPrice: "250.00", Qty: 1}},
		InitialPayment: "250.00",
	}

	first, err := s.api.CreateInvoice(ctx, req)
	s.Require().NoError(err)
	second, err := s.api.CreateInvoice(ctx, req)
	s.Require().NoError(err)
	s.Equal(first.Invoice.ID, second.Invoice.ID)
	s.Equal(int64(4), s.stockOf(rejectShop))
}

func TestInvoiceLifecycleSuite(t *testing.T) {
	suite.Run(t, new(InvoiceLifecycleTestSuite))
}

func TestCapturePublisherRoutesByEventType(t *testing.T) {
	p := &capturePublisher{}
	require.NoError(t, p.Publish(domain.OutboxMessage{ID: "1", AggregateID: "inv", EventType: string(kafka.EventTypeStockBackordered), Payload: []byte(`{}`)}))
	require.Len(t, p.onTopic(kafka.TopicStockEvents), 1)
}
