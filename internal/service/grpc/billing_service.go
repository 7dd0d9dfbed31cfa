// Package grpcsvc публикует workflow биллинга через gRPC API billingv1.
package grpcsvc

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	billingv1 "github.com/vladislavdragonenkov/pos/api/billing/v1"
	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/money"
	"github.com/vladislavdragonenkov/pos/internal/service/billing"
	"github.com/vladislavdragonenkov/pos/internal/service/inventory"
)

const defaultListInvoicesLimit = 50

// BillingService реализует billingv1.BillingServiceServer поверх billing.Service.
type BillingService struct {
	billingv1.UnimplementedBillingServiceServer

	billing    *billing.Service
	idemRepo   domain.IdempotencyRepository
	reconciler *inventory.Reconciler
	logger     *log.Entry
}

// Option настраивает BillingService.
type Option func(*BillingService)

// WithStockReconciler открывает RPC ручной сверки остатков.
// Без него ListStockDiscrepancies и ResolveStockDiscrepancy отвечают Unimplemented.
func WithStockReconciler(r *inventory.Reconciler) Option {
	return func(s *BillingService) {
		s.reconciler = r
	}
}

// NewBillingService конструирует gRPC-сервис. idemRepo может быть nil: тогда
// idempotency-key не требуется.
func NewBillingService(svc *billing.Service, idemRepo domain.IdempotencyRepository, logger *log.Entry, opts ...Option) *BillingService {
	if logger == nil {
		logger = log.New().WithField("component", "billing-grpc")
	}
	s := &BillingService{
		billing:  svc,
		idemRepo: idemRepo,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInvoice проводит продажу.
func (s *BillingService) CreateInvoice(ctx context.Context, req *billingv1.CreateInvoiceRequest) (*billingv1.CreateInvoiceResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	return withIdempotency(s, ctx, billingv1.BillingService_CreateInvoice_FullMethodName, req.ShopID, req,
		func(ctx context.Context) (*billingv1.CreateInvoiceResponse, error) {
			return s.createInvoice(ctx, req)
		})
}

func (s *BillingService) createInvoice(ctx context.Context, req *billingv1.CreateInvoiceRequest) (*billingv1.CreateInvoiceResponse, error) {
	input, err := toCreateInput(req)
	if err != nil {
		return nil, err
	}

	result, err := s.billing.CreateInvoice(ctx, req.ShopID, input)
	if err != nil {
		return nil, s.toStatus(err, "CreateInvoice")
	}

	resp := &billingv1.CreateInvoiceResponse{Invoice: toAPIInvoice(result.Invoice, result.Items)}
	if result.Payment != nil {
		payment := toAPIPayment(*result.Payment)
		resp.Payment = &payment
	}
	return resp, nil
}

// RecordPayment добавляет платёж к счёту.
func (s *BillingService) RecordPayment(ctx context.Context, req *billingv1.RecordPaymentRequest) (*billingv1.RecordPaymentResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	return withIdempotency(s, ctx, billingv1.BillingService_RecordPayment_FullMethodName, req.ShopID, req,
		func(ctx context.Context) (*billingv1.RecordPaymentResponse, error) {
			return s.recordPayment(ctx, req)
		})
}

func (s *BillingService) recordPayment(ctx context.Context, req *billingv1.RecordPaymentRequest) (*billingv1.RecordPaymentResponse, error) {
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}

	result, err := s.billing.RecordPayment(ctx, req.ShopID, req.InvoiceID, amount)
	if err != nil {
		return nil, s.toStatus(err, "RecordPayment")
	}

	payment := toAPIPayment(result.Payment)
	return &billingv1.RecordPaymentResponse{
		Payment: &payment,
		Invoice: toAPIInvoice(result.Invoice, nil),
	}, nil
}

// GetInvoice возвращает счёт с позициями, платежами и таймлайном.
func (s *BillingService) GetInvoice(ctx context.Context, req *billingv1.GetInvoiceRequest) (*billingv1.GetInvoiceResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	details, err := s.billing.GetInvoice(ctx, req.ShopID, req.InvoiceID)
	if err != nil {
		return nil, s.toStatus(err, "GetInvoice")
	}

	resp := &billingv1.GetInvoiceResponse{
		Invoice:  toAPIInvoice(details.Invoice, details.Items),
		Payments: make([]billingv1.Payment, 0, len(details.Payments)),
	}
	for _, p := range details.Payments {
		resp.Payments = append(resp.Payments, toAPIPayment(p))
	}

	events, err := s.billing.Timeline(ctx, req.ShopID, req.InvoiceID)
	if err != nil {
		s.logger.WithError(err).WithField("invoice_id", req.InvoiceID).Warn("failed to list timeline events")
	} else {
		resp.Timeline = toAPITimeline(events)
	}
	return resp, nil
}

// ListInvoices возвращает последние счета магазина.
func (s *BillingService) ListInvoices(ctx context.Context, req *billingv1.ListInvoicesRequest) (*billingv1.ListInvoicesResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	limit := int(req.PageSize)
	if limit <= 0 {
		limit = defaultListInvoicesLimit
	}

	invoices, err := s.billing.ListInvoices(ctx, req.ShopID, limit)
	if err != nil {
		return nil, s.toStatus(err, "ListInvoices")
	}

	resp := &billingv1.ListInvoicesResponse{Invoices: make([]billingv1.Invoice, 0, len(invoices))}
	for _, inv := range invoices {
		resp.Invoices = append(resp.Invoices, *toAPIInvoice(inv, nil))
	}
	return resp, nil
}

// ReconcileInvoice пересчитывает оплату счёта по журналу платежей.
func (s *BillingService) ReconcileInvoice(ctx context.Context, req *billingv1.ReconcileInvoiceRequest) (*billingv1.ReconcileInvoiceResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	invoice, err := s.billing.ReconcileInvoice(ctx, req.ShopID, req.InvoiceID)
	if err != nil {
		return nil, s.toStatus(err, "ReconcileInvoice")
	}
	return &billingv1.ReconcileInvoiceResponse{Invoice: toAPIInvoice(invoice, nil)}, nil
}

// CancelInvoice отменяет неоплаченный счёт.
func (s *BillingService) CancelInvoice(ctx context.Context, req *billingv1.CancelInvoiceRequest) (*billingv1.CancelInvoiceResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	return withIdempotency(s, ctx, billingv1.BillingService_CancelInvoice_FullMethodName, req.ShopID, req,
		func(ctx context.Context) (*billingv1.CancelInvoiceResponse, error) {
			invoice, err := s.billing.CancelInvoice(ctx, req.ShopID, req.InvoiceID, req.Reason)
			if err != nil {
				return nil, s.toStatus(err, "CancelInvoice")
			}
			return &billingv1.CancelInvoiceResponse{Invoice: toAPIInvoice(invoice, nil)}, nil
		})
}

// GetTimeline возвращает аудит событий счёта.
func (s *BillingService) GetTimeline(ctx context.Context, req *billingv1.GetTimelineRequest) (*billingv1.GetTimelineResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	events, err := s.billing.Timeline(ctx, req.ShopID, req.InvoiceID)
	if err != nil {
		return nil, s.toStatus(err, "GetTimeline")
	}
	return &billingv1.GetTimelineResponse{Events: toAPITimeline(events)}, nil
}

// toStatus переводит доменную ошибку в gRPC status.
func (s *BillingService) toStatus(err error, operation string) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codeFor(err)
	if code == codes.Internal {
		s.logger.WithError(err).WithField("operation", operation).Error("billing operation failed")
		return status.Errorf(codes.Internal, "%s failed", operation)
	}
	s.logger.WithError(err).WithField("operation", operation).Debug("billing operation rejected")
	return status.Error(code, err.Error())
}

func codeFor(err error) codes.Code {
	switch {
	case domain.IsValidation(err),
		errors.Is(err, domain.ErrShopIDRequired),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, money.ErrTooPrecise),
		errors.Is(err, money.ErrOutOfRange):
		return codes.InvalidArgument
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, domain.ErrInvoiceNotFound),
		errors.Is(err, domain.ErrDiscrepancyNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrPaymentExceedsDue),
		errors.Is(err, domain.ErrInvoiceCancelled),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvoiceHasPayments):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrInvoiceVersionConflict):
		return codes.Aborted
	case errors.Is(err, domain.ErrPaymentAlreadyRecorded),
		errors.Is(err, domain.ErrInvoiceAlreadyExists):
		return codes.AlreadyExists
	default:
		return codes.Internal
	}
}

func parseAmount(field, value string) (int64, error) {
	minor, err := money.ParseMinor(value)
	if err != nil {
		return 0, status.Errorf(codes.InvalidArgument, "%s: %v", field, err)
	}
	return minor, nil
}

func toCreateInput(req *billingv1.CreateInvoiceRequest) (billing.CreateInvoiceInput, error) {
	input := billing.CreateInvoiceInput{
		CustomerID:    req.CustomerID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Items:         make([]billing.ItemInput, 0, len(req.Items)),
	}

	for i, item := range req.Items {
		price, err := parseAmount(fmt.Sprintf("items[%d].unit_price", i), item.UnitPrice)
		if err != nil {
			return billing.CreateInvoiceInput{}, err
		}
		input.Items = append(input.Items, billing.ItemInput{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			UnitPriceMinor: price,
			Qty:            item.Qty,
		})
	}

	var err error
	if input.DiscountMinor, err = parseAmount("discount", req.Discount); err != nil {
		return billing.CreateInvoiceInput{}, err
	}
	if input.TaxMinor, err = parseAmount("tax", req.Tax); err != nil {
		return billing.CreateInvoiceInput{}, err
	}
	if input.InitialPaymentMinor, err = parseAmount("initial_payment", req.InitialPayment); err != nil {
		return billing.CreateInvoiceInput{}, err
	}
	return input, nil
}

func toAPIInvoice(inv domain.Invoice, items []domain.InvoiceItem) *billingv1.Invoice {
	out := &billingv1.Invoice{
		ID:            inv.ID,
		ShopID:        inv.ShopID,
		InvoiceNumber: inv.InvoiceNumber,
		CustomerID:    inv.CustomerID,
		CustomerName:  inv.CustomerName,
		CustomerPhone: inv.CustomerPhone,
		Subtotal:      money.FormatMinor(inv.SubtotalMinor),
		Discount:      money.FormatMinor(inv.DiscountMinor),
		Tax:           money.FormatMinor(inv.TaxMinor),
		Total:         money.FormatMinor(inv.TotalMinor),
		AmountPaid:    money.FormatMinor(inv.AmountPaidMinor),
		DueAmount:     money.FormatMinor(inv.DueAmountMinor),
		PaymentStatus: string(inv.PaymentStatus),
		Status:        string(inv.Status),
		Version:       inv.Version,
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
	}
	for _, item := range items {
		out.Items = append(out.Items, billingv1.InvoiceItem{
			ID:               item.ID,
			ProductID:        item.ProductID,
			ProductName:      item.ProductName,
			UnitPrice:        money.FormatMinor(item.UnitPriceMinor),
			Qty:              item.Qty,
			LineTotal:        money.FormatMinor(item.LineTotal()),
			StockDecremented: item.StockDecremented,
		})
	}
	return out
}

func toAPIPayment(p domain.Payment) billingv1.Payment {
	return billingv1.Payment{
		ID:        p.ID,
		InvoiceID: p.InvoiceID,
		Amount:    money.FormatMinor(p.AmountMinor),
		Method:    string(p.Method),
		CreatedAt: p.CreatedAt,
	}
}

func toAPITimeline(events []domain.TimelineEvent) []billingv1.TimelineEvent {
	result := make([]billingv1.TimelineEvent, 0, len(events))
	for _, e := range events {
		result = append(result, billingv1.TimelineEvent{
			Type:       e.Type,
			Reason:     e.Reason,
			OccurredAt: e.Occurred,
		})
	}
	return result
}
