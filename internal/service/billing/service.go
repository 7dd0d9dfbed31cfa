// Package billing реализует workflow создания счетов и записи платежей магазина.
package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/metrics"
)

// Repositories собирает хранилища, с которыми работает сервис.
// Outbox и Timeline опциональны: без них события не публикуются.
type Repositories struct {
	Invoices domain.InvoiceRepository
	Items    domain.InvoiceItemRepository
	Payments domain.PaymentRepository
	Stock    domain.StockRepository
	Outbox   domain.OutboxRepository
	Timeline domain.TimelineRepository
}

// ItemInput — позиция продажи в запросе на создание счёта.
type ItemInput struct {
	ProductID      string
	ProductName    string
	UnitPriceMinor int64
	Qty            int32
}

// CreateInvoiceInput — данные для создания счёта.
type CreateInvoiceInput struct {
	CustomerID    string
	CustomerName  string
	CustomerPhone string
	Items         []ItemInput
	DiscountMinor int64
	TaxMinor      int64
	// Оплата в момент продажи; 0 означает продажу в долг.
	InitialPaymentMinor int64
}

// CreateInvoiceResult — сохранённый счёт, его позиции и первоначальный платёж (если записан).
type CreateInvoiceResult struct {
	Invoice domain.Invoice
	Items   []domain.InvoiceItem
	Payment *domain.Payment
}

// InvoiceDetails — счёт вместе с позициями и платежами.
type InvoiceDetails struct {
	Invoice  domain.Invoice
	Items    []domain.InvoiceItem
	Payments []domain.Payment
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает Prometheus-метрики.
func WithMetrics(m *metrics.BillingMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithPolicyResolver задаёт политику продажи сверх остатка по магазинам.
func WithPolicyResolver(resolver PolicyResolver) Option {
	return func(s *Service) {
		if resolver != nil {
			s.policies = resolver
		}
	}
}

// WithRollbackRetry задаёт retry для компенсирующего удаления.
func WithRollbackRetry(cfg RetryConfig) Option {
	return func(s *Service) {
		s.rollbackRetry = cfg
	}
}

// WithConflictRetry задаёт retry для конфликтов версий при пересчёте.
func WithConflictRetry(cfg RetryConfig) Option {
	return func(s *Service) {
		s.conflictRetry = cfg
	}
}

// WithClock подменяет источник времени (тесты).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithNumberGenerator подменяет генератор номеров счетов.
func WithNumberGenerator(gen func(time.Time) string) Option {
	return func(s *Service) {
		if gen != nil {
			s.numbers = gen
		}
	}
}

// Service — workflow создания счетов, записи платежей и отмены.
// Все состояние живёт в хранилище; Service безопасен для конкурентного использования.
type Service struct {
	invoices domain.InvoiceRepository
	items    domain.InvoiceItemRepository
	payments domain.PaymentRepository
	stock    domain.StockRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository

	policies      PolicyResolver
	logger        *log.Entry
	metrics       *metrics.BillingMetrics
	rollbackRetry RetryConfig
	conflictRetry RetryConfig
	now           func() time.Time
	numbers       func(time.Time) string
}

// NewService создаёт сервис. Invoices, Items, Payments и Stock обязательны.
func NewService(repos Repositories, opts ...Option) (*Service, error) {
	switch {
	case repos.Invoices == nil:
		return nil, fmt.Errorf("invoice repository is required")
	case repos.Items == nil:
		return nil, fmt.Errorf("invoice item repository is required")
	case repos.Payments == nil:
		return nil, fmt.Errorf("payment repository is required")
	case repos.Stock == nil:
		return nil, fmt.Errorf("stock repository is required")
	}

	s := &Service{
		invoices:      repos.Invoices,
		items:         repos.Items,
		payments:      repos.Payments,
		stock:         repos.Stock,
		outbox:        repos.Outbox,
		timeline:      repos.Timeline,
		policies:      NewStaticPolicies(domain.StockPolicyReject, nil),
		logger:        log.WithField("component", "billing"),
		rollbackRetry: DefaultRetryConfig(),
		conflictRetry: DefaultConflictRetryConfig(),
		now:           time.Now,
		numbers:       NewInvoiceNumber,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewInvoiceNumber формирует отображаемый номер счёта INV-YYYYMMDD-XXXXXXXX.
// Номер уникален только в пределах магазина и не является идентификатором.
func NewInvoiceNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("INV-%s-%s", now.UTC().Format("20060102"), suffix)
}

func (s *Service) observe(workflow string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveWorkflow(workflow, s.now().Sub(start), err)
	s.metrics.WorkflowFinished()
}

func (s *Service) begin() time.Time {
	if s.metrics != nil {
		s.metrics.WorkflowStarted()
	}
	return s.now()
}

func (s *Service) observeStep(step domain.WorkflowStep, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordStepDuration(string(step), s.now().Sub(start))
	}
}
