package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics содержит метрики workflow создания счетов и записи платежей.
type BillingMetrics struct {
	// Счётчики операций
	invoicesCreated    prometheus.Counter
	invoicesRolledBack prometheus.Counter
	invoicesCancelled  prometheus.Counter
	paymentsRecorded   prometheus.Counter
	paymentsRejected   *prometheus.CounterVec
	reconcileConflicts prometheus.Counter

	// Частичные сбои, не прерывающие продажу
	initialPaymentFailures prometheus.Counter
	stockDecrementFailures prometheus.Counter
	stockBackorders        prometheus.Counter

	// Гистограммы времени выполнения
	workflowDuration *prometheus.HistogramVec
	stepDuration     *prometheus.HistogramVec

	// Денежный поток
	paymentAmount prometheus.Counter

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	inFlight prometheus.Gauge
}

// NewBillingMetrics создаёт метрики в глобальном registry.
func NewBillingMetrics() *BillingMetrics {
	return NewBillingMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewBillingMetricsWithRegisterer создаёт метрики в указанном registry (удобно для тестов).
func NewBillingMetricsWithRegisterer(registerer prometheus.Registerer) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &BillingMetrics{
		invoicesCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_invoices_created_total",
			Help: "Total number of invoices created",
		}),
		invoicesRolledBack: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_invoices_rolled_back_total",
			Help: "Total number of invoice creations undone by compensating delete",
		}),
		invoicesCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_invoices_cancelled_total",
			Help: "Total number of invoices cancelled",
		}),
		paymentsRecorded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_payments_recorded_total",
			Help: "Total number of payments appended to the ledger",
		}),
		paymentsRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pos_payments_rejected_total",
			Help: "Total number of rejected payments by reason",
		}, []string{"reason"}),
		reconcileConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_reconcile_version_conflicts_total",
			Help: "Total number of optimistic locking conflicts during reconciliation",
		}),
		initialPaymentFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_initial_payment_failures_total",
			Help: "Total number of initial payments that failed after the invoice was persisted",
		}),
		stockDecrementFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_stock_decrement_failures_total",
			Help: "Total number of stock decrements that failed after the invoice was persisted",
		}),
		stockBackorders: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_stock_backorders_total",
			Help: "Total number of stock decrements that drove stock negative",
		}),
		workflowDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "pos_workflow_duration_seconds",
			Help:    "Duration of billing workflows in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"workflow", "outcome"}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "pos_workflow_step_duration_seconds",
			Help:    "Duration of individual workflow steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		paymentAmount: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_payment_amount_minor_total",
			Help: "Sum of recorded payments in minor currency units",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "pos_workflows_in_flight",
			Help: "Number of billing workflows currently executing",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordInvoiceCreated увеличивает счётчик созданных счетов.
func (m *BillingMetrics) RecordInvoiceCreated() {
	m.invoicesCreated.Inc()
}

// RecordInvoiceRolledBack фиксирует откат создания счёта.
func (m *BillingMetrics) RecordInvoiceRolledBack() {
	m.invoicesRolledBack.Inc()
}

// RecordInvoiceCancelled увеличивает счётчик отменённых счетов.
func (m *BillingMetrics) RecordInvoiceCancelled() {
	m.invoicesCancelled.Inc()
}

// RecordPayment фиксирует принятый платёж и его сумму.
func (m *BillingMetrics) RecordPayment(amountMinor int64) {
	m.paymentsRecorded.Inc()
	if amountMinor > 0 {
		m.paymentAmount.Add(float64(amountMinor))
	}
}

// RecordPaymentRejected фиксирует отклонённый платёж.
func (m *BillingMetrics) RecordPaymentRejected(reason string) {
	m.paymentsRejected.WithLabelValues(reason).Inc()
}

// RecordReconcileConflict фиксирует конфликт версий при пересчёте.
func (m *BillingMetrics) RecordReconcileConflict() {
	m.reconcileConflicts.Inc()
}

// RecordInitialPaymentFailure фиксирует сбой первоначального платежа.
func (m *BillingMetrics) RecordInitialPaymentFailure() {
	m.initialPaymentFailures.Inc()
}

// RecordStockDecrementFailure фиксирует несписанный остаток.
func (m *BillingMetrics) RecordStockDecrementFailure() {
	m.stockDecrementFailures.Inc()
}

// RecordStockBackorder фиксирует уход остатка в минус.
func (m *BillingMetrics) RecordStockBackorder() {
	m.stockBackorders.Inc()
}

// ObserveWorkflow записывает длительность workflow с исходом ok/error.
func (m *BillingMetrics) ObserveWorkflow(workflow string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.workflowDuration.WithLabelValues(workflow, outcome).Observe(duration.Seconds())
}

// RecordStepDuration записывает время выполнения шага.
func (m *BillingMetrics) RecordStepDuration(step string, duration time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *BillingMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *BillingMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// WorkflowStarted увеличивает количество выполняющихся workflow.
func (m *BillingMetrics) WorkflowStarted() {
	m.inFlight.Inc()
}

// WorkflowFinished уменьшает количество выполняющихся workflow.
func (m *BillingMetrics) WorkflowFinished() {
	m.inFlight.Dec()
}
