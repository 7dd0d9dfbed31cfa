package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	billingv1 "github.com/vladislavdragonenkov/pos/api/billing/v1"
	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/money"
)

const (
	idempotencyHeader = "idempotency-key"
	scenarioMetric    = "scenario"
)

type loadMode string

const (
	// Продажа с полной оплатой в момент создания счёта.
	modeSale loadMode = "sale"
	// Продажа в долг и погашение несколькими платежами.
	modeInstallments loadMode = "installments"
	// Продажа в долг и отмена счёта.
	modeCancel loadMode = "cancel"
	// Параллельные платежи по одному счёту из разных горутин.
	modeContention loadMode = "contention"
)

type config struct {
	addr         string
	total        int
	totalSet     bool
	duration     time.Duration
	concurrency  int
	connections  int
	timeout      time.Duration
	mode         loadMode
	installments int
	shopID       string
	productID    string
	priceMinor   int64
	qty          int
	outputPath   string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	Mode              string                  `json:"mode"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

func (s *methodStats) report() methodReport {
	codesCopy := make(map[string]int64, len(s.codes))
	for code, count := range s.codes {
		codesCopy[code] = count
	}
	return methodReport{
		Calls:     s.calls,
		Success:   s.calls - s.failed,
		Failed:    s.failed,
		ErrorRate: ratio(s.failed, s.calls),
		Codes:     codesCopy,
		LatencyMs: buildLatencySummary(s.latencies),
	}
}

// collector потокобезопасно накапливает задержки и коды ответов по методам.
type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{methods: make(map[string]*methodStats)}
}

func (c *collector) record(method string, latency time.Duration, code codes.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{codes: make(map[string]int64)}
		c.methods[method] = stats
	}

	stats.calls++
	if code != codes.OK {
		stats.failed++
	}
	stats.codes[code.String()]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(mode loadMode, startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		Mode:            string(mode),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}
	for name, stats := range c.methods {
		result.Methods[name] = stats.report()
	}

	if scenario, ok := result.Methods[scenarioMetric]; ok {
		result.TotalScenarios = scenario.Calls
		result.SuccessScenarios = scenario.Success
		result.FailedScenarios = scenario.Failed
		result.ErrorRate = scenario.ErrorRate
		result.ScenarioLatencyMs = scenario.LatencyMs
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}
	return result
}

func parseConfig(args []string) (config, error) {
	var (
		cfg       config
		modeValue string
		price     string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios in count mode; with -duration only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 20, "number of gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&modeValue, "mode", string(modeSale), "load mode: sale | installments | cancel | contention")
	fs.IntVar(&cfg.installments, "installments", 3, "payments per invoice in installments and contention modes")
	fs.StringVar(&cfg.shopID, "shop", "shop-load", "shop id")
	fs.StringVar(&cfg.productID, "product", "SKU-LOAD", "product id")
	fs.StringVar(&price, "price", "10.00", "unit price as decimal string")
	fs.IntVar(&cfg.qty, "qty", 1, "quantity per invoice")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return config{}, err
	}
	cfg.mode = mode

	priceMinor, err := money.ParseMinor(price)
	if err != nil {
		return config{}, fmt.Errorf("parse price: %w", err)
	}
	cfg.priceMinor = priceMinor
	cfg.shopID = strings.TrimSpace(cfg.shopID)
	cfg.productID = strings.TrimSpace(cfg.productID)

	switch {
	case cfg.duration < 0:
		return config{}, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return config{}, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return config{}, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return config{}, errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return config{}, errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return config{}, errors.New("timeout must be > 0")
	case cfg.priceMinor <= 0:
		return config{}, errors.New("price must be > 0")
	case cfg.qty <= 0:
		return config{}, errors.New("qty must be > 0")
	case cfg.installments <= 0:
		return config{}, errors.New("installments must be > 0")
	case int64(cfg.installments) > cfg.priceMinor*int64(cfg.qty):
		return config{}, errors.New("installments must not exceed invoice total in minor units")
	case cfg.shopID == "":
		return config{}, errors.New("shop is required")
	case cfg.productID == "":
		return config{}, errors.New("product is required")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeSale, modeInstallments, modeCancel, modeContention:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result, err := run(context.Background(), cfg, os.Stdout)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, out io.Writer) (report, error) {
	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]billingv1.BillingServiceClient, 0, cfg.connections)
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()
	for i := 0; i < cfg.connections; i++ {
		conn, err := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return report{}, fmt.Errorf("create grpc client connection: %w", err)
		}
		conns = append(conns, conn)
		clients = append(clients, billingv1.NewBillingServiceClient(conn))
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		s := &scenario{client: clients[workerID%len(clients)], cfg: cfg, runID: runID, col: col}
		go func() {
			defer wg.Done()
			for index := range jobs {
				_ = s.run(ctx, index)
			}
		}()
	}

	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()

	result := col.buildReport(cfg.mode, startedAt, time.Since(startedAt))
	printReport(out, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			return result, fmt.Errorf("write report: %w", err)
		}
	}
	return result, nil
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for i := 0; ; i++ {
		if (cfg.duration <= 0 || cfg.totalSet) && i >= cfg.total {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}

// scenario выполняет один сценарий нагрузки через gRPC-клиент биллинга.
type scenario struct {
	client billingv1.BillingServiceClient
	cfg    config
	runID  string
	col    *collector
}

func (s *scenario) run(ctx context.Context, index int) (err error) {
	start := time.Now()
	defer func() {
		code := grpcCode(err)
		if err != nil && code == codes.Unknown {
			code = codes.Internal
		}
		s.col.record(scenarioMetric, time.Since(start), code)
	}()

	totalMinor := s.cfg.priceMinor * int64(s.cfg.qty)
	initial := ""
	if s.cfg.mode == modeSale {
		initial = money.FormatMinor(totalMinor)
	}

	created, err := s.createInvoice(ctx, index, initial)
	if err != nil {
		return err
	}
	invoice := created.Invoice
	if invoice == nil || invoice.ID == "" {
		return errors.New("create response returned empty invoice id")
	}

	switch s.cfg.mode {
	case modeSale:
		return expectPaymentStatus(invoice, domain.PaymentStatusPaid)
	case modeCancel:
		cancelled, err := s.cancelInvoice(ctx, index, invoice.ID)
		if err != nil {
			return err
		}
		if cancelled.Invoice == nil || cancelled.Invoice.Status != string(domain.InvoiceStatusCancelled) {
			return fmt.Errorf("invoice %s was not cancelled", invoice.ID)
		}
		return nil
	case modeInstallments:
		for part, amount := range splitAmount(totalMinor, s.cfg.installments) {
			paid, err := s.recordPayment(ctx, index, part, invoice.ID, amount)
			if err != nil {
				return err
			}
			invoice = paid.Invoice
		}
		return expectPaymentStatus(invoice, domain.PaymentStatusPaid)
	case modeContention:
		return s.payConcurrently(ctx, index, invoice.ID, totalMinor)
	default:
		return fmt.Errorf("unsupported mode: %s", s.cfg.mode)
	}
}

// payConcurrently гасит счёт параллельными платежами и проверяет итог через GetInvoice.
func (s *scenario) payConcurrently(ctx context.Context, index int, invoiceID string, totalMinor int64) error {
	parts := splitAmount(totalMinor, s.cfg.installments)
	errs := make([]error, len(parts))

	var wg sync.WaitGroup
	for part, amount := range parts {
		wg.Add(1)
		go func(part int, amount int64) {
			defer wg.Done()
			_, errs[part] = s.recordPayment(ctx, index, part, invoiceID, amount)
		}(part, amount)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.timeout)
	defer cancel()
	start := time.Now()
	resp, err := s.client.GetInvoice(callCtx, &billingv1.GetInvoiceRequest{ShopID: s.cfg.shopID, InvoiceID: invoiceID})
	s.col.record("GetInvoice", time.Since(start), grpcCode(err))
	if err != nil {
		return err
	}
	if resp.Invoice == nil || resp.Invoice.AmountPaid != money.FormatMinor(totalMinor) {
		return fmt.Errorf("invoice %s amount_paid mismatch", invoiceID)
	}
	return expectPaymentStatus(resp.Invoice, domain.PaymentStatusPaid)
}

func (s *scenario) callContext(ctx context.Context, key string) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.timeout)
	return metadata.AppendToOutgoingContext(callCtx, idempotencyHeader, key), cancel
}

func (s *scenario) createInvoice(ctx context.Context, index int, initial string) (*billingv1.CreateInvoiceResponse, error) {
	callCtx, cancel := s.callContext(ctx, fmt.Sprintf("lt-create-%s-%d", s.runID, index))
	defer cancel()

	start := time.Now()
	resp, err := s.client.CreateInvoice(callCtx, &billingv1.CreateInvoiceRequest{
		ShopID:       s.cfg.shopID,
		CustomerName: fmt.Sprintf("load-%s-%d", s.runID, index),
		Items: []billingv1.CreateInvoiceItem{{
			ProductID: s.cfg.productID,
			UnitPrice: money.FormatMinor(s.cfg.priceMinor),
			Qty:       int32(s.cfg.qty), // #nosec G115 -- qty validated as small positive CLI value.
		}},
		InitialPayment: initial,
	})
	s.col.record("CreateInvoice", time.Since(start), grpcCode(err))
	return resp, err
}

func (s *scenario) recordPayment(ctx context.Context, index, part int, invoiceID string, amountMinor int64) (*billingv1.RecordPaymentResponse, error) {
	callCtx, cancel := s.callContext(ctx, fmt.Sprintf("lt-pay-%s-%d-%d", s.runID, index, part))
	defer cancel()

	start := time.Now()
	resp, err := s.client.RecordPayment(callCtx, &billingv1.RecordPaymentRequest{
		ShopID:    s.cfg.shopID,
		InvoiceID: invoiceID,
		Amount:    money.FormatMinor(amountMinor),
	})
	s.col.record("RecordPayment", time.Since(start), grpcCode(err))
	return resp, err
}

func (s *scenario) cancelInvoice(ctx context.Context, index int, invoiceID string) (*billingv1.CancelInvoiceResponse, error) {
	callCtx, cancel := s.callContext(ctx, fmt.Sprintf("lt-cancel-%s-%d", s.runID, index))
	defer cancel()

	start := time.Now()
	resp, err := s.client.CancelInvoice(callCtx, &billingv1.CancelInvoiceRequest{
		ShopID:    s.cfg.shopID,
		InvoiceID: invoiceID,
		Reason:    "load-cancel",
	})
	s.col.record("CancelInvoice", time.Since(start), grpcCode(err))
	return resp, err
}

func expectPaymentStatus(invoice *billingv1.Invoice, want domain.PaymentStatus) error {
	if invoice == nil {
		return errors.New("response without invoice")
	}
	if invoice.PaymentStatus != string(want) {
		return fmt.Errorf("invoice %s payment_status=%s, want %s", invoice.ID, invoice.PaymentStatus, want)
	}
	return nil
}

// splitAmount делит сумму на parts частей; остаток уходит в последнюю.
func splitAmount(total int64, parts int) []int64 {
	if parts <= 1 {
		return []int64{total}
	}
	base := total / int64(parts)
	out := make([]int64, parts)
	for i := range out {
		out[i] = base
	}
	out[parts-1] += total - base*int64(parts)
	return out
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(out io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(out, "Load test summary")
	_, _ = fmt.Fprintf(out, "mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode, runTarget(cfg), result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.ErrorRate)
	_, _ = fmt.Fprintf(out, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	l := result.ScenarioLatencyMs
	_, _ = fmt.Fprintf(out, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		l.Min, l.Avg, l.P50, l.P95, l.P99, l.Max)

	names := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name != scenarioMetric {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Methods[name]
		_, _ = fmt.Fprintf(out, "%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name, stats.Calls, stats.Success, stats.Failed, stats.ErrorRate, stats.LatencyMs.P95)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
