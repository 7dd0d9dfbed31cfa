package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	billingv1 "github.com/vladislavdragonenkov/pos/api/billing/v1"
	healthcheck "github.com/vladislavdragonenkov/pos/internal/health"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.StorageDriver = StorageDriverMemory

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_ServesBillingAPI(t *testing.T) {
	grpcPort := findFreePort(t)
	metricsPort := findFreePort(t)

	catalogPath := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(catalogPath, []byte(sampleCatalog), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	cfg := DefaultConfig()
	cfg.GRPCAddr = fmt.Sprintf("127.0.0.1:%d", grpcPort)
	cfg.MetricsAddr = fmt.Sprintf("127.0.0.1:%d", metricsPort)
	cfg.CatalogFile = catalogPath

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var runErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = Run(ctx, cfg)
	}()
	defer func() {
		cancel()
		wg.Wait()
		if !errors.Is(runErr, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", runErr)
		}
	}()

	conn, err := grpc.NewClient(cfg.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := billingv1.NewBillingServiceClient(conn)

	callCtx := metadata.AppendToOutgoingContext(context.Background(), "idempotency-key", "run-create-1")
	var created *billingv1.CreateInvoiceResponse
	deadline := time.Now().Add(3 * time.Second)
	for {
		created, err = client.CreateInvoice(callCtx, &billingv1.CreateInvoiceRequest{
			ShopID: "shop-1",
			Items:  []billingv1.CreateInvoiceItem{{ProductID: "tea", UnitPrice: "120.50", Qty: 2}},
		})
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if created.Invoice.Total != "241.00" || created.Invoice.PaymentStatus != "pending" {
		t.Fatalf("unexpected invoice: %+v", created.Invoice)
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/healthz", metricsPort))
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", resp.StatusCode)
	}
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported storage driver error, got %v", err)
	}
}

func TestRun_InvalidCatalog(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.CatalogFile = filepath.Join(t.TempDir(), "missing.yaml")

	if err := Run(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "read catalog") {
		t.Fatalf("expected catalog error, got %v", err)
	}
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("POS_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("POS_TEST_POSTGRES_DSN is not set")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresAutoMigrate = true

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer deps.close(log.WithField("test", "postgres-init"))

	if deps.invoices == nil || deps.outboxRepo == nil || deps.timelineRepo == nil || deps.idempotencyRepo == nil {
		t.Fatalf("postgres dependencies must be initialized: %+v", deps)
	}
	check := deps.storageChecker.Check(context.Background())
	if check.Status != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy storage checker, got %+v", check)
	}
}

func TestShutdownWorkers(t *testing.T) {
	logger := log.WithField("test", "shutdown")

	cancelCalled := false
	var wg sync.WaitGroup
	shutdownWorkers(func() { cancelCalled = true }, &wg, logger)
	if !cancelCalled {
		t.Fatal("expected cancel func to be called")
	}

	shutdownWorkers(nil, nil, logger)
}
