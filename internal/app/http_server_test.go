package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/pos/internal/health"
	"github.com/vladislavdragonenkov/pos/internal/metrics"
	"github.com/vladislavdragonenkov/pos/internal/service/billing"
)

func serveMux(t *testing.T, mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) healthcheck.Response {
	t.Helper()
	var resp healthcheck.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestMetricsMux_ExposesBillingMetricsAfterSale(t *testing.T) {
	deps := initMemoryDependencies()
	reg := prometheus.NewRegistry()

	svc, err := billing.NewService(deps.billingRepositories(),
		billing.WithMetrics(metrics.NewBillingMetricsWithRegisterer(reg)),
		billing.WithLogger(log.WithField("test", "metrics-mux")),
	)
	require.NoError(t, err)
	require.NoError(t, deps.stock.Upsert(domain.Product{ID: "tea", ShopID: "shop-1", Name: "Tea", PriceMinor: 5000, Stock: 3}))

	_, err = svc.CreateInvoice(context.Background(), "shop-1", billing.CreateInvoiceInput{
		Items:               []billing.ItemInput{{ProductID: "tea", ProductName: "Tea", UnitPriceMinor: 5000, Qty: 1}},
		InitialPaymentMinor: 5000,
	})
	require.NoError(t, err)

	mux := newMetricsMux(newBillingHealthHandler(DefaultConfig(), deps), reg)

	rec := serveMux(t, mux, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "pos_invoices_created_total 1")
	require.Contains(t, rec.Body.String(), "pos_payments_recorded_total 1")

	rec = serveMux(t, mux, "/livez")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestBillingHealth_OutboxBacklogDegradesButStaysReady(t *testing.T) {
	deps := initMemoryDependencies()
	cfg := DefaultConfig()
	cfg.OutboxMaxPending = 2

	for i := 0; i < 3; i++ {
		_, err := deps.outboxRepo.Enqueue(domain.OutboxMessage{
			AggregateType: "invoice",
			AggregateID:   fmt.Sprintf("inv-%d", i),
			EventType:     "invoice.created",
			Payload:       []byte(`{}`),
		})
		require.NoError(t, err)
	}

	mux := newMetricsMux(newBillingHealthHandler(cfg, deps), prometheus.NewRegistry())

	rec := serveMux(t, mux, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeHealth(t, rec)
	require.Equal(t, healthcheck.StatusDegraded, health.Status)
	require.Equal(t, healthcheck.StatusDegraded, health.Checks["outbox"].Status)
	require.Contains(t, health.Checks["outbox"].Message, "backlog 3 exceeds threshold 2")

	rec = serveMux(t, mux, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code, "unsent sale events must not take the cash desk offline")
}

func TestBillingHealth_StorageDownIsNotReady(t *testing.T) {
	deps := initMemoryDependencies()
	deps.storageChecker = healthcheck.NewPingChecker("storage", func(context.Context) error {
		return errors.New("connection refused")
	})

	mux := newMetricsMux(newBillingHealthHandler(DefaultConfig(), deps), prometheus.NewRegistry())

	rec := serveMux(t, mux, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	health := decodeHealth(t, rec)
	require.Equal(t, healthcheck.StatusUnhealthy, health.Checks["storage"].Status)
	require.Equal(t, healthcheck.StatusHealthy, health.Checks["outbox"].Status)

	rec = serveMux(t, mux, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.True(t, strings.HasPrefix(rec.Body.String(), "not ready"))
}

func TestStartMetricsServer_StopsOnContextCancel(t *testing.T) {
	logger := log.WithField("test", "metrics-server")
	port := findFreePort(t)
	url := fmt.Sprintf("http://localhost:%d/livez", port)

	ctx, cancel := context.WithCancel(context.Background())
	srv := startMetricsServer(ctx, fmt.Sprintf(":%d", port), logger, newBillingHealthHandler(DefaultConfig(), initMemoryDependencies()))
	require.NotNil(t, srv)

	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
		}
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)

	shutdownHTTP(nil, logger)
}

func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}
