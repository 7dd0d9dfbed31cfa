package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := g.Write(metric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestOutboxMetrics(t *testing.T) {
	m := NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordAttempt("sent", "invoice.created")
	m.RecordAttempt("sent", "invoice.created")
	m.RecordAttempt("failed", "payment.recorded")

	if got := counterValue(t, m.publishAttempts.WithLabelValues("sent", "invoice.created")); got != 2 {
		t.Fatalf("expected 2 sent attempts, got %f", got)
	}

	m.SetBacklog(4, 1, 3*time.Second)
	if got := gaugeValue(t, m.pendingRecords); got != 4 {
		t.Fatalf("expected pending 4, got %f", got)
	}
	if got := gaugeValue(t, m.failedRecords); got != 1 {
		t.Fatalf("expected failed 1, got %f", got)
	}
	if got := gaugeValue(t, m.oldestPendingAge); got != 3 {
		t.Fatalf("expected age 3s, got %f", got)
	}

	m.SetBacklog(0, 0, -time.Second)
	if got := gaugeValue(t, m.oldestPendingAge); got != 0 {
		t.Fatalf("negative age must clamp to zero, got %f", got)
	}
}

func TestCleanupMetrics(t *testing.T) {
	m := NewCleanupMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordDeleted(3)
	m.RecordDeleted(0)
	m.RecordRun(3, nil)
	m.RecordRun(0, errors.New("boom"))

	if got := counterValue(t, m.deleted); got != 3 {
		t.Fatalf("expected 3 deleted, got %f", got)
	}
	if got := counterValue(t, m.runs.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected 1 ok run, got %f", got)
	}
	if got := counterValue(t, m.runs.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 error run, got %f", got)
	}
	if got := gaugeValue(t, m.lastDeleted); got != 3 {
		t.Fatalf("error run must not reset last deleted, got %f", got)
	}
}
