package domain

import (
	"testing"
	"time"
)

func TestIdempotencyStatusValid(t *testing.T) {
	tests := []struct {
		name   string
		status IdempotencyStatus
		want   bool
	}{
		{name: "processing", status: IdempotencyStatusProcessing, want: true},
		{name: "done", status: IdempotencyStatusDone, want: true},
		{name: "failed", status: IdempotencyStatusFailed, want: true},
		{name: "invalid", status: IdempotencyStatus("broken"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.status.Valid(); got != tc.want {
				t.Fatalf("status %q valid=%v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestIdempotencyRecordIsExpired(t *testing.T) {
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	if (IdempotencyRecord{}).IsExpired(now) {
		t.Fatal("record without ttl must not expire")
	}
	if (IdempotencyRecord{TTLAt: now.Add(time.Minute)}).IsExpired(now) {
		t.Fatal("record with future ttl must not be expired")
	}
	if !(IdempotencyRecord{TTLAt: now}).IsExpired(now) {
		t.Fatal("record with ttl == now must be expired")
	}
}

func TestNewIdempotencyKey(t *testing.T) {
	key, err := NewIdempotencyKey(" shop-1 ", "  receipt-0001 ")
	if err != nil {
		t.Fatalf("NewIdempotencyKey: %v", err)
	}
	if key.ShopID != "shop-1" || key.Key != "receipt-0001" {
		t.Fatalf("unexpected key: %+v", key)
	}

	if _, err := NewIdempotencyKey("", "receipt-0001"); err != ErrShopIDRequired {
		t.Fatalf("expected ErrShopIDRequired, got %v", err)
	}
	if _, err := NewIdempotencyKey("shop-1", " "); err != ErrIdempotencyKeyRequired {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
}

func TestIdempotencyRecordConflict(t *testing.T) {
	record := IdempotencyRecord{Method: "/pos.billing.v1.BillingService/RecordPayment", RequestHash: "h1"}

	if err := record.Conflict(record.Method, "h1"); err != ErrIdempotencyKeyAlreadyExists {
		t.Fatalf("exact repeat: got %v", err)
	}
	if err := record.Conflict(record.Method, "h2"); err != ErrIdempotencyHashMismatch {
		t.Fatalf("changed body: got %v", err)
	}
	if err := record.Conflict("/pos.billing.v1.BillingService/CancelInvoice", "h1"); err != ErrIdempotencyMethodMismatch {
		t.Fatalf("other method: got %v", err)
	}
}
