package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsVersionConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "version conflict error", err: ErrInvoiceVersionConflict, want: true},
		{name: "wrapped version conflict error", err: errors.Join(ErrInvoiceVersionConflict, errors.New("additional context")), want: true},
		{name: "other error", err: ErrInvoiceNotFound, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsVersionConflict(tt.err); got != tt.want {
				t.Errorf("IsVersionConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("items[1].qty", ErrItemQtyInvalid)

	if err.Error() != "items[1].qty: item qty must be at least one" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if !errors.Is(err, ErrItemQtyInvalid) {
		t.Fatal("validation error must unwrap to sentinel")
	}
	if !IsValidation(fmt.Errorf("create invoice: %w", err)) {
		t.Fatal("wrapped validation error must be detected")
	}
	if IsValidation(ErrItemQtyInvalid) {
		t.Fatal("bare sentinel is not a validation error")
	}

	bare := &ValidationError{Err: ErrItemsRequired}
	if bare.Error() != ErrItemsRequired.Error() {
		t.Fatalf("unexpected message without field: %q", bare.Error())
	}
}

func TestStockPolicy(t *testing.T) {
	if !StockPolicyReject.Valid() || !StockPolicyBackorder.Valid() {
		t.Fatal("known policies must be valid")
	}
	if StockPolicy("maybe").Valid() {
		t.Fatal("unknown policy must be invalid")
	}
	if StockPolicyReject.AllowsNegative() {
		t.Fatal("reject must not allow negative stock")
	}
	if !StockPolicyBackorder.AllowsNegative() {
		t.Fatal("backorder must allow negative stock")
	}
}
