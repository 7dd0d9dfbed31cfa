package postgres

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

func TestInvoiceRepository_PostgresCreateGetListSaveDelete(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	invoices := NewInvoiceRepository(store)
	items := NewInvoiceItemRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	inv1 := sampleInvoice("invoice-1", 200, now.Add(-2*time.Minute))
	inv2 := sampleInvoice("invoice-2", 300, now.Add(-time.Minute))

	require.NoError(t, invoices.Create(inv1))
	require.NoError(t, invoices.Create(inv2))
	require.ErrorIs(t, invoices.Create(inv1), domain.ErrInvoiceAlreadyExists)

	require.NoError(t, items.CreateBatch([]domain.InvoiceItem{
		{ID: "invoice-1-item-1", InvoiceID: inv1.ID, ShopID: "shop-1", ProductID: "p-1", ProductName: "Tea", UnitPriceMinor: 100, Qty: 2, CreatedAt: now},
	}))

	got, err := invoices.Get("shop-1", inv1.ID)
	require.NoError(t, err)
	require.Equal(t, inv1.TotalMinor, got.TotalMinor)
	require.Equal(t, domain.PaymentStatusPending, got.PaymentStatus)

	_, err = invoices.Get("shop-2", inv1.ID)
	require.ErrorIs(t, err, domain.ErrInvoiceNotFound)

	listed, err := invoices.ListByShop("shop-1", 1)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, inv2.ID, listed[0].ID)

	got.ApplyPaidAmount(50)
	require.NoError(t, invoices.Save(got))
	require.ErrorIs(t, invoices.Save(got), domain.ErrInvoiceVersionConflict)

	missing := got
	missing.ID = "missing"
	require.ErrorIs(t, invoices.Save(missing), domain.ErrInvoiceNotFound)

	saved, err := invoices.Get("shop-1", inv1.ID)
	require.NoError(t, err)
	require.Equal(t, int64(150), saved.DueAmountMinor)
	require.Equal(t, domain.PaymentStatusPartial, saved.PaymentStatus)
	require.Equal(t, int64(1), saved.Version)

	require.NoError(t, invoices.Delete("shop-1", inv1.ID))
	require.NoError(t, invoices.Delete("shop-1", inv1.ID))
	_, err = invoices.Get("shop-1", inv1.ID)
	require.ErrorIs(t, err, domain.ErrInvoiceNotFound)

	left, err := items.ListByInvoice("shop-1", inv1.ID)
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestInvoiceRepository_PostgresBalanceConstraint(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	invoices := NewInvoiceRepository(store)

	broken := sampleInvoice("invoice-broken", 200, time.Now().UTC())
	broken.DueAmountMinor = 10
	require.Error(t, invoices.Create(broken))
}

func TestPaymentRepository_PostgresAppendIsAtomic(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	invoices := NewInvoiceRepository(store)
	payments := NewPaymentRepository(store)

	inv := sampleInvoice("invoice-pay", 1000, time.Now().UTC())
	require.NoError(t, invoices.Create(inv))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = payments.Append(domain.Payment{
				ID:          "pay-" + string(rune('a'+i)),
				ShopID:      "shop-1",
				InvoiceID:   inv.ID,
				AmountMinor: 300,
				Method:      domain.PaymentMethodCash,
				CreatedAt:   time.Now().UTC(),
			})
		}(i)
	}
	wg.Wait()

	sum, err := payments.SumByInvoice("shop-1", inv.ID)
	require.NoError(t, err)
	require.Equal(t, int64(900), sum)

	list, err := payments.ListByInvoice("shop-1", inv.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)

	err = payments.Append(domain.Payment{ID: "pay-over", ShopID: "shop-1", InvoiceID: inv.ID, AmountMinor: 101, Method: domain.PaymentMethodCash, CreatedAt: time.Now().UTC()})
	require.ErrorIs(t, err, domain.ErrPaymentExceedsDue)

	err = payments.Append(domain.Payment{ID: list[0].ID, ShopID: "shop-1", InvoiceID: inv.ID, AmountMinor: 1, Method: domain.PaymentMethodCash, CreatedAt: time.Now().UTC()})
	require.ErrorIs(t, err, domain.ErrPaymentAlreadyRecorded)

	err = payments.Append(domain.Payment{ID: "pay-missing", ShopID: "shop-1", InvoiceID: "missing", AmountMinor: 1, Method: domain.PaymentMethodCash, CreatedAt: time.Now().UTC()})
	require.ErrorIs(t, err, domain.ErrInvoiceNotFound)

	stored, err := invoices.Get("shop-1", inv.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), stored.Version)
}

func TestStockRepository_PostgresConditionalDecrement(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	stock := NewStockRepository(store)

	require.NoError(t, stock.Upsert(domain.Product{ID: "p-1", ShopID: "shop-1", Name: "Tea", PriceMinor: 50, Stock: 5}))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sold int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := stock.Decrement("shop-1", "p-1", 1, false); err == nil {
				mu.Lock()
				sold++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 5, sold)

	_, err := stock.Decrement("shop-1", "p-1", 1, false)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	left, err := stock.Decrement("shop-1", "p-1", 2, true)
	require.NoError(t, err)
	require.Equal(t, int64(-2), left)

	left, err = stock.Increment("shop-1", "p-1", 3)
	require.NoError(t, err)
	require.Equal(t, int64(1), left)

	_, err = stock.Decrement("shop-1", "missing", 1, false)
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	_, err = stock.Increment("shop-1", "missing", 1)
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestStockDiscrepancyRepository_PostgresDeduplicates(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewStockDiscrepancyRepository(store)

	d := domain.StockDiscrepancy{ShopID: "shop-1", InvoiceID: "inv-1", ProductID: "p-1", Qty: 2, Kind: domain.DiscrepancyDecrementFailed, EventID: "evt-1"}
	created, err := repo.Record(d)
	require.NoError(t, err)
	require.True(t, created)

	created, err = repo.Record(d)
	require.NoError(t, err)
	require.False(t, created)

	open, err := repo.ListOpen("shop-1", 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "evt-1", open[0].EventID)

	require.ErrorIs(t, repo.Resolve("shop-2", open[0].ID), domain.ErrDiscrepancyNotFound)
	require.NoError(t, repo.Resolve("shop-1", open[0].ID))
	require.ErrorIs(t, repo.Resolve("shop-1", "missing"), domain.ErrDiscrepancyNotFound)
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected unique violation for code 23505")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "22001"}) {
		t.Fatal("unexpected unique violation for non-unique code")
	}
	if isUniqueViolation(errors.New("plain error")) {
		t.Fatal("plain error must not be unique violation")
	}
}

func sampleInvoice(id string, total int64, createdAt time.Time) domain.Invoice {
	return domain.Invoice{
		ID:             id,
		ShopID:         "shop-1",
		InvoiceNumber:  "INV-" + id,
		SubtotalMinor:  total,
		TotalMinor:     total,
		DueAmountMinor: total,
		PaymentStatus:  domain.ComputePaymentStatus(total, 0),
		Status:         domain.InvoiceStatusCompleted,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}
