package grpcsvc

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	billingv1 "github.com/vladislavdragonenkov/pos/api/billing/v1"
	"github.com/vladislavdragonenkov/pos/internal/domain"
)

const defaultListDiscrepanciesLimit = 100

// ListStockDiscrepancies возвращает нерешённые расхождения остатков магазина.
func (s *BillingService) ListStockDiscrepancies(_ context.Context, req *billingv1.ListStockDiscrepanciesRequest) (*billingv1.ListStockDiscrepanciesResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if s.reconciler == nil {
		return nil, status.Error(codes.Unimplemented, "stock reconciliation is not enabled")
	}

	limit := int(req.PageSize)
	if limit <= 0 {
		limit = defaultListDiscrepanciesLimit
	}

	open, err := s.reconciler.Open(strings.TrimSpace(req.ShopID), limit)
	if err != nil {
		return nil, s.toStatus(err, "ListStockDiscrepancies")
	}

	resp := &billingv1.ListStockDiscrepanciesResponse{Discrepancies: make([]billingv1.StockDiscrepancy, 0, len(open))}
	for _, d := range open {
		resp.Discrepancies = append(resp.Discrepancies, toAPIDiscrepancy(d))
	}
	return resp, nil
}

// ResolveStockDiscrepancy закрывает расхождение после ручной сверки.
func (s *BillingService) ResolveStockDiscrepancy(_ context.Context, req *billingv1.ResolveStockDiscrepancyRequest) (*billingv1.ResolveStockDiscrepancyResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if s.reconciler == nil {
		return nil, status.Error(codes.Unimplemented, "stock reconciliation is not enabled")
	}
	id := strings.TrimSpace(req.DiscrepancyID)
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "discrepancy_id is required")
	}

	if err := s.reconciler.Resolve(strings.TrimSpace(req.ShopID), id); err != nil {
		return nil, s.toStatus(err, "ResolveStockDiscrepancy")
	}
	return &billingv1.ResolveStockDiscrepancyResponse{}, nil
}

func toAPIDiscrepancy(d domain.StockDiscrepancy) billingv1.StockDiscrepancy {
	return billingv1.StockDiscrepancy{
		ID:         d.ID,
		ShopID:     d.ShopID,
		InvoiceID:  d.InvoiceID,
		ProductID:  d.ProductID,
		Qty:        d.Qty,
		Kind:       string(d.Kind),
		Reason:     d.Reason,
		OccurredAt: d.OccurredAt,
	}
}
