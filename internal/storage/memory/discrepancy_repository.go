package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

type discrepancyRepositoryInMemory struct {
	mu      sync.RWMutex
	items   map[string]domain.StockDiscrepancy
	byEvent map[string]string
}

// NewStockDiscrepancyRepository создаёт in-memory реализацию StockDiscrepancyRepository.
func NewStockDiscrepancyRepository() domain.StockDiscrepancyRepository {
	return &discrepancyRepositoryInMemory{
		items:   make(map[string]domain.StockDiscrepancy),
		byEvent: make(map[string]string),
	}
}

func (r *discrepancyRepositoryInMemory) Record(d domain.StockDiscrepancy) (bool, error) {
	if d.ShopID == "" {
		return false, domain.ErrShopIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if d.EventID != "" {
		if _, seen := r.byEvent[d.EventID]; seen {
			return false, nil
		}
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = time.Now().UTC()
	if d.OccurredAt.IsZero() {
		d.OccurredAt = d.CreatedAt
	}
	r.items[d.ID] = d
	if d.EventID != "" {
		r.byEvent[d.EventID] = d.ID
	}
	return true, nil
}

func (r *discrepancyRepositoryInMemory) ListOpen(shopID string, limit int) ([]domain.StockDiscrepancy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.StockDiscrepancy, 0)
	for _, d := range r.items {
		if d.ShopID != shopID || d.Resolved {
			continue
		}
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OccurredAt.Before(result[j].OccurredAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *discrepancyRepositoryInMemory) Resolve(shopID, id string) error {
	if shopID == "" {
		return domain.ErrShopIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Чужой магазин не отличается от отсутствующей записи.
	d, ok := r.items[id]
	if !ok || d.ShopID != shopID {
		return domain.ErrDiscrepancyNotFound
	}
	d.Resolved = true
	r.items[id] = d
	return nil
}

var _ domain.StockDiscrepancyRepository = (*discrepancyRepositoryInMemory)(nil)
