package billing

import (
	"sync"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// PolicyResolver возвращает политику продажи сверх остатка для магазина.
type PolicyResolver interface {
	PolicyFor(shopID string) domain.StockPolicy
}

// StaticPolicies — политика по умолчанию плюс переопределения по магазинам.
type StaticPolicies struct {
	mu        sync.RWMutex
	def       domain.StockPolicy
	overrides map[string]domain.StockPolicy
}

// NewStaticPolicies создаёт resolver. Неизвестная политика по умолчанию заменяется на reject.
func NewStaticPolicies(def domain.StockPolicy, overrides map[string]domain.StockPolicy) *StaticPolicies {
	if !def.Valid() {
		def = domain.StockPolicyReject
	}
	p := &StaticPolicies{def: def, overrides: make(map[string]domain.StockPolicy, len(overrides))}
	for shopID, policy := range overrides {
		if policy.Valid() {
			p.overrides[shopID] = policy
		}
	}
	return p
}

// Set переопределяет политику магазина.
func (p *StaticPolicies) Set(shopID string, policy domain.StockPolicy) error {
	if !policy.Valid() {
		return domain.ErrUnknownStockPolicy
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[shopID] = policy
	return nil
}

// PolicyFor возвращает политику магазина.
func (p *StaticPolicies) PolicyFor(shopID string) domain.StockPolicy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if policy, ok := p.overrides[shopID]; ok {
		return policy
	}
	return p.def
}

var _ PolicyResolver = (*StaticPolicies)(nil)
