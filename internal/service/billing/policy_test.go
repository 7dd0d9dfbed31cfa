package billing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

func TestStaticPolicies(t *testing.T) {
	p := NewStaticPolicies(domain.StockPolicy("bogus"), map[string]domain.StockPolicy{
		"shop-a": domain.StockPolicyBackorder,
		"shop-b": domain.StockPolicy("unknown"),
	})

	require.Equal(t, domain.StockPolicyBackorder, p.PolicyFor("shop-a"))
	require.Equal(t, domain.StockPolicyReject, p.PolicyFor("shop-b"), "invalid override is ignored")
	require.Equal(t, domain.StockPolicyReject, p.PolicyFor("shop-c"))

	require.NoError(t, p.Set("shop-c", domain.StockPolicyBackorder))
	require.Equal(t, domain.StockPolicyBackorder, p.PolicyFor("shop-c"))

	require.ErrorIs(t, p.Set("shop-c", domain.StockPolicy("x")), domain.ErrUnknownStockPolicy)
	require.Equal(t, domain.StockPolicyBackorder, p.PolicyFor("shop-c"))
}
