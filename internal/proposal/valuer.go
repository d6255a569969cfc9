package proposal

import (
	"context"

	"ChamaCore/internal/model"
)

// FixedRateValuer prices maturities at a flat return over the term,
// expressed in basis points. It stands in for the payment-gateway valuation
// callback when none is wired.
type FixedRateValuer struct {
	RateBps int64
}

func (v FixedRateValuer) MaturityValue(_ context.Context, inv *model.Investment) (int64, error) {
	return inv.PrincipalAmount + inv.PrincipalAmount*v.RateBps/10000, nil
}
