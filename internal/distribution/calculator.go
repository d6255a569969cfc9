// Package distribution splits a matured investment's profit or loss across
// member contribution shares, reconciling exactly to the last currency unit.
package distribution

import (
	"log"
	"sort"

	"github.com/shopspring/decimal"

	"ChamaCore/internal/errs"
	"ChamaCore/internal/model"
)

// DefaultEpsilon is the tolerance for the share-sum validation.
var DefaultEpsilon = decimal.RequireFromString("0.001")

// MemberShare is a member's proportional ownership of the pool.
type MemberShare struct {
	MemberID string
	Share    decimal.Decimal
}

// Calculator computes per-member distribution amounts.
type Calculator struct {
	epsilon decimal.Decimal
}

// NewCalculator creates a Calculator with the given share-sum tolerance.
func NewCalculator(epsilon decimal.Decimal) *Calculator {
	if epsilon.LessThanOrEqual(decimal.Zero) {
		epsilon = DefaultEpsilon
	}
	return &Calculator{epsilon: epsilon}
}

// SharesFromContributions derives proportional shares from per-member
// contribution totals.
func SharesFromContributions(totals map[string]int64) ([]MemberShare, error) {
	var sum int64
	for _, t := range totals {
		if t < 0 {
			return nil, errs.New(errs.CodeValidation, "negative contribution total %d", t)
		}
		sum += t
	}
	if sum == 0 {
		return nil, errs.New(errs.CodeValidation, "no contributions to derive shares from")
	}
	total := decimal.NewFromInt(sum)
	shares := make([]MemberShare, 0, len(totals))
	for member, t := range totals {
		shares = append(shares, MemberShare{
			MemberID: member,
			Share:    decimal.NewFromInt(t).Div(total),
		})
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].MemberID < shares[j].MemberID })
	return shares, nil
}

// Distribute splits totalProfit (maturity minus principal, possibly
// negative) across the shares. Per-member amounts are rounded to the
// smallest unit and the rounding residual is assigned to the member with
// the largest share, ties broken by lowest member id, so the returned
// amounts always sum to totalProfit exactly.
func (c *Calculator) Distribute(totalProfit int64, shares []MemberShare) ([]model.WealthShare, error) {
	if len(shares) == 0 {
		return nil, errs.New(errs.CodeValidation, "empty share set")
	}
	seen := make(map[string]bool, len(shares))
	sum := decimal.Zero
	for _, sh := range shares {
		if seen[sh.MemberID] {
			return nil, errs.New(errs.CodeValidation, "duplicate member %s in shares", sh.MemberID)
		}
		seen[sh.MemberID] = true
		if sh.Share.IsNegative() {
			return nil, errs.New(errs.CodeValidation, "negative share for member %s", sh.MemberID)
		}
		sum = sum.Add(sh.Share)
	}
	if sum.IsZero() {
		return nil, errs.New(errs.CodeValidation, "shares sum to zero")
	}

	// Renormalize proportionally when the sum drifts outside tolerance.
	// Never silently: the drift is logged for reconciliation follow-up.
	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(c.epsilon) {
		log.Printf("[WARN] contribution shares sum to %s, renormalizing", sum)
		normalized := make([]MemberShare, len(shares))
		for i, sh := range shares {
			normalized[i] = MemberShare{MemberID: sh.MemberID, Share: sh.Share.Div(sum)}
		}
		shares = normalized
	}

	profit := decimal.NewFromInt(totalProfit)
	out := make([]model.WealthShare, len(shares))
	var rounded int64
	for i, sh := range shares {
		amount := profit.Mul(sh.Share).Round(0).IntPart()
		out[i] = model.WealthShare{MemberID: sh.MemberID, Amount: amount}
		rounded += amount
	}

	// The residual goes to the largest share, lowest member id on ties.
	if residual := totalProfit - rounded; residual != 0 {
		target := 0
		for i := 1; i < len(shares); i++ {
			switch shares[i].Share.Cmp(shares[target].Share) {
			case 1:
				target = i
			case 0:
				if shares[i].MemberID < shares[target].MemberID {
					target = i
				}
			}
		}
		out[target].Amount += residual
	}

	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}
