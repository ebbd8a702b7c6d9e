package pipeline

import (
	"github.com/shopspring/decimal"

	"pricenorm/internal"
	"pricenorm/internal/registry"
)

const moneyPlaces = 2

type Derivation struct {
	Base  decimal.Decimal
	Rate  decimal.Decimal
	Value decimal.Decimal
}

// Derive computes the overhead-inclusive price base*(1+rate) at full
// precision. A row's own rate overrides the profile rate. Nothing is derived
// when the profile has no overhead or the base price is absent or not
// positive.
func Derive(row internal.MergedRow, p *registry.Profile) (Derivation, bool) {
	if !p.OverheadEnabled {
		return Derivation{}, false
	}
	if row.UnitPrice == nil || !row.UnitPrice.IsPositive() {
		return Derivation{}, false
	}

	rate := p.OverheadRate
	if row.OverheadRate != nil && !row.OverheadRate.IsNegative() {
		rate = *row.OverheadRate
	}
	base := *row.UnitPrice
	return Derivation{
		Base:  base,
		Rate:  rate,
		Value: base.Mul(decimal.NewFromInt(1).Add(rate)),
	}, true
}

func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(moneyPlaces)
}
