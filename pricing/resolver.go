package pricing

import (
	"github.com/robbie-med/Sjprice/catalog/entities"
	"github.com/shopspring/decimal"
)

// Resolve picks the amount shown for the item at index under mode.
//
// In payer mode only the payer's table is consulted: an index missing from
// the table (or a table not loaded yet) is Uncontracted, even when the item
// has a gross charge.
func Resolve(item *entities.Item, index int, mode Mode, table *RateTable) Price {
	switch mode {
	case ModePayer:
		if amount, ok := table.Lookup(index); ok {
			return Amount(amount)
		}
		return Uncontracted
	case ModeDiscountedCash:
		if item == nil {
			return Amount(decimal.Zero)
		}
		if item.DiscountedCash.Valid {
			return Amount(item.DiscountedCash.Decimal)
		}
		if item.GrossCharge.Valid {
			return Amount(item.GrossCharge.Decimal)
		}
		return Amount(decimal.Zero)
	default:
		if item != nil && item.GrossCharge.Valid {
			return Amount(item.GrossCharge.Decimal)
		}
		return Amount(decimal.Zero)
	}
}

// Resolve applies the selection to one item.
func (s Selection) Resolve(item *entities.Item, index int) Price {
	return Resolve(item, index, s.Mode, s.Table)
}

// UnitPrice is a package price divided down to one billing unit.
type UnitPrice struct {
	Amount decimal.Decimal `json:"amount"`
	Unit   string          `json:"unit"`
}

// String renders e.g. "$0.25/mg".
func (u UnitPrice) String() string {
	return FormatUSD(u.Amount) + "/" + u.Unit
}

var unitLabels = []struct {
	code  string
	label string
}{
	{"ME", "mg"},
	{"ML", "mL"},
	{"GM", "g"},
	{"UN", "units"},
	{"EA", "ea"},
	{"F2", "IU"},
}

// UnitLabel maps a drug unit-of-measure code to its display label. Unknown
// codes are returned unchanged.
func UnitLabel(code string) string {
	for _, u := range unitLabels {
		if u.code == code {
			return u.label
		}
	}
	return code
}

// PerUnitPrice divides price by the item's package size. Items without a
// package, or with a single-unit package, have no per-unit price.
func PerUnitPrice(item *entities.Item, price decimal.Decimal) (UnitPrice, bool) {
	if item == nil || item.Drug == nil || item.Drug.UnitsPerPackage <= 1 {
		return UnitPrice{}, false
	}
	units := decimal.NewFromFloat(item.Drug.UnitsPerPackage)
	return UnitPrice{
		Amount: price.DivRound(units, 4),
		Unit:   UnitLabel(item.Drug.UnitType),
	}, true
}
