package pricing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// RateTable is a payer's sparse item index -> negotiated amount mapping.
// It is never modified after construction.
type RateTable struct {
	rates map[int]decimal.Decimal
}

// NewRateTable copies rates into a new immutable table.
func NewRateTable(rates map[int]decimal.Decimal) *RateTable {
	t := &RateTable{rates: make(map[int]decimal.Decimal, len(rates))}
	for idx, amount := range rates {
		t.rates[idx] = amount
	}
	return t
}

// Lookup returns the negotiated amount for an item index. A nil table has
// no rates.
func (t *RateTable) Lookup(index int) (decimal.Decimal, bool) {
	if t == nil {
		return decimal.Zero, false
	}
	amount, ok := t.rates[index]
	return amount, ok
}

func (t *RateTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rates)
}

// Indexes returns the contracted item indexes in ascending order.
func (t *RateTable) Indexes() []int {
	if t == nil {
		return nil
	}
	out := make([]int, 0, len(t.rates))
	for idx := range t.rates {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
