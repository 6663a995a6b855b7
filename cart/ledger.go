// Package cart keeps the price estimate ledger: an ordered list of catalog
// items with quantities, priced on demand under the active selection.
package cart

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/robbie-med/Sjprice/catalog/entities"
	"github.com/robbie-med/Sjprice/pricing"
)

var (
	ErrNoSuchEntry  = errors.New("no such cart entry")
	ErrInvalidIndex = errors.New("invalid item index")
)

// Entry is one cart line. Entries are unique by Index and Quantity is at
// least 1.
type Entry struct {
	Index    int `json:"i"`
	Quantity int `json:"q"`
}

// Ledger is an ordered, index-unique list of entries. It is not safe for
// concurrent use; the owning session serializes access.
type Ledger struct {
	entries []Entry
}

// NewLedger returns a ledger holding entries. Callers must pass entries that
// already satisfy the ledger invariants, see Validate.
func NewLedger(entries []Entry) *Ledger {
	return &Ledger{entries: slices.Clone(entries)}
}

// Entries returns a copy of the entries in display order.
func (l *Ledger) Entries() []Entry {
	return slices.Clone(l.entries)
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

// Position returns the position of the entry for index, or -1.
func (l *Ledger) Position(index int) int {
	return slices.IndexFunc(l.entries, func(e Entry) bool { return e.Index == index })
}

// Add puts one more of index in the cart. An existing entry has its quantity
// incremented in place; otherwise a new entry is appended. It returns the
// entry's position.
func (l *Ledger) Add(index int) (int, error) {
	if index < 0 {
		return -1, fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	if pos := l.Position(index); pos >= 0 {
		l.entries[pos].Quantity++
		return pos, nil
	}
	l.entries = append(l.entries, Entry{Index: index, Quantity: 1})
	return len(l.entries) - 1, nil
}

// Remove drops the entry at position.
func (l *Ledger) Remove(position int) error {
	if position < 0 || position >= len(l.entries) {
		return fmt.Errorf("%w: position %d", ErrNoSuchEntry, position)
	}
	l.entries = slices.Delete(l.entries, position, position+1)
	return nil
}

// ChangeQuantity adds delta to the entry at position. The entry is removed
// when its quantity would drop to zero or below; removed reports that.
func (l *Ledger) ChangeQuantity(position, delta int) (removed bool, err error) {
	if position < 0 || position >= len(l.entries) {
		return false, fmt.Errorf("%w: position %d", ErrNoSuchEntry, position)
	}
	q := l.entries[position].Quantity + delta
	if q <= 0 {
		l.entries = slices.Delete(l.entries, position, position+1)
		return true, nil
	}
	l.entries[position].Quantity = q
	return false, nil
}

// Clear empties the ledger.
func (l *Ledger) Clear() {
	l.entries = nil
}

// Validate reports the first entry breaking the ledger invariants.
func Validate(entries []Entry) error {
	seen := make(map[int]struct{}, len(entries))
	for i, e := range entries {
		if e.Index < 0 {
			return fmt.Errorf("entry %d: %w: %d", i, ErrInvalidIndex, e.Index)
		}
		if e.Quantity < 1 {
			return fmt.Errorf("entry %d: quantity %d below 1", i, e.Quantity)
		}
		if _, dup := seen[e.Index]; dup {
			return fmt.Errorf("entry %d: duplicate item index %d", i, e.Index)
		}
		seen[e.Index] = struct{}{}
	}
	return nil
}

// Line is one priced cart entry.
type Line struct {
	Position     int            `json:"position"`
	Index        int            `json:"index"`
	Quantity     int            `json:"quantity"`
	Item         *entities.Item `json:"item,omitempty"`
	UnitPrice    pricing.Price  `json:"unit_price"`
	LineTotal    pricing.Price  `json:"line_total"`
	Uncontracted bool           `json:"uncontracted"`
	Missing      bool           `json:"missing"`
}

// Totals is the priced cart. Uncontracted and missing lines contribute zero.
type Totals struct {
	Lines        []Line          `json:"lines"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Total        decimal.Decimal `json:"total"`
	Uncontracted int             `json:"uncontracted_count"`
	Missing      int             `json:"missing_count"`
	Label        string          `json:"price_label"`
}

// ComputeTotals prices entries against catalog under sel. It has no side
// effects, so repeated calls with the same inputs agree.
func ComputeTotals(entries []Entry, catalog *entities.Catalog, sel pricing.Selection) Totals {
	t := Totals{
		Lines:    make([]Line, 0, len(entries)),
		Subtotal: decimal.Zero,
		Label:    sel.Label(),
	}

	for pos, e := range entries {
		line := Line{Position: pos, Index: e.Index, Quantity: e.Quantity}
		item := catalog.At(e.Index)
		if item == nil {
			line.Missing = true
			line.UnitPrice = pricing.Amount(decimal.Zero)
			line.LineTotal = pricing.Amount(decimal.Zero)
			t.Missing++
			t.Lines = append(t.Lines, line)
			continue
		}

		line.Item = item
		line.UnitPrice = sel.Resolve(item, e.Index)
		if unit, ok := line.UnitPrice.Value(); ok {
			total := unit.Mul(decimal.NewFromInt(int64(e.Quantity)))
			line.LineTotal = pricing.Amount(total)
			t.Subtotal = t.Subtotal.Add(total)
		} else {
			line.LineTotal = pricing.Uncontracted
			line.Uncontracted = true
			t.Uncontracted++
		}
		t.Lines = append(t.Lines, line)
	}

	// No taxes or fees apply to estimates
	t.Total = t.Subtotal
	return t
}

// Totals prices the ledger.
func (l *Ledger) Totals(catalog *entities.Catalog, sel pricing.Selection) Totals {
	return ComputeTotals(l.entries, catalog, sel)
}
