package pricing

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Price is either a concrete amount or Uncontracted. A contracted rate of
// zero is an amount, not Uncontracted.
type Price struct {
	amount       decimal.Decimal
	uncontracted bool
}

// Uncontracted marks an item the selected payer has no rate for.
var Uncontracted = Price{uncontracted: true}

// Amount wraps a concrete amount.
func Amount(d decimal.Decimal) Price {
	return Price{amount: d}
}

// Value returns the amount and true, or zero and false when uncontracted.
func (p Price) Value() (decimal.Decimal, bool) {
	if p.uncontracted {
		return decimal.Zero, false
	}
	return p.amount, true
}

func (p Price) IsUncontracted() bool {
	return p.uncontracted
}

// OrZero is the amount a price contributes to a total.
func (p Price) OrZero() decimal.Decimal {
	if p.uncontracted {
		return decimal.Zero
	}
	return p.amount
}

// Equal compares two prices, treating all uncontracted prices as equal.
func (p Price) Equal(o Price) bool {
	if p.uncontracted || o.uncontracted {
		return p.uncontracted == o.uncontracted
	}
	return p.amount.Equal(o.amount)
}

// String renders the price for display, "N/A" when uncontracted.
func (p Price) String() string {
	if p.uncontracted {
		return "N/A"
	}
	return FormatUSD(p.amount)
}

// MarshalJSON writes a number, or null when uncontracted.
func (p Price) MarshalJSON() ([]byte, error) {
	if p.uncontracted {
		return []byte("null"), nil
	}
	return json.Marshal(p.amount.Round(2).InexactFloat64())
}

var usd = message.NewPrinter(language.AmericanEnglish)

// FormatUSD renders an amount as US dollars with grouping, e.g. $1,234.50.
func FormatUSD(d decimal.Decimal) string {
	return usd.Sprintf("$%.2f", d.Round(2).InexactFloat64())
}
