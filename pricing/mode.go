// Package pricing resolves the amount shown for a catalog item under the
// selected pricing mode.
package pricing

import (
	"fmt"
	"strings"
)

// Mode selects which amount of an item is displayed and totaled.
type Mode int

const (
	ModeGross Mode = iota
	ModeDiscountedCash
	ModePayer
)

// DefaultMode is used for new sessions and after a corrupt restore.
const DefaultMode = ModeGross

func (m Mode) String() string {
	switch m {
	case ModeGross:
		return "gross"
	case ModeDiscountedCash:
		return "discounted_cash"
	case ModePayer:
		return "payer"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode accepts the String() form, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gross":
		return ModeGross, nil
	case "discounted_cash", "cash":
		return ModeDiscountedCash, nil
	case "payer":
		return ModePayer, nil
	}
	return DefaultMode, fmt.Errorf("unknown pricing mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Selection is a pricing mode together with the payer it refers to. Table is
// nil while the payer's rates are still loading.
type Selection struct {
	Mode      Mode
	PayerID   string
	PayerName string
	Table     *RateTable
}

// Label is the human name of the active price column.
func (s Selection) Label() string {
	switch s.Mode {
	case ModeDiscountedCash:
		return "Discounted Cash Price"
	case ModePayer:
		if s.PayerName != "" {
			return s.PayerName + " Negotiated Rate"
		}
		return "Negotiated Rate"
	}
	return "Gross Charge"
}
