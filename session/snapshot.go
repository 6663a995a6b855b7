package session

import (
	"time"

	"github.com/robbie-med/Sjprice/cart"
	"github.com/robbie-med/Sjprice/catalog/entities"
	"github.com/robbie-med/Sjprice/descparser"
	"github.com/robbie-med/Sjprice/pricing"
	"github.com/robbie-med/Sjprice/search"
)

// CatalogStatus describes the loaded data as presentation needs it.
type CatalogStatus struct {
	State       string        `json:"state"`
	Error       string        `json:"error,omitempty"`
	Items       int           `json:"items"`
	Payers      int           `json:"payers"`
	Hospital    entities.Meta `json:"hospital"`
	LastUpdated time.Time     `json:"last_updated"`
}

// PricingStatus is the active selection. Loading is set while the selected
// payer's rate table is in flight.
type PricingStatus struct {
	Mode      pricing.Mode `json:"mode"`
	PayerID   string       `json:"payer_id,omitempty"`
	PayerName string       `json:"payer_name,omitempty"`
	Label     string       `json:"label"`
	Loading   bool         `json:"loading"`
	Error     string       `json:"error,omitempty"`
}

// Snapshot is an immutable view of the session, emitted after every
// mutating operation.
type Snapshot struct {
	SessionID     string          `json:"session_id"`
	Version       uint64          `json:"version"`
	Catalog       CatalogStatus   `json:"catalog"`
	Query         string          `json:"query"`
	Prompt        bool            `json:"prompt"`
	Results       []search.Result `json:"results"`
	Capped        bool            `json:"capped"`
	SearchPending bool            `json:"search_pending"`
	Pricing       PricingStatus   `json:"pricing"`
	Cart          cart.Totals     `json:"cart"`
}

// ItemDetail is the full view of one catalog item under the active
// selection.
type ItemDetail struct {
	Index      int                           `json:"index"`
	Item       *entities.Item                `json:"item"`
	Category   search.Category               `json:"category"`
	Parsed     *descparser.ParsedDescription `json:"parsed,omitempty"`
	Price      pricing.Price                 `json:"price"`
	PriceLabel string                        `json:"price_label"`
	PerUnit    *pricing.UnitPrice            `json:"per_unit,omitempty"`
	InCart     int                           `json:"in_cart"`
	CanAdd     bool                          `json:"can_add"`
}
