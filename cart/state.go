package cart

import (
	"encoding/json"
	"fmt"

	"github.com/robbie-med/Sjprice/interfaces"
	"github.com/robbie-med/Sjprice/logging"
	"github.com/robbie-med/Sjprice/pricing"
)

// StorageKey is the persistence key the cart state lives under.
const StorageKey = "cart"

// State is what survives a restart: the entries and the pricing selection.
// The payer's rate table is not persisted; it is reloaded on restore.
type State struct {
	Entries []Entry      `json:"entries"`
	Mode    pricing.Mode `json:"mode"`
	PayerID string       `json:"payer,omitempty"`
}

// DefaultState is an empty cart priced at gross charges.
func DefaultState() State {
	return State{Entries: []Entry{}, Mode: pricing.DefaultMode}
}

func (s State) validate() error {
	if err := Validate(s.Entries); err != nil {
		return err
	}
	if s.Mode == pricing.ModePayer && s.PayerID == "" {
		return fmt.Errorf("payer mode without payer")
	}
	return nil
}

// Save writes the state to store.
func Save(store interfaces.PersistenceStore, s State) error {
	if s.Entries == nil {
		s.Entries = []Entry{}
	}
	if s.Mode != pricing.ModePayer {
		s.PayerID = ""
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode cart state: %w", err)
	}
	if err := store.Set(StorageKey, b); err != nil {
		return fmt.Errorf("save cart state: %w", err)
	}
	return nil
}

// Restore reads the state from store. Missing, unreadable or malformed
// content yields DefaultState; it never fails.
func Restore(store interfaces.PersistenceStore) State {
	b, ok, err := store.Get(StorageKey)
	if err != nil {
		logging.Warn("Could not read saved cart, starting empty", "error", err)
		return DefaultState()
	}
	if !ok {
		return DefaultState()
	}

	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		logging.Warn("Saved cart is corrupt, starting empty", "error", err)
		return DefaultState()
	}
	if err := s.validate(); err != nil {
		logging.Warn("Saved cart is malformed, starting empty", "error", err)
		return DefaultState()
	}
	if s.Entries == nil {
		s.Entries = []Entry{}
	}
	return s
}
