package cart

import (
	"errors"
	"testing"

	"github.com/robbie-med/Sjprice/logging"
	"github.com/robbie-med/Sjprice/persistence"
	"github.com/robbie-med/Sjprice/pricing"
)

type failingStore struct{}

func (failingStore) Get(string) ([]byte, bool, error) { return nil, false, errors.New("disk gone") }
func (failingStore) Set(string, []byte) error         { return errors.New("disk gone") }

func TestStateRoundTrip(t *testing.T) {
	logging.InitLogger("")
	store := persistence.NewMemoryStore(persistence.DefaultScope)

	saved := State{
		Entries: []Entry{{Index: 4, Quantity: 2}, {Index: 1, Quantity: 1}},
		Mode:    pricing.ModePayer,
		PayerID: "blue-cross",
	}
	if err := Save(store, saved); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got := Restore(store)
	if got.Mode != pricing.ModePayer || got.PayerID != "blue-cross" {
		t.Errorf("Restored selection = %s/%s", got.Mode, got.PayerID)
	}
	if len(got.Entries) != 2 || got.Entries[0] != saved.Entries[0] || got.Entries[1] != saved.Entries[1] {
		t.Errorf("Restored entries = %+v", got.Entries)
	}
}

func TestSaveDropsPayerOutsidePayerMode(t *testing.T) {
	store := persistence.NewMemoryStore("")
	if err := Save(store, State{Mode: pricing.ModeGross, PayerID: "stale"}); err != nil {
		t.Fatal(err)
	}
	raw, _, _ := store.Get(StorageKey)
	if string(raw) != `{"entries":[],"mode":"gross"}` {
		t.Errorf("Saved = %s", raw)
	}
}

func TestRestoreFallsBackToDefault(t *testing.T) {
	logging.InitLogger("")

	tests := []struct {
		name string
		raw  string
	}{
		{"corrupt json", `{"entries":[`},
		{"unknown mode", `{"entries":[],"mode":"bitcoin"}`},
		{"zero quantity", `{"entries":[{"i":1,"q":0}],"mode":"gross"}`},
		{"duplicate index", `{"entries":[{"i":1,"q":1},{"i":1,"q":2}],"mode":"gross"}`},
		{"negative index", `{"entries":[{"i":-3,"q":1}],"mode":"gross"}`},
		{"payer without id", `{"entries":[],"mode":"payer"}`},
		{"wrong shape", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := persistence.NewMemoryStore("")
			_ = store.Set(StorageKey, []byte(tt.raw))

			got := Restore(store)
			if len(got.Entries) != 0 || got.Mode != pricing.DefaultMode || got.PayerID != "" {
				t.Errorf("Expected default state, got %+v", got)
			}
		})
	}
}

func TestRestoreMissingAndFailingStore(t *testing.T) {
	logging.InitLogger("")

	got := Restore(persistence.NewMemoryStore(""))
	if got.Entries == nil || len(got.Entries) != 0 || got.Mode != pricing.DefaultMode {
		t.Errorf("Missing state should be default, got %+v", got)
	}

	got = Restore(failingStore{})
	if len(got.Entries) != 0 || got.Mode != pricing.DefaultMode {
		t.Errorf("Unreadable store should be default, got %+v", got)
	}

	if err := Save(failingStore{}, DefaultState()); err == nil {
		t.Error("Save should report store errors")
	}
}
