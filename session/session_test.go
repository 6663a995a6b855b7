package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/robbie-med/Sjprice/cart"
	"github.com/robbie-med/Sjprice/catalog/entities"
	"github.com/robbie-med/Sjprice/data"
	"github.com/robbie-med/Sjprice/logging"
	"github.com/robbie-med/Sjprice/persistence"
	"github.com/robbie-med/Sjprice/pricing"
)

// fakeRates serves rate tables by locator. Locators listed in gates block
// until their channel is closed.
type fakeRates struct {
	mu     sync.Mutex
	tables map[string]*pricing.RateTable
	gates  map[string]chan struct{}
	err    error
	calls  int
}

func (f *fakeRates) FetchRates(ctx context.Context, locator string) (*pricing.RateTable, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gates[locator]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.tables[locator], nil
}

func money(v string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(v), Valid: true}
}

func newStore(t *testing.T) *data.DataContainer {
	t.Helper()
	logging.InitLogger("")

	dc := data.NewDataContainer()
	dc.UpdateData(&entities.Catalog{
		Meta: entities.Meta{HospitalName: "St. Test"},
		Items: []entities.Item{
			{Description: "ACETAMINOPHEN 500 MG TAB", GrossCharge: money("2.00"), DiscountedCash: money("1.50")},
			{Description: "CBC WITH DIFF", GrossCharge: money("45.00"),
				Codes: []entities.Code{{Value: "85025", Type: "CPT"}}},
			{Description: "PRIVATE ROOM", GrossCharge: money("2500.00")},
		},
	}, []entities.Payer{
		{ID: "aetna", DisplayName: "Aetna", ItemCount: 2, DataLocator: "payer_aetna.json"},
		{ID: "cigna", DisplayName: "Cigna", ItemCount: 1, DataLocator: "payer_cigna.json"},
	}, nil)
	return dc
}

func newRates() *fakeRates {
	return &fakeRates{
		tables: map[string]*pricing.RateTable{
			"payer_aetna.json": pricing.NewRateTable(map[int]decimal.Decimal{
				0: decimal.RequireFromString("1.00"),
				1: decimal.RequireFromString("20.00"),
			}),
			"payer_cigna.json": pricing.NewRateTable(map[int]decimal.Decimal{
				1: decimal.RequireFromString("30.00"),
			}),
		},
		gates: map[string]chan struct{}{},
	}
}

func newSession(t *testing.T, dc *data.DataContainer, rates *fakeRates, store *persistence.MemoryStore) *Session {
	t.Helper()
	s := New(Options{
		Data:     dc,
		Rates:    rates,
		Store:    store,
		Debounce: 20 * time.Millisecond,
	})
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewSessionDefaults(t *testing.T) {
	s := newSession(t, newStore(t), newRates(), persistence.NewMemoryStore(""))
	snap := s.Snapshot()

	if snap.SessionID == "" || snap.SessionID != s.ID() {
		t.Errorf("Unexpected session id %q", snap.SessionID)
	}
	if !snap.Prompt {
		t.Error("A fresh session should prompt for a query")
	}
	if snap.Pricing.Mode != pricing.ModeGross || snap.Pricing.Label != "Gross Charge" {
		t.Errorf("Unexpected pricing %+v", snap.Pricing)
	}
	if snap.Catalog.State != "ready" || snap.Catalog.Items != 3 || snap.Catalog.Hospital.HospitalName != "St. Test" {
		t.Errorf("Unexpected catalog status %+v", snap.Catalog)
	}
	if len(snap.Cart.Lines) != 0 {
		t.Error("Cart should be empty")
	}
}

func TestSearchImmediate(t *testing.T) {
	s := newSession(t, newStore(t), newRates(), persistence.NewMemoryStore(""))

	snap := s.Search("cbc")
	if snap.Prompt || len(snap.Results) != 1 || snap.Results[0].Index != 1 {
		t.Fatalf("Unexpected results %+v", snap.Results)
	}

	snap = s.Search("x")
	if !snap.Prompt {
		t.Error("Single-character query should prompt")
	}
}

func TestSetQueryDebouncesToLatest(t *testing.T) {
	s := newSession(t, newStore(t), newRates(), persistence.NewMemoryStore(""))

	var mu sync.Mutex
	var queries []string
	s.Subscribe(func(snap Snapshot) {
		if !snap.SearchPending && !snap.Prompt {
			mu.Lock()
			queries = append(queries, snap.Query)
			mu.Unlock()
		}
	})

	for _, q := range []string{"ro", "roo", "room"} {
		snap := s.SetQuery(q)
		if !snap.SearchPending {
			t.Errorf("Expected pending search after SetQuery(%q)", q)
		}
	}

	waitFor(t, "debounced search", func() bool {
		return !s.Snapshot().SearchPending
	})

	snap := s.Snapshot()
	if snap.Query != "room" || len(snap.Results) != 1 || snap.Results[0].Index != 2 {
		t.Errorf("Expected results for latest query, got %q %+v", snap.Query, snap.Results)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(queries) != 1 || queries[0] != "room" {
		t.Errorf("Expected a single evaluation of the last query, got %v", queries)
	}
}

func TestCartOperations(t *testing.T) {
	store := persistence.NewMemoryStore("")
	s := newSession(t, newStore(t), newRates(), store)

	if _, err := s.AddItem(1); err != nil {
		t.Fatal(err)
	}
	snap, err := s.AddItem(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Cart.Lines) != 1 || snap.Cart.Lines[0].Quantity != 2 {
		t.Fatalf("Expected one line with quantity 2, got %+v", snap.Cart.Lines)
	}
	if !snap.Cart.Total.Equal(decimal.NewFromInt(90)) {
		t.Errorf("Total = %s, want 90", snap.Cart.Total)
	}

	snap, err = s.ChangeQuantity(0, -2)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Cart.Lines) != 0 {
		t.Error("Quantity dropping to zero should remove the entry")
	}

	if _, err := s.AddItem(99); !errors.Is(err, ErrNoSuchItem) {
		t.Errorf("Expected ErrNoSuchItem, got %v", err)
	}
	if _, err := s.RemoveEntry(3); !errors.Is(err, cart.ErrNoSuchEntry) {
		t.Errorf("Expected ErrNoSuchEntry, got %v", err)
	}

	// Persisted after every mutation
	if _, err := s.AddItem(0); err != nil {
		t.Fatal(err)
	}
	state := cart.Restore(store)
	if len(state.Entries) != 1 || state.Entries[0].Index != 0 {
		t.Errorf("Persisted state = %+v", state)
	}
}

func TestClearCartNeedsConfirmation(t *testing.T) {
	s := newSession(t, newStore(t), newRates(), persistence.NewMemoryStore(""))

	// Empty cart clears without confirmation
	if _, err := s.ClearCart(false); err != nil {
		t.Errorf("Clearing an empty cart should succeed, got %v", err)
	}

	_, _ = s.AddItem(0)
	if _, err := s.ClearCart(false); !errors.Is(err, ErrConfirmationRequired) {
		t.Errorf("Expected ErrConfirmationRequired, got %v", err)
	}
	snap, err := s.ClearCart(true)
	if err != nil || len(snap.Cart.Lines) != 0 {
		t.Errorf("Confirmed clear failed: %v %+v", err, snap.Cart.Lines)
	}
}

func TestSetModeDiscountedCash(t *testing.T) {
	s := newSession(t, newStore(t), newRates(), persistence.NewMemoryStore(""))
	_, _ = s.AddItem(0)
	s.Search("acet")

	snap, err := s.SetMode(pricing.ModeDiscountedCash, "")
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Cart.Total.Equal(decimal.RequireFromString("1.50")) {
		t.Errorf("Total = %s, want 1.50", snap.Cart.Total)
	}
	if v, _ := snap.Results[0].Price.Value(); !v.Equal(decimal.RequireFromString("1.50")) {
		t.Errorf("Search result should be repriced, got %s", v)
	}
}

func TestSelectPayerLoadsRates(t *testing.T) {
	rates := newRates()
	store := persistence.NewMemoryStore("")
	s := newSession(t, newStore(t), rates, store)
	_, _ = s.AddItem(1)
	_, _ = s.AddItem(2)

	if _, err := s.SelectPayer("nobody"); !errors.Is(err, ErrUnknownPayer) {
		t.Errorf("Expected ErrUnknownPayer, got %v", err)
	}

	snap, err := s.SelectPayer("aetna")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Pricing.Label != "Aetna Negotiated Rate" {
		t.Errorf("Label = %q", snap.Pricing.Label)
	}

	waitFor(t, "rates", func() bool { return !s.Snapshot().Pricing.Loading })

	snap = s.Snapshot()
	if !snap.Cart.Total.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Total = %s, want 20", snap.Cart.Total)
	}
	if snap.Cart.Uncontracted != 1 || !snap.Cart.Lines[1].Uncontracted {
		t.Errorf("Room should be uncontracted, got %+v", snap.Cart.Lines[1])
	}

	if _, err := s.AddItem(2); !errors.Is(err, ErrUncontracted) {
		t.Errorf("Adding an uncontracted item should fail, got %v", err)
	}

	state := cart.Restore(store)
	if state.Mode != pricing.ModePayer || state.PayerID != "aetna" {
		t.Errorf("Persisted selection = %s/%s", state.Mode, state.PayerID)
	}
}

func TestStalePayerLoadIsDiscarded(t *testing.T) {
	rates := newRates()
	aetnaGate := make(chan struct{})
	rates.gates["payer_aetna.json"] = aetnaGate

	s := newSession(t, newStore(t), rates, persistence.NewMemoryStore(""))
	_, _ = s.AddItem(1)

	if _, err := s.SelectPayer("aetna"); err != nil {
		t.Fatal(err)
	}
	snap, err := s.SelectPayer("cigna")
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Pricing.Loading {
		t.Error("Expected cigna rates to be loading")
	}

	waitFor(t, "cigna rates", func() bool { return !s.Snapshot().Pricing.Loading })
	if !s.Snapshot().Cart.Total.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("Expected cigna total 30, got %s", s.Snapshot().Cart.Total)
	}

	// Aetna arrives late and must not replace cigna's table
	close(aetnaGate)
	time.Sleep(50 * time.Millisecond)

	snap = s.Snapshot()
	if snap.Pricing.PayerID != "cigna" || !snap.Cart.Total.Equal(decimal.NewFromInt(30)) {
		t.Errorf("Stale load leaked: payer %s total %s", snap.Pricing.PayerID, snap.Cart.Total)
	}
}

func TestModeChangeDiscardsInflightPayerLoad(t *testing.T) {
	rates := newRates()
	gate := make(chan struct{})
	rates.gates["payer_aetna.json"] = gate

	s := newSession(t, newStore(t), rates, persistence.NewMemoryStore(""))
	_, _ = s.AddItem(1)
	_, _ = s.SelectPayer("aetna")
	_, _ = s.SetMode(pricing.ModeGross, "")

	close(gate)
	time.Sleep(50 * time.Millisecond)

	snap := s.Snapshot()
	if snap.Pricing.Mode != pricing.ModeGross || snap.Pricing.Loading {
		t.Errorf("Unexpected pricing after discard %+v", snap.Pricing)
	}
	if !snap.Cart.Total.Equal(decimal.NewFromInt(45)) {
		t.Errorf("Total = %s, want 45", snap.Cart.Total)
	}
}

func TestPayerLoadFailure(t *testing.T) {
	rates := newRates()
	rates.err = errors.New("network down")

	s := newSession(t, newStore(t), rates, persistence.NewMemoryStore(""))
	_, _ = s.SelectPayer("aetna")

	waitFor(t, "failed load", func() bool { return !s.Snapshot().Pricing.Loading })
	snap := s.Snapshot()
	if snap.Pricing.Error == "" {
		t.Error("Expected a visible pricing error")
	}

	rates.mu.Lock()
	rates.err = nil
	rates.mu.Unlock()

	if _, err := s.RetryPayer(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "retry", func() bool { return !s.Snapshot().Pricing.Loading })
	if s.Snapshot().Pricing.Error != "" {
		t.Errorf("Retry should clear the error, got %q", s.Snapshot().Pricing.Error)
	}
}

func TestRestoreResumesPayerSelection(t *testing.T) {
	store := persistence.NewMemoryStore("")
	if err := cart.Save(store, cart.State{
		Entries: []cart.Entry{{Index: 0, Quantity: 3}},
		Mode:    pricing.ModePayer,
		PayerID: "aetna",
	}); err != nil {
		t.Fatal(err)
	}

	s := newSession(t, newStore(t), newRates(), store)
	waitFor(t, "restored rates", func() bool { return !s.Snapshot().Pricing.Loading })

	snap := s.Snapshot()
	if snap.Pricing.PayerID != "aetna" || snap.Pricing.PayerName != "Aetna" {
		t.Errorf("Restored pricing = %+v", snap.Pricing)
	}
	if !snap.Cart.Total.Equal(decimal.NewFromInt(3)) {
		t.Errorf("Total = %s, want 3", snap.Cart.Total)
	}
}

func TestRestoreBeforeCatalogLoaded(t *testing.T) {
	logging.InitLogger("")
	store := persistence.NewMemoryStore("")
	_ = cart.Save(store, cart.State{Entries: []cart.Entry{{Index: 1, Quantity: 1}}, Mode: pricing.ModePayer, PayerID: "aetna"})

	dc := data.NewDataContainer()
	rates := newRates()
	s := newSession(t, dc, rates, store)

	snap := s.Snapshot()
	if snap.Catalog.State != "loading" {
		t.Errorf("Expected loading catalog, got %s", snap.Catalog.State)
	}
	if _, err := s.AddItem(0); !errors.Is(err, ErrCatalogNotLoaded) {
		t.Errorf("Expected ErrCatalogNotLoaded, got %v", err)
	}
	if len(snap.Cart.Lines) != 1 || !snap.Cart.Lines[0].Missing {
		t.Errorf("Entry should show as missing until the catalog loads, got %+v", snap.Cart.Lines)
	}

	full := newStore(t)
	dc.UpdateData(full.GetCatalog(), full.GetPayers(), nil)
	s.Refresh()

	waitFor(t, "rates after catalog load", func() bool { return !s.Snapshot().Pricing.Loading })
	if got := s.Snapshot().Cart.Total; !got.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Total = %s, want 20", got)
	}
}

func TestItemDetail(t *testing.T) {
	s := newSession(t, newStore(t), newRates(), persistence.NewMemoryStore(""))
	_, _ = s.AddItem(0)

	d, err := s.ItemDetail(0)
	if err != nil {
		t.Fatal(err)
	}
	if d.InCart != 1 || !d.CanAdd || d.Parsed == nil || d.Parsed.FormCode != "TAB" {
		t.Errorf("Unexpected detail %+v", d)
	}
	if d.Parsed.Strength() != "500 MG" {
		t.Errorf("Strength = %q", d.Parsed.Strength())
	}

	if _, err := s.ItemDetail(-1); !errors.Is(err, ErrNoSuchItem) {
		t.Errorf("Expected ErrNoSuchItem, got %v", err)
	}
}

func TestSnapshotVersionIncreases(t *testing.T) {
	s := newSession(t, newStore(t), newRates(), persistence.NewMemoryStore(""))
	v1 := s.Snapshot().Version
	s.Search("cbc")
	if v2 := s.Snapshot().Version; v2 <= v1 {
		t.Errorf("Version should increase, got %d then %d", v1, v2)
	}
}

func TestRefreshRefetchesRatesForNewCatalog(t *testing.T) {
	rates := newRates()
	dc := newStore(t)
	s := newSession(t, dc, rates, persistence.NewMemoryStore(""))
	_, _ = s.AddItem(1)

	if _, err := s.SelectPayer("aetna"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "rates", func() bool { return !s.Snapshot().Pricing.Loading })

	// Republished catalog in a different order, with a matching rate file
	old := dc.GetCatalog()
	dc.UpdateData(&entities.Catalog{
		Meta:  old.Meta,
		Items: []entities.Item{old.Items[2], old.Items[1], old.Items[0]},
	}, dc.GetPayers(), nil)
	rates.mu.Lock()
	rates.tables["payer_aetna.json"] = pricing.NewRateTable(map[int]decimal.Decimal{
		1: decimal.RequireFromString("25.00"),
		2: decimal.RequireFromString("1.00"),
	})
	rates.mu.Unlock()

	if snap := s.Refresh(); !snap.Pricing.Loading {
		t.Error("Expected payer rates to reload after a catalog change")
	}
	waitFor(t, "rates for new catalog", func() bool { return !s.Snapshot().Pricing.Loading })

	rates.mu.Lock()
	calls := rates.calls
	rates.mu.Unlock()
	if calls != 2 {
		t.Errorf("Expected 2 rate fetches, got %d", calls)
	}

	room, err := s.ItemDetail(0)
	if err != nil {
		t.Fatal(err)
	}
	if !room.Price.IsUncontracted() {
		t.Errorf("PRIVATE ROOM should be uncontracted, got %s", room.Price)
	}
	if got := s.Snapshot().Cart.Total; !got.Equal(decimal.NewFromInt(25)) {
		t.Errorf("Total = %s, want 25", got)
	}

	// Same catalog again: no refetch
	s.Refresh()
	time.Sleep(50 * time.Millisecond)
	rates.mu.Lock()
	defer rates.mu.Unlock()
	if rates.calls != 2 {
		t.Errorf("Refresh without a catalog change fetched rates again (%d calls)", rates.calls)
	}
}

func TestModeChangeKeepsPendingQueryDebounced(t *testing.T) {
	s := New(Options{
		Data:     newStore(t),
		Rates:    newRates(),
		Store:    persistence.NewMemoryStore(""),
		Debounce: 300 * time.Millisecond,
	})
	t.Cleanup(s.Close)

	s.Search("acet")
	s.SetQuery("cbc")

	snap, err := s.SetMode(pricing.ModeDiscountedCash, "")
	if err != nil {
		t.Fatal(err)
	}
	if !snap.SearchPending {
		t.Error("The debounced query should still be pending")
	}
	if len(snap.Results) != 1 || snap.Results[0].Index != 0 {
		t.Fatalf("Expected the previous query's results, got %+v", snap.Results)
	}
	if v, _ := snap.Results[0].Price.Value(); !v.Equal(decimal.RequireFromString("1.50")) {
		t.Errorf("Previous results should be repriced, got %s", v)
	}

	waitFor(t, "debounced search", func() bool { return !s.Snapshot().SearchPending })
	snap = s.Snapshot()
	if len(snap.Results) != 1 || snap.Results[0].Index != 1 {
		t.Errorf("Expected results for cbc, got %+v", snap.Results)
	}
}
