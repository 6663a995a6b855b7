// Package session owns the state of one price lookup session: the current
// query and its results, the pricing selection and the cart. Every user
// intent goes through a single mutex, and an immutable Snapshot is emitted
// after each change.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robbie-med/Sjprice/cart"
	"github.com/robbie-med/Sjprice/catalog/entities"
	"github.com/robbie-med/Sjprice/descparser"
	"github.com/robbie-med/Sjprice/interfaces"
	"github.com/robbie-med/Sjprice/logging"
	"github.com/robbie-med/Sjprice/metrics"
	"github.com/robbie-med/Sjprice/pricing"
	"github.com/robbie-med/Sjprice/search"
	"github.com/robbie-med/Sjprice/validation"
)

var (
	ErrUnknownPayer         = errors.New("unknown payer")
	ErrCatalogNotLoaded     = errors.New("catalog not loaded")
	ErrConfirmationRequired = errors.New("clearing a non-empty cart requires confirmation")
	ErrNoSuchItem           = errors.New("no such item")
	ErrUncontracted         = errors.New("item has no negotiated rate for the selected payer")
)

const DefaultDebounce = 250 * time.Millisecond

// Listener receives every snapshot. It is called with the session lock held
// and must not call back into the session.
type Listener func(Snapshot)

// Options configures a Session. Store and Rates are required.
type Options struct {
	Data        interfaces.DataStore
	Rates       interfaces.PayerRateSource
	Store       interfaces.PersistenceStore
	Debounce    time.Duration
	SearchLimit int
	LoadTimeout time.Duration
}

// Session is safe for concurrent use.
type Session struct {
	id        string
	data      interfaces.DataStore
	rates     interfaces.PayerRateSource
	validator interfaces.DataValidator
	store     interfaces.PersistenceStore
	engine    *search.Engine
	debouncer *search.Debouncer
	timeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	version   uint64
	query     string
	outcome   search.Outcome
	ledger    *cart.Ledger
	sel       pricing.Selection
	ratesFor  *entities.Catalog
	payerGen  uint64
	loading   bool
	payerErr  error
	listeners []Listener
	last      Snapshot
}

// New creates a session and restores the persisted cart and pricing
// selection. A saved payer selection starts loading its rates as soon as the
// payer directory knows it.
func New(opts Options) *Session {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 2 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        uuid.NewString(),
		data:      opts.Data,
		rates:     opts.Rates,
		validator: validation.NewDataValidator(),
		store:     opts.Store,
		engine:    search.NewEngine(opts.SearchLimit),
		debouncer: search.NewDebouncer(opts.Debounce),
		timeout:   opts.LoadTimeout,
		ctx:       ctx,
		cancel:    cancel,
	}

	state := cart.Restore(opts.Store)
	s.ledger = cart.NewLedger(state.Entries)
	s.sel = pricing.Selection{Mode: state.Mode, PayerID: state.PayerID}
	s.outcome = search.Outcome{Prompt: true}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumePayerLocked()
	s.emitLocked()

	logging.Info("Session started",
		"session_id", s.id,
		"entries", s.ledger.Len(),
		"mode", s.sel.Mode.String(),
	)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Close cancels pending searches and in-flight rate loads.
func (s *Session) Close() {
	s.debouncer.Cancel()
	s.cancel()
}

// Subscribe registers l for future snapshots.
func (s *Session) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Snapshot returns the latest snapshot.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// SetQuery records a query change. The search runs once the query has been
// stable for the debounce delay; a newer change supersedes a pending one.
func (s *Session) SetQuery(query string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.query = query
	s.debouncer.Trigger(func(gen uint64) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.debouncer.Current(gen) {
			return
		}
		s.runSearchLocked(s.query)
		s.emitLocked()
	})
	return s.emitLocked()
}

// Search runs query immediately, dropping any pending debounced search.
func (s *Session) Search(query string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.debouncer.Cancel()
	s.query = query
	s.runSearchLocked(query)
	return s.emitLocked()
}

func (s *Session) runSearchLocked(query string) {
	start := time.Now()
	s.outcome = s.engine.Run(query, s.data.GetSearchIndex(), s.sel)
	metrics.SearchDuration.Observe(time.Since(start).Seconds())

	switch {
	case s.outcome.Prompt:
		metrics.SearchQueries.WithLabelValues("prompt").Inc()
	case len(s.outcome.Results) == 0:
		metrics.SearchQueries.WithLabelValues("empty").Inc()
	default:
		metrics.SearchQueries.WithLabelValues("hit").Inc()
	}
}

// AddItem puts one of the item at index in the cart.
func (s *Session) AddItem(index int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	catalog := s.data.GetCatalog()
	if catalog == nil {
		return s.last, ErrCatalogNotLoaded
	}
	item := catalog.At(index)
	if item == nil {
		return s.last, fmt.Errorf("%w: %d", ErrNoSuchItem, index)
	}
	if s.sel.Resolve(item, index).IsUncontracted() {
		return s.last, fmt.Errorf("%w: %d", ErrUncontracted, index)
	}

	if _, err := s.ledger.Add(index); err != nil {
		return s.last, err
	}
	metrics.CartMutations.WithLabelValues("add").Inc()
	s.persistLocked()
	return s.emitLocked(), nil
}

// RemoveEntry drops the cart entry at position.
func (s *Session) RemoveEntry(position int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.Remove(position); err != nil {
		return s.last, err
	}
	metrics.CartMutations.WithLabelValues("remove").Inc()
	s.persistLocked()
	return s.emitLocked(), nil
}

// ChangeQuantity adjusts the quantity at position by delta, removing the
// entry when it drops below one.
func (s *Session) ChangeQuantity(position, delta int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.ledger.ChangeQuantity(position, delta)
	if err != nil {
		return s.last, err
	}
	if removed {
		metrics.CartMutations.WithLabelValues("remove").Inc()
	} else {
		metrics.CartMutations.WithLabelValues("quantity").Inc()
	}
	s.persistLocked()
	return s.emitLocked(), nil
}

// ClearCart empties the cart. Clearing a non-empty cart needs confirm.
func (s *Session) ClearCart(confirm bool) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ledger.Len() > 0 && !confirm {
		return s.last, ErrConfirmationRequired
	}
	s.ledger.Clear()
	metrics.CartMutations.WithLabelValues("clear").Inc()
	s.persistLocked()
	return s.emitLocked(), nil
}

// SetMode switches to gross or discounted cash pricing. Payer pricing goes
// through SelectPayer.
func (s *Session) SetMode(mode pricing.Mode, payerID string) (Snapshot, error) {
	if mode == pricing.ModePayer {
		return s.SelectPayer(payerID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Invalidate any rate load still in flight
	s.payerGen++
	s.loading = false
	s.payerErr = nil
	s.sel = pricing.Selection{Mode: mode}

	s.persistLocked()
	s.repriceLocked()
	return s.emitLocked(), nil
}

// SelectPayer switches to payer pricing and starts loading the payer's rate
// table. Until it arrives every item resolves as uncontracted. If the
// selection changes again before the load completes, the late table is
// discarded.
func (s *Session) SelectPayer(payerID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payer, ok := s.data.FindPayer(payerID)
	if !ok {
		return s.last, fmt.Errorf("%w: %q", ErrUnknownPayer, payerID)
	}

	s.selectPayerLocked(payer)
	s.persistLocked()
	s.repriceLocked()
	return s.emitLocked(), nil
}

func (s *Session) selectPayerLocked(payer entities.Payer) {
	s.payerGen++
	gen := s.payerGen
	s.sel = pricing.Selection{
		Mode:      pricing.ModePayer,
		PayerID:   payer.ID,
		PayerName: payer.DisplayName,
	}
	s.ratesFor = s.data.GetCatalog()
	s.loading = true
	s.payerErr = nil

	go s.loadRates(gen, payer)
}

func (s *Session) loadRates(gen uint64, payer entities.Payer) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	table, err := s.rates.FetchRates(ctx, payer.DataLocator)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.payerGen {
		metrics.PayerRateLoads.WithLabelValues("discarded").Inc()
		logging.Debug("Discarding rates for superseded payer selection", "payer", payer.ID)
		return
	}
	s.loading = false

	if err != nil {
		metrics.PayerRateLoads.WithLabelValues("error").Inc()
		logging.Error("Failed to load payer rates", "payer", payer.ID, "file", payer.DataLocator, "error", err)
		s.payerErr = err
		s.emitLocked()
		return
	}

	metrics.PayerRateLoads.WithLabelValues("ok").Inc()
	if catalog := s.data.GetCatalog(); catalog != nil {
		report := s.validator.ReportRateTable(payer.ID, table, catalog.Len())
		if len(report.OutOfRangeIndexes) > 0 || report.NegativeRates > 0 {
			logging.Warn("Payer rate table has problems",
				"payer", payer.ID,
				"out_of_range", len(report.OutOfRangeIndexes),
				"negative", report.NegativeRates,
			)
		}
	}
	logging.Info("Payer rates loaded",
		"payer", payer.ID,
		"rates", table.Len(),
		"duration", time.Since(start),
	)
	s.sel.Table = table
	s.repriceLocked()
	s.emitLocked()
}

// RetryPayer reloads the selected payer's rates after a failed load.
func (s *Session) RetryPayer() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sel.Mode != pricing.ModePayer {
		return s.last, nil
	}
	payer, ok := s.data.FindPayer(s.sel.PayerID)
	if !ok {
		return s.last, fmt.Errorf("%w: %q", ErrUnknownPayer, s.sel.PayerID)
	}
	s.selectPayerLocked(payer)
	s.repriceLocked()
	return s.emitLocked(), nil
}

// Refresh re-runs the current query and reprices the cart against the
// current catalog. It is called after every catalog reload. A payer table
// requested against an earlier catalog is dropped and fetched again, since
// rates are keyed by catalog index.
func (s *Session) Refresh() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sel.Mode == pricing.ModePayer && s.ratesFor != s.data.GetCatalog() {
		s.payerGen++
		s.sel.Table = nil
		s.loading = false
	}
	s.resumePayerLocked()
	s.repriceLocked()
	return s.emitLocked()
}

// resumePayerLocked starts loading a restored payer selection once the
// payer directory is available.
func (s *Session) resumePayerLocked() {
	if s.sel.Mode != pricing.ModePayer || s.sel.Table != nil || s.loading {
		return
	}
	payer, ok := s.data.FindPayer(s.sel.PayerID)
	if !ok {
		if s.data.GetCatalog() != nil {
			logging.Warn("Saved payer no longer exists", "payer", s.sel.PayerID)
			s.payerErr = fmt.Errorf("%w: %q", ErrUnknownPayer, s.sel.PayerID)
		}
		return
	}
	s.selectPayerLocked(payer)
}

// repriceLocked re-evaluates the last query that actually ran. A query still
// waiting on the debounce is left to its own timer.
func (s *Session) repriceLocked() {
	if s.outcome.Prompt {
		return
	}
	s.runSearchLocked(s.outcome.Query)
}

// ItemDetail returns the full view of one item under the active selection.
func (s *Session) ItemDetail(index int) (ItemDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	catalog := s.data.GetCatalog()
	if catalog == nil {
		return ItemDetail{}, ErrCatalogNotLoaded
	}
	item := catalog.At(index)
	if item == nil {
		return ItemDetail{}, fmt.Errorf("%w: %d", ErrNoSuchItem, index)
	}

	d := ItemDetail{
		Index:      index,
		Item:       item,
		Category:   search.Classify(item),
		Price:      s.sel.Resolve(item, index),
		PriceLabel: s.sel.Label(),
	}
	d.CanAdd = !d.Price.IsUncontracted()
	if amount, ok := d.Price.Value(); ok {
		if unit, ok := pricing.PerUnitPrice(item, amount); ok {
			d.PerUnit = &unit
		}
	}
	if parsed := descparser.Parse(item.Description); !parsed.IsEmpty() {
		d.Parsed = &parsed
	}
	if pos := s.ledger.Position(index); pos >= 0 {
		d.InCart = s.ledger.Entries()[pos].Quantity
	}
	return d, nil
}

func (s *Session) persistLocked() {
	state := cart.State{
		Entries: s.ledger.Entries(),
		Mode:    s.sel.Mode,
		PayerID: s.sel.PayerID,
	}
	if err := cart.Save(s.store, state); err != nil {
		logging.Warn("Could not persist cart", "session_id", s.id, "error", err)
	}
}

func (s *Session) catalogStatusLocked() CatalogStatus {
	st := CatalogStatus{
		Payers:      len(s.data.GetPayers()),
		LastUpdated: s.data.GetLastUpdated(),
	}
	catalog := s.data.GetCatalog()
	loadErr := s.data.GetLoadError()

	switch {
	case catalog != nil:
		st.State = "ready"
		st.Items = catalog.Len()
		st.Hospital = catalog.Meta
	case loadErr != nil:
		st.State = "failed"
	default:
		st.State = "loading"
	}
	if loadErr != nil {
		st.Error = loadErr.Error()
	}
	return st
}

func (s *Session) emitLocked() Snapshot {
	s.version++

	pricingStatus := PricingStatus{
		Mode:      s.sel.Mode,
		PayerID:   s.sel.PayerID,
		PayerName: s.sel.PayerName,
		Label:     s.sel.Label(),
		Loading:   s.loading,
	}
	if s.payerErr != nil {
		pricingStatus.Error = s.payerErr.Error()
	}

	results := s.outcome.Results
	if results == nil {
		results = []search.Result{}
	}

	snap := Snapshot{
		SessionID:     s.id,
		Version:       s.version,
		Catalog:       s.catalogStatusLocked(),
		Query:         s.query,
		Prompt:        s.outcome.Prompt,
		Results:       results,
		Capped:        s.outcome.Capped,
		SearchPending: s.debouncer.Pending(),
		Pricing:       pricingStatus,
		Cart:          s.ledger.Totals(s.data.GetCatalog(), s.sel),
	}
	s.last = snap

	for _, l := range s.listeners {
		l(snap)
	}
	return snap
}
