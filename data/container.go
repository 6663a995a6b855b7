// Package data provides thread-safe storage for the loaded catalog, its search
// index and the payer directory. Everything is held behind atomic values so a
// reload swaps the whole data set without blocking readers.
package data

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/robbie-med/Sjprice/catalog/entities"
	"github.com/robbie-med/Sjprice/interfaces"
	"github.com/robbie-med/Sjprice/logging"
	"github.com/robbie-med/Sjprice/search"
)

// Compile-time check to ensure DataContainer implements DataStore
var _ interfaces.DataStore = (*DataContainer)(nil)

// ErrNotLoaded is returned by LoadState when no catalog has been stored yet.
var ErrNotLoaded = errors.New("catalog not loaded")

type loadErr struct{ err error }

// DataContainer holds all the data with atomic pointers for zero-downtime updates
type DataContainer struct {
	catalog         atomic.Pointer[entities.Catalog]
	index           atomic.Pointer[search.Index]
	payers          atomic.Value // []entities.Payer
	payersByID      atomic.Value // map[string]entities.Payer
	lastUpdated     atomic.Value // time.Time
	loadError       atomic.Pointer[loadErr]
	qualityReport   atomic.Pointer[interfaces.DataQualityReport]
	updating        atomic.Bool
	serverStartTime atomic.Value // time.Time
}

// NewDataContainer creates a new DataContainer with no catalog loaded
func NewDataContainer() *DataContainer {
	dc := &DataContainer{}
	dc.payers.Store(make([]entities.Payer, 0))
	dc.payersByID.Store(make(map[string]entities.Payer))
	dc.lastUpdated.Store(time.Time{})
	dc.serverStartTime.Store(time.Time{})
	return dc
}

// GetCatalog returns the loaded catalog, or nil before the first load.
func (dc *DataContainer) GetCatalog() *entities.Catalog {
	return dc.catalog.Load()
}

// GetSearchIndex returns the index built for the loaded catalog.
func (dc *DataContainer) GetSearchIndex() *search.Index {
	return dc.index.Load()
}

// GetPayers returns the payer directory
func (dc *DataContainer) GetPayers() []entities.Payer {
	if v := dc.payers.Load(); v != nil {
		if payers, ok := v.([]entities.Payer); ok {
			return payers
		}
	}

	logging.Warn("Payer directory is empty or invalid")
	return []entities.Payer{}
}

// FindPayer looks a payer up by its stable identifier
func (dc *DataContainer) FindPayer(id string) (entities.Payer, bool) {
	if v := dc.payersByID.Load(); v != nil {
		if byID, ok := v.(map[string]entities.Payer); ok {
			p, found := byID[id]
			return p, found
		}
	}
	return entities.Payer{}, false
}

// GetLastUpdated returns the timestamp of the last data update
func (dc *DataContainer) GetLastUpdated() time.Time {
	if v := dc.lastUpdated.Load(); v != nil {
		if lastUpdated, ok := v.(time.Time); ok {
			return lastUpdated
		}
	}

	logging.Warn("Could not get the last updated value")
	return time.Time{}
}

// GetLoadError returns the error of the most recent failed load. It is
// cleared by a successful UpdateData.
func (dc *DataContainer) GetLoadError() error {
	if le := dc.loadError.Load(); le != nil {
		return le.err
	}
	return nil
}

// SetLoadError records a failed load. The previous catalog, if any, stays.
func (dc *DataContainer) SetLoadError(err error) {
	if err == nil {
		dc.loadError.Store(nil)
		return
	}
	dc.loadError.Store(&loadErr{err: err})
}

// IsUpdating returns true if a data update is currently in progress
func (dc *DataContainer) IsUpdating() bool {
	return dc.updating.Load()
}

// IsLoaded reports whether a catalog is available.
func (dc *DataContainer) IsLoaded() bool {
	return dc.catalog.Load() != nil
}

// SetServerStartTime sets the server start time
func (dc *DataContainer) SetServerStartTime(startTime time.Time) {
	dc.serverStartTime.Store(startTime)
}

// GetServerStartTime returns the server start time
func (dc *DataContainer) GetServerStartTime() time.Time {
	if v := dc.serverStartTime.Load(); v != nil {
		if startTime, ok := v.(time.Time); ok {
			return startTime
		}
	}

	logging.Warn("Could not get the server start time value")
	return time.Time{}
}

// GetDataQualityReport returns the report computed for the loaded data, or
// nil when none was supplied.
func (dc *DataContainer) GetDataQualityReport() *interfaces.DataQualityReport {
	return dc.qualityReport.Load()
}

// UpdateData atomically replaces the catalog, its index and the payer
// directory. Payers with a duplicate identifier keep their first entry.
func (dc *DataContainer) UpdateData(catalog *entities.Catalog, payers []entities.Payer,
	report *interfaces.DataQualityReport) {
	if catalog == nil {
		catalog = &entities.Catalog{}
	}
	if payers == nil {
		payers = make([]entities.Payer, 0)
	}

	byID := make(map[string]entities.Payer, len(payers))
	for _, p := range payers {
		if _, dup := byID[p.ID]; dup {
			logging.Warn("Duplicate payer identifier", "id", p.ID, "name", p.DisplayName)
			continue
		}
		byID[p.ID] = p
	}
	index := search.NewIndex(catalog)

	// Index first so a reader holding the new catalog never sees a stale index
	dc.index.Store(index)
	dc.catalog.Store(catalog)
	dc.payers.Store(payers)
	dc.payersByID.Store(byID)
	dc.qualityReport.Store(report)
	dc.loadError.Store(nil)
	dc.lastUpdated.Store(time.Now())
}

// LoadState is the lifecycle of the catalog as seen by presentation.
type LoadState string

const (
	StateLoading LoadState = "loading"
	StateReady   LoadState = "ready"
	StateFailed  LoadState = "failed"
)

// State reports whether the catalog is loading, ready or failed. A failed
// reload after a successful load still reports ready.
func (dc *DataContainer) State() (LoadState, error) {
	if dc.IsLoaded() {
		return StateReady, nil
	}
	if err := dc.GetLoadError(); err != nil {
		return StateFailed, err
	}
	return StateLoading, ErrNotLoaded
}

// BeginUpdate marks the start of a data update operation
// Returns true if update can proceed, false if another update is in progress
func (dc *DataContainer) BeginUpdate() bool {
	return dc.updating.CompareAndSwap(false, true)
}

// EndUpdate marks the end of a data update operation
func (dc *DataContainer) EndUpdate() {
	dc.updating.Store(false)
}
