// Package interfaces defines the narrow contracts between the pricing core
// and its collaborators: data sources, persistence, scheduling and health.
package interfaces

import (
	"context"
	"time"

	"github.com/robbie-med/Sjprice/catalog/entities"
	"github.com/robbie-med/Sjprice/pricing"
	"github.com/robbie-med/Sjprice/search"
)

// CatalogSource delivers the full ordered item sequence.
type CatalogSource interface {
	FetchCatalog(ctx context.Context) (*entities.Catalog, error)
}

// PayerDirectory delivers the list of payers with negotiated rate tables.
type PayerDirectory interface {
	FetchPayers(ctx context.Context) ([]entities.Payer, error)
}

// PayerRateSource delivers the sparse rate table a payer's data locator
// points to.
type PayerRateSource interface {
	FetchRates(ctx context.Context, locator string) (*pricing.RateTable, error)
}

// PersistenceStore is a scoped key-value store. Implementations must treat a
// missing key as (nil, false, nil).
type PersistenceStore interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
}

// DataStore holds the loaded catalog and payer directory. Both are replaced
// wholesale, never patched.
type DataStore interface {
	GetCatalog() *entities.Catalog
	GetSearchIndex() *search.Index
	GetPayers() []entities.Payer
	FindPayer(id string) (entities.Payer, bool)
	GetLastUpdated() time.Time
	GetLoadError() error
	GetDataQualityReport() *DataQualityReport
	IsUpdating() bool

	UpdateData(catalog *entities.Catalog, payers []entities.Payer, report *DataQualityReport)
	SetLoadError(err error)
	BeginUpdate() bool
	EndUpdate()
}

// Scheduler manages the periodic catalog reload.
type Scheduler interface {
	Start() error
	Stop()
	Reload() error
	NextUpdate() time.Time
}

// HealthChecker reports service health.
type HealthChecker interface {
	HealthCheck() (status string, details map[string]any, httpStatus int)
}

// DataValidator checks loaded resources for quality problems.
type DataValidator interface {
	ValidateItem(item *entities.Item) error
	ValidateQuery(input string) error
	ReportDataQuality(catalog *entities.Catalog, payers []entities.Payer) *DataQualityReport
	ReportRateTable(payerID string, table *pricing.RateTable, catalogSize int) *RateTableReport
}

// DataQualityReport summarizes catalog problems found after a load.
type DataQualityReport struct {
	InvalidItems       int
	InvalidItemIndexes []int
	ItemsWithoutPrice  int
	DuplicateItemKeys  int
	DrugItems          int
	PayersWithoutRates []string
	DuplicatePayerIDs  []string
}

// RateTableReport summarizes problems with one payer's rate table.
type RateTableReport struct {
	PayerID           string
	Rates             int
	OutOfRangeIndexes []int
	NegativeRates     int
}
