// Package health reports whether the catalog is loaded and fresh.
package health

import (
	"math"
	"net/http"
	"time"

	"github.com/robbie-med/Sjprice/interfaces"
)

// NextUpdateFunc reports when the next scheduled reload runs.
type NextUpdateFunc func() time.Time

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	dataStore  interfaces.DataStore
	nextUpdate NextUpdateFunc
}

// NewHealthChecker creates a new health checker with injected dependencies.
// nextUpdate may be nil when no reload is scheduled.
func NewHealthChecker(dataStore interfaces.DataStore, nextUpdate NextUpdateFunc) interfaces.HealthChecker {
	return &HealthCheckerImpl{
		dataStore:  dataStore,
		nextUpdate: nextUpdate,
	}
}

// HealthCheck returns HTTP-specific health data
// Used by /health HTTP endpoint
func (h *HealthCheckerImpl) HealthCheck() (status string, data map[string]any, httpStatus int) {
	catalog := h.dataStore.GetCatalog()
	payers := h.dataStore.GetPayers()
	lastUpdate := h.dataStore.GetLastUpdated()
	isUpdating := h.dataStore.IsUpdating()
	loadErr := h.dataStore.GetLoadError()

	dataAge := time.Since(lastUpdate)

	switch {
	case catalog == nil || catalog.Len() == 0:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case dataAge > 48*time.Hour:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case loadErr != nil:
		// Serving the previous catalog after a failed reload
		status = "degraded"
		httpStatus = http.StatusOK

	case dataAge > 24*time.Hour:
		status = "degraded"
		httpStatus = http.StatusOK

	default:
		status = "healthy"
		httpStatus = http.StatusOK
	}

	data = map[string]any{
		"items":       catalog.Len(),
		"payers":      len(payers),
		"is_updating": isUpdating,
	}

	if !lastUpdate.IsZero() {
		data["last_update"] = lastUpdate.Format(time.RFC3339)
		data["data_age_hours"] = math.Round(dataAge.Hours()*10) / 10
	}

	if catalog != nil {
		data["hospital"] = catalog.Meta.HospitalName
		data["catalog_updated_on"] = catalog.Meta.LastUpdatedOn
	}

	if loadErr != nil {
		data["load_error"] = loadErr.Error()
	}

	if h.nextUpdate != nil {
		if next := h.nextUpdate(); !next.IsZero() {
			data["next_update"] = next.Format(time.RFC3339)
		}
	}

	if report := h.dataStore.GetDataQualityReport(); report != nil {
		data["quality"] = map[string]any{
			"invalid_items":        report.InvalidItems,
			"items_without_price":  report.ItemsWithoutPrice,
			"duplicate_item_keys":  report.DuplicateItemKeys,
			"drug_items":           report.DrugItems,
			"payers_without_rates": len(report.PayersWithoutRates),
		}
	}

	return status, data, httpStatus
}
