// Package scheduler loads the catalog and payer directory at startup and
// reloads them on a gocron schedule or on demand.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/robbie-med/Sjprice/catalog"
	"github.com/robbie-med/Sjprice/catalog/entities"
	"github.com/robbie-med/Sjprice/interfaces"
	"github.com/robbie-med/Sjprice/logging"
	"github.com/robbie-med/Sjprice/metrics"
	"github.com/robbie-med/Sjprice/validation"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

// ErrUpdateInProgress is returned by Reload while another load runs.
var ErrUpdateInProgress = errors.New("update already in progress")

// Scheduler handles data loads and health monitoring using dependency injection
type Scheduler struct {
	dataStore interfaces.DataStore
	catalogs  interfaces.CatalogSource
	payers    interfaces.PayerDirectory
	validator interfaces.DataValidator
	scheduler *gocron.Scheduler
	job       *gocron.Job
	at        string
	timeout   time.Duration

	mu        sync.Mutex
	listeners []func()
	stop      chan struct{}
}

// NewScheduler creates a new scheduler instance with injected dependencies.
// at is a gocron At() spec such as "06:00;18:00"; empty disables the
// periodic reload.
func NewScheduler(dataStore interfaces.DataStore, catalogs interfaces.CatalogSource,
	payers interfaces.PayerDirectory, at string) *Scheduler {
	return &Scheduler{
		dataStore: dataStore,
		catalogs:  catalogs,
		payers:    payers,
		validator: validation.NewDataValidator(),
		scheduler: gocron.NewScheduler(time.Local),
		at:        at,
		timeout:   10 * time.Minute,
		stop:      make(chan struct{}),
	}
}

// OnUpdate registers fn to run after every load attempt, successful or not.
func (s *Scheduler) OnUpdate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Start performs the initial load and schedules periodic reloads. A failed
// initial load is recorded on the data store rather than returned; the
// service keeps running and reports the failure.
func (s *Scheduler) Start() error {
	if err := s.updateData(); err != nil {
		logging.Error("Failed to perform initial data load", "error", err)
	}

	if s.at != "" {
		job, err := s.scheduler.Every(1).Days().At(s.at).Do(func() {
			if err := s.updateData(); err != nil {
				logging.Error("Failed to update data", "error", err)
			}
		})
		if err != nil {
			logging.Error("Failed to schedule updates", "error", err)
			return fmt.Errorf("failed to schedule updates: %w", err)
		}
		s.job = job
		s.scheduler.StartAsync()
	}

	s.startHealthMonitoring()

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

// Reload runs a load now. It returns ErrUpdateInProgress when a load is
// already running.
func (s *Scheduler) Reload() error {
	return s.updateData()
}

// NextUpdate returns the next scheduled reload, or the zero time when none
// is scheduled.
func (s *Scheduler) NextUpdate() time.Time {
	if s.job == nil {
		return time.Time{}
	}
	return s.job.NextRun()
}

// updateData performs a complete data load using injected dependencies
func (s *Scheduler) updateData() error {
	// Prevent concurrent updates
	if !s.dataStore.BeginUpdate() {
		logging.Info("Update already in progress, skipping...")
		return ErrUpdateInProgress
	}
	defer s.notify()
	defer s.dataStore.EndUpdate()

	logging.Info("Starting catalog load", "at", time.Now().Format(time.RFC3339))
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	newCatalog, err := s.catalogs.FetchCatalog(ctx)
	if err != nil {
		return s.fail(err)
	}

	newPayers, err := s.payers.FetchPayers(ctx)
	switch {
	case catalog.IsNotFound(err):
		// A hospital may publish no negotiated rates at all
		logging.Warn("No payer directory published", "error", err)
		newPayers = []entities.Payer{}
	case err != nil:
		return s.fail(err)
	}

	report := s.validator.ReportDataQuality(newCatalog, newPayers)
	logReport(report)

	// Atomic update using injected data store (including report)
	s.dataStore.UpdateData(newCatalog, newPayers, report)

	metrics.CatalogLoads.WithLabelValues("ok").Inc()
	metrics.CatalogItems.Set(float64(newCatalog.Len()))
	metrics.PayersTotal.Set(float64(len(newPayers)))

	logging.Info("Catalog load completed",
		"duration", time.Since(start).String(),
		"item_count", newCatalog.Len(),
		"payer_count", len(newPayers),
		"hospital", newCatalog.Meta.HospitalName,
	)

	return nil
}

func (s *Scheduler) fail(err error) error {
	metrics.CatalogLoads.WithLabelValues("error").Inc()
	s.dataStore.SetLoadError(err)
	return fmt.Errorf("catalog load failed: %w", err)
}

func (s *Scheduler) notify() {
	s.mu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

func logReport(report *interfaces.DataQualityReport) {
	if report.InvalidItems > 0 {
		logging.Warn("Invalid catalog items",
			"count", report.InvalidItems,
			"first_indexes", report.InvalidItemIndexes,
		)
	}

	if report.ItemsWithoutPrice > 0 {
		logging.Info("Items without gross or cash price", "count", report.ItemsWithoutPrice)
	}

	if report.DuplicateItemKeys > 0 {
		logging.Warn("Duplicate description/code pairs", "count", report.DuplicateItemKeys)
	}

	if len(report.DuplicatePayerIDs) > 0 {
		logging.Warn("Duplicate payer identifiers", "ids", report.DuplicatePayerIDs)
	}

	if len(report.PayersWithoutRates) > 0 {
		logging.Warn("Payers without rates", "ids", report.PayersWithoutRates)
	}
}

// startHealthMonitoring monitors the health of the data updates
func (s *Scheduler) startHealthMonitoring() {
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				lastUpdate := s.dataStore.GetLastUpdated()
				if time.Since(lastUpdate) > 25*time.Hour {
					logging.Warn("Catalog hasn't been reloaded in over 25 hours")
				}
			}
		}
	}()
}
