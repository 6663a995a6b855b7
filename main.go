package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/robbie-med/Sjprice/catalog"
	"github.com/robbie-med/Sjprice/config"
	"github.com/robbie-med/Sjprice/data"
	"github.com/robbie-med/Sjprice/handlers"
	"github.com/robbie-med/Sjprice/health"
	"github.com/robbie-med/Sjprice/logging"
	"github.com/robbie-med/Sjprice/persistence"
	"github.com/robbie-med/Sjprice/scheduler"
	"github.com/robbie-med/Sjprice/server"
	"github.com/robbie-med/Sjprice/session"
	"github.com/robbie-med/Sjprice/validation"
)

func main() {
	// Amounts are JSON numbers in API responses
	decimal.MarshalJSONWithoutQuotes = true

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load .env:", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	logging.InitLoggerWithOptions(logging.Options{
		Dir:            cfg.LogDir,
		Level:          cfg.LogLevel,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	})
	defer func() {
		if err := logging.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to close log file:", err)
		}
	}()

	dataContainer := data.NewDataContainer()
	dataContainer.SetServerStartTime(time.Now())

	var source *catalog.Source
	if cfg.UsesHTTPSource() {
		logging.Info("Loading resources over HTTP", "url", cfg.DataURL)
		source = catalog.NewHTTPSource(cfg.DataURL, nil)
	} else {
		logging.Info("Loading resources from directory", "dir", cfg.DataDir)
		source = catalog.NewDirSource(cfg.DataDir)
	}

	store := persistence.NewFileStore(cfg.StateFile, persistence.DefaultScope)

	sess := session.New(session.Options{
		Data:        dataContainer,
		Rates:       source,
		Store:       store,
		Debounce:    cfg.SearchDebounce,
		SearchLimit: cfg.SearchLimit,
	})
	defer sess.Close()

	sched := scheduler.NewScheduler(dataContainer, source, source, cfg.ReloadAt)
	sched.OnUpdate(func() { sess.Refresh() })

	healthChecker := health.NewHealthChecker(dataContainer, sched.NextUpdate)
	handler := handlers.NewHTTPHandler(sess, dataContainer, validation.NewDataValidator(), healthChecker, sched)
	srv := server.NewServer(cfg, handler)

	// Initial load runs in the background so /health answers while it does
	go func() {
		if err := sched.Start(); err != nil {
			logging.Error("Failed to start scheduler", "error", err)
		}
	}()

	// Channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	exitCode := 0
	select {
	case <-quit:
	case err := <-serverErr:
		logging.Error("Server failed to start", "error", err)
		exitCode = 1
	}

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		exitCode = 1
	}

	if exitCode != 0 {
		sess.Close()
		_ = logging.Close()
		os.Exit(exitCode)
	}
}
