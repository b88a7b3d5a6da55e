// cmd/activities-api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"mergington-activities/internal/api"
	"mergington-activities/internal/common/config"
	"mergington-activities/internal/common/logger"
	"mergington-activities/internal/common/observability"
	"mergington-activities/internal/notifier"
	"mergington-activities/internal/store"
	"mergington-activities/pkg/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
	})

	zapLog.Info("Starting activities API...",
		zap.String("environment", cfg.App.Environment),
		zap.String("address", cfg.Server.Address),
	)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("observability init failed, request metrics disabled", zap.Error(err))
	}

	ctx := context.Background()

	// --- Store ---
	st := store.Open(ctx, cfg.Store, log)
	defer st.Close()

	catalog, err := registry.LoadCatalog(cfg.Store.SeedFile)
	if err != nil {
		zapLog.Warn("seed catalog unusable, starting with no activities",
			zap.String("path", cfg.Store.SeedFile),
			zap.Error(err),
		)
		catalog = registry.Catalog{}
	}

	seeded, err := st.SeedIfEmpty(ctx, catalog.Activities())
	if err != nil {
		zapLog.Error("seeding failed", zap.String("backend", st.Backend()), zap.Error(err))
	} else if seeded {
		zapLog.Info("store seeded", zap.String("backend", st.Backend()), zap.Int("activities", len(catalog)))
	}

	// --- Notifier ---
	n, err := notifier.New(ctx, cfg.Notifications, log)
	if err != nil {
		zapLog.Warn("notifier init failed, notifications disabled", zap.Error(err))
		n = notifier.Noop{}
	}

	// --- HTTP server ---
	handler := api.NewHandler(st, n, log, obs, cfg.Server.StaticDir)
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      handler.Routes(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening",
			zap.String("address", cfg.Server.Address),
			zap.String("backend", st.Backend()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down observability", zap.Error(err))
	}

	zapLog.Info("Activities API stopped gracefully")
}
