// Package app wires the control plane's dependencies and runs the HTTP
// server until ctx is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/blip0/control-plane/internal/config"
	"github.com/blip0/control-plane/internal/httpserver"
	"github.com/blip0/control-plane/internal/platform"
	"github.com/blip0/control-plane/internal/telemetry"
	"github.com/blip0/control-plane/pkg/audit"
	"github.com/blip0/control-plane/pkg/cache"
	"github.com/blip0/control-plane/pkg/changefeed"
	"github.com/blip0/control-plane/pkg/monitor"
	"github.com/blip0/control-plane/pkg/network"
	"github.com/blip0/control-plane/pkg/quota"
	"github.com/blip0/control-plane/pkg/tenant"
	"github.com/blip0/control-plane/pkg/trigger"
)

// Run is the application entry point: it connects to infrastructure, wires
// every domain package, and serves HTTP until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting control plane", "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := prometheus.NewRegistry()
	for _, c := range telemetry.All() {
		metricsReg.MustRegister(c)
	}

	cacheClient := cache.New(rdb, logger)
	publisher := changefeed.NewPublisher(cacheClient, logger)
	quotaEngine := quota.New(db, logger)

	tenantStore := tenant.NewStore(db, logger)

	networkStore := network.NewStore(db, cacheClient, logger)
	networkValidator := network.NewValidator(nil)
	networkService := network.NewService(networkStore, networkValidator, publisher, logger)

	triggerStore := trigger.NewStore(db, logger)
	triggerService := trigger.NewService(triggerStore, cacheClient, quotaEngine, publisher, logger)

	monitorStore := monitor.NewStore(db, logger)
	monitorService := monitor.NewService(monitorStore, cacheClient, quotaEngine, publisher, triggerStore, logger)

	blockStates := audit.NewBlockStateStore(db, logger)
	missedBlocks := audit.NewMissedBlockStore(db, logger)
	matches := audit.NewMatchStore(db, logger)
	executions := audit.NewExecutionStore(db, logger)
	auditService := audit.NewService(blockStates, missedBlocks, matches, executions, logger)

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg)

	monitorHandler := &monitor.Handler{Service: monitorService}
	triggerHandler := &trigger.Handler{Service: triggerService}
	auditHandler := &audit.Handler{Service: auditService}

	srv.TenantAPI.Group(func(r chi.Router) {
		r.Use(tenant.Middleware(tenantStore))

		monitorHandler.Routes(r)
		r.Route("/triggers", triggerHandler.Routes)
		r.Route("/audit", auditHandler.Routes)
	})

	tenantAdminHandler := &tenant.Handler{Store: tenantStore}
	networkAdminHandler := &network.Handler{Service: networkService, Store: networkStore}

	srv.AdminAPI.Route("/tenants", tenantAdminHandler.Routes)
	srv.AdminAPI.Route("/networks", networkAdminHandler.Routes)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
