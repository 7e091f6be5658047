// internal/app/engine.go
package app

import (
	"context"
	"fmt"

	"crediario-service/internal/config"
	"crediario-service/internal/repository/sqlite"
	clientUsecase "crediario-service/internal/service/client"
	paymentUsecase "crediario-service/internal/service/payment"
	reportUsecase "crediario-service/internal/service/report"

	"go.uber.org/zap"
)

// Engine bundles the data layer and the services on top of it. It is
// the single entry point an embedding application holds on to.
type Engine struct {
	cfg    config.AppConfig
	logger *zap.Logger

	manager *sqlite.Manager
	store   *sqlite.Store

	Clients  *clientUsecase.Service
	Payments *paymentUsecase.Service
	Reports  *reportUsecase.Service
	Routes   *sqlite.RouteRepository
	Logs     *sqlite.LogRepository
}

func New(cfg config.AppConfig, logger *zap.Logger) *Engine {
	manager := sqlite.NewManager(cfg, logger)
	store := sqlite.NewStore(manager, cfg, logger)

	// ----- Repositories -----
	clientRepo := sqlite.NewClientRepository(store)
	paymentRepo := sqlite.NewPaymentRepository(store)
	logRepo := sqlite.NewLogRepository(store)
	routeRepo := sqlite.NewRouteRepository(store)
	cacheRepo := sqlite.NewCacheRepository(store)

	// ----- Services -----
	clientService := clientUsecase.NewService(store, clientRepo, logRepo, logger)
	paymentService := paymentUsecase.NewService(store, clientRepo, paymentRepo, logRepo, logger)
	reportService := reportUsecase.NewService(
		store,
		cacheRepo,
		clientRepo,
		paymentRepo,
		logRepo,
		routeRepo,
		cfg.AggregateTTL,
		cfg.TodayTTL,
		logger,
	)

	// Money-mutating paths invalidate the aggregate caches.
	clientService.SetInvalidator(reportService)
	paymentService.SetInvalidator(reportService)

	return &Engine{
		cfg:      cfg,
		logger:   logger,
		manager:  manager,
		store:    store,
		Clients:  clientService,
		Payments: paymentService,
		Reports:  reportService,
		Routes:   routeRepo,
		Logs:     logRepo,
	}
}

// Init opens the database and brings the schema to the current version.
// Safe to call more than once.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.store.Initialize(ctx); err != nil {
		return fmt.Errorf("engine init: %w", err)
	}
	e.logger.Info("engine ready",
		zap.String("db_path", e.cfg.DBPath),
		zap.Int64("schema_version", e.manager.EngineSchemaVersion()))
	return nil
}

// Store exposes the query layer for ad hoc reads.
func (e *Engine) Store() *sqlite.Store { return e.store }

// HealthCheck probes the connection, reopening it once on failure.
func (e *Engine) HealthCheck(ctx context.Context) error {
	return e.manager.Healthy(ctx)
}

// Shutdown closes the database handle.
func (e *Engine) Shutdown() error {
	e.logger.Info("engine shutting down")
	return e.manager.Close()
}
