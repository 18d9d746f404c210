package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	appbilling "github.com/cloudmeter/backend/internal/application/billing"
	domainbilling "github.com/cloudmeter/backend/internal/domain/billing"
	"github.com/cloudmeter/backend/internal/infrastructure/account"
	"github.com/cloudmeter/backend/internal/infrastructure/cache"
	"github.com/cloudmeter/backend/internal/infrastructure/config"
	"github.com/cloudmeter/backend/internal/infrastructure/logger"
	"github.com/cloudmeter/backend/internal/infrastructure/persistence"
	"github.com/cloudmeter/backend/internal/infrastructure/proxy"
	"github.com/cloudmeter/backend/internal/infrastructure/telemetry"
	"github.com/cloudmeter/backend/internal/interfaces/http/handler"
	"github.com/cloudmeter/backend/internal/interfaces/http/middleware"
	"github.com/cloudmeter/backend/internal/interfaces/http/router"
)

const productCacheTTL = 5 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting billing gateway",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.Bool("billing_enabled", cfg.Billing.Enabled),
		zap.String("worker_mode", cfg.Worker.Mode),
	)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Database, with the GORM logger bridged to zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	store := persistence.NewStore(db.DB)
	if err := store.Migrate(); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Product catalog cache in front of the repository
	products := cache.NewProductCache(cfg.Redis, store.Products(), productCacheTTL, log)

	// Order lifecycle services
	stoppedFactor, err := decimal.NewFromString(cfg.Billing.StoppedPriceFactor)
	if err != nil {
		log.Fatal("Invalid stopped_price_factor", zap.Error(err))
	}
	lifecycleCfg := appbilling.LifecycleConfig{StoppedPriceFactor: stoppedFactor}
	ledger := appbilling.NewLedgerService(log)
	orders := appbilling.NewOrderService(store, ledger, domainbilling.DefaultProductItems(), products, lifecycleCfg, log)

	// Worker client: local calls the lifecycle in-process, remote ships
	// events to a worker deployment
	var worker appbilling.WorkerClient
	switch cfg.Worker.Mode {
	case "remote":
		worker = appbilling.NewRemoteWorkerClient(cfg.Worker.URL, cfg.Worker.Timeout, log)
	default:
		worker = appbilling.NewLocalWorkerClient(orders)
	}

	// Account-balance collaborator
	accounts := account.NewClient(account.Config{
		URL:      cfg.Account.URL,
		Timeout:  cfg.Account.Timeout,
		AuthURL:  cfg.Account.AuthURL,
		User:     cfg.Account.User,
		Password: cfg.Account.Password,
	}, log)

	// Reverse proxy to the backend API
	backend, err := proxy.NewBackend(cfg.Backend.URL, cfg.Backend.Timeout, log)
	if err != nil {
		log.Fatal("Failed to configure backend proxy", zap.Error(err))
	}

	// Metrics
	meterProvider, err := telemetry.SetupMeterProvider(cfg.App.Name)
	if err != nil {
		log.Fatal("Failed to set up metrics", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()
	metrics, err := telemetry.NewGatewayMetrics(otel.Meter("gateway"))
	if err != nil {
		log.Fatal("Failed to create gateway metrics", zap.Error(err))
	}

	// Enforcement gateway
	gateway, err := middleware.NewGateway(
		cfg.Billing,
		middleware.NewClassifier(middleware.DefaultRules()),
		accounts,
		worker,
		backend,
		metrics,
		log,
	)
	if err != nil {
		log.Fatal("Failed to configure enforcement gateway", zap.Error(err))
	}

	// HTTP surface: order-event intake for gateways in remote mode, then
	// enforcement plus reverse proxy as the catch-all
	engine := router.New(router.Config{
		Gateway: gateway,
		Backend: backend,
		Logger:  log,
		Registrars: []router.RouteRegistrar{
			handler.NewOrderEventHandler(orders, log),
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
