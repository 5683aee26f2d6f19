package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appbilling "github.com/edusuite/backend/internal/application/billing"
	"github.com/edusuite/backend/internal/domain/billing"
	"github.com/edusuite/backend/internal/infrastructure/cache"
	"github.com/edusuite/backend/internal/infrastructure/config"
	"github.com/edusuite/backend/internal/infrastructure/logger"
	"github.com/edusuite/backend/internal/infrastructure/notification"
	"github.com/edusuite/backend/internal/infrastructure/persistence"
	"github.com/edusuite/backend/internal/infrastructure/scheduler"
	"github.com/edusuite/backend/internal/infrastructure/telemetry"
	"github.com/edusuite/backend/internal/interfaces/http/handler"
	"github.com/edusuite/backend/internal/interfaces/http/middleware"
	"github.com/edusuite/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log := logger.New(cfg.Log)
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting server",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()

	// Telemetry
	ctx := context.Background()
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shutdown meter provider", zap.Error(err))
		}
	}()

	meteringMetrics, err := telemetry.NewMeteringMetrics(meterProvider.Meter("edusuite.metering"))
	if err != nil {
		log.Fatal("Failed to create metering metrics", zap.Error(err))
	}

	// Repositories
	ledgerRepo := persistence.NewLedgerRepository(db.DB)
	orgRepo := persistence.NewOrganizationRepository(db.DB)

	var aggregateRepo billing.AggregateRepository = persistence.NewUsageAggregateRepository(db.DB)
	if redisClient, err := cache.NewRedisClient(cache.RedisConfig{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}); err != nil {
		// The cache is an optimization; the store remains authoritative.
		log.Warn("Redis unavailable, aggregate reads go straight to the database", zap.Error(err))
	} else {
		aggregateRepo = cache.NewCachedAggregateRepository(aggregateRepo, redisClient, 5*time.Minute)
		defer func() {
			_ = redisClient.Close()
		}()
	}

	// Billing configuration
	ownerID, err := cfg.Billing.OwnerID()
	if err != nil {
		log.Fatal("Invalid platform owner ID", zap.Error(err))
	}
	rates := billing.NewRateTableFromFloats(cfg.Billing.Rates, cfg.Billing.BaseServiceRate)

	// Application services
	notifier := notification.NewLogNotifier(log)

	ledgerService := appbilling.NewLedgerService(ledgerRepo, aggregateRepo, orgRepo, rates,
		appbilling.LedgerServiceConfig{
			PlatformOwnerID:   ownerID,
			CurrencyRate:      decimal.NewFromFloat(cfg.Billing.CurrencyRate),
			SelfBillBaseOps:   cfg.Billing.SelfBillBaseOps,
			SelfBillCreateOps: cfg.Billing.SelfBillCreateOps,
		}, log)

	allocatorService := appbilling.NewAllocatorService(ledgerRepo, aggregateRepo, rates, ownerID, log)
	gateService := appbilling.NewGateService(orgRepo, ledgerRepo, aggregateRepo, allocatorService, notifier, log)
	billingRunService := appbilling.NewBillingRunService(ledgerRepo, ownerID, log)

	// Usage tracker
	trackerConfig := middleware.DefaultTrackerConfig()
	trackerConfig.Enabled = cfg.Metering.Enabled
	trackerConfig.BufferSize = cfg.Metering.BufferSize
	trackerConfig.BatchSize = cfg.Metering.BatchSize
	trackerConfig.FlushInterval = cfg.Metering.FlushInterval
	trackerConfig.Logger = log
	trackerConfig.Metrics = meteringMetrics

	tracker := middleware.NewTracker(ledgerService, trackerConfig)
	tracker.Start()

	// Billing run scheduler
	runScheduler := scheduler.NewBillingRunScheduler(billingRunService, log, scheduler.BillingRunSchedulerConfig{
		Enabled:    cfg.Scheduler.Enabled,
		RunHourUTC: cfg.Scheduler.RunHourUTC,
		RunTimeout: 15 * time.Minute,
	})
	if err := runScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start billing run scheduler", zap.Error(err))
	}

	// HTTP server
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Failed to set trusted proxies", zap.Error(err))
		}
	}

	billingHandler := handler.NewBillingHandler(ledgerRepo, orgRepo, allocatorService, billingRunService, log)

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders

	router.Setup(engine, router.Dependencies{
		BillingHandler: billingHandler,
		Tracker:        tracker,
		Gate:           gateService,
		Metrics:        meteringMetrics,
		CORS:           corsConfig,
		Logger:         log,
	})

	server := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := runScheduler.Stop(shutdownCtx); err != nil {
		log.Error("Scheduler shutdown failed", zap.Error(err))
	}
	// Stop the tracker last so in-flight requests can still hand off deltas.
	if err := tracker.Stop(shutdownCtx); err != nil {
		log.Error("Usage tracker shutdown failed", zap.Error(err))
	}

	log.Info("Server stopped")
}
