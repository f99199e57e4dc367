package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/atrium/pkg/api"
	"github.com/platinummonkey/atrium/pkg/audit"
	"github.com/platinummonkey/atrium/pkg/auth"
	"github.com/platinummonkey/atrium/pkg/billing"
	"github.com/platinummonkey/atrium/pkg/config"
	"github.com/platinummonkey/atrium/pkg/middleware"
	"github.com/platinummonkey/atrium/pkg/observability"
	"github.com/platinummonkey/atrium/pkg/rbac"
	"github.com/platinummonkey/atrium/pkg/sso"
	"github.com/platinummonkey/atrium/pkg/storage/postgres"
	"github.com/platinummonkey/atrium/pkg/usage"
	"github.com/platinummonkey/atrium/pkg/webhooks"
	"github.com/platinummonkey/atrium/pkg/workspaces"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	appLog := logrus.New()
	appLog.SetFormatter(&logrus.JSONFormatter{})

	ctx := context.Background()

	// Tracing and metrics export, optional.
	var otelProviders *observability.OTelProviders
	if cfg.Observability.OTelEnabled {
		otelProviders, err = observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			logger.WithError(err).Error("failed to initialize OpenTelemetry")
			os.Exit(1)
		}
	}

	// Database: primary plus optional read replicas.
	conns, err := postgres.NewConnectionManager(cfg.Database, appLog)
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	defer conns.Close()
	db := conns.Primary()

	if err := postgres.Migrate(ctx, db, appLog); err != nil {
		logger.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}
	conns.StartHealthCheckRoutine(ctx, 0)

	// Redis is optional: without it the workspace cache and distributed
	// rate limiter are skipped.
	var redisClient *postgres.RedisClient
	if cfg.Redis.URL != "" {
		redisClient, err = postgres.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.WithError(err).Error("failed to connect to redis")
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	// Role expansion, with optional hot-reloaded overrides.
	roles := rbac.NewRegistry(logger)
	if cfg.SSO.RolesFile != "" {
		if err := roles.Watch(cfg.SSO.RolesFile); err != nil {
			logger.WithError(err).WithField("path", cfg.SSO.RolesFile).Error("failed to load roles file")
			os.Exit(1)
		}
		defer roles.Close()
	}

	// Services.
	workspaceSvc := workspaces.NewPostgresService(db)
	keyStore := auth.NewAPIKeyStore(db)
	sessionMgr := sso.NewSessionManager(db, cfg.Sessions.TTL)
	keyResolver := sso.NewKeySessionResolver(db, keyStore)

	webhookStore := webhooks.NewStore(db)
	deliveryStore := webhooks.NewDeliveryStore(db)
	dispatcher := webhooks.NewDispatcher(webhookStore, deliveryStore, appLog)

	retryWorker := webhooks.NewRetryWorker(dispatcher, cfg.Webhooks.RetryInterval, appLog)
	retryCtx, stopRetries := context.WithCancel(ctx)
	go retryWorker.Start(retryCtx)
	defer stopRetries()

	// Audit sinks: database always (it backs the query API), a JSONL
	// mirror when configured.
	auditLog, auditStore, err := buildAuditLogger(cfg.Audit, db)
	if err != nil {
		logger.WithError(err).Error("failed to initialize audit logging")
		os.Exit(1)
	}
	defer auditLog.Close()

	var billingSvc billing.Service
	if cfg.Billing.Enabled {
		billingSvc = billing.NewPostgresService(db, workspaceSvc, cfg.Billing.WebhookSecret)
	}

	recorder := usage.NewRecorder(db, appLog)

	// Metrics.
	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
		dispatcher.SetMetrics(metrics)
	}

	gate := middleware.NewGate(sessionMgr, keyResolver, roles, logger)
	gate.SetCookieName(cfg.Sessions.CookieName)
	if metrics != nil {
		gate.SetMetrics(metrics)
	}

	ssoHandlers := sso.NewHandlers(db, cfg.Server.BaseURL, sessionMgr, logger)
	ssoHandlers.SetCookie(cfg.Sessions.CookieName, cfg.Sessions.CookieSecure)

	var rateLimiter func(http.Handler) http.Handler
	if redisClient != nil {
		rateLimiter = middleware.NewDistributedRateLimitMiddleware(redisClient.Client()).Handler
	} else {
		rateLimiter = middleware.NewRateLimitMiddleware().Handler
	}

	var cache api.WorkspaceCache
	if redisClient != nil {
		cache = postgres.NewWorkspaceCache(workspaceSvc, redisClient, appLog)
	}

	server := api.NewServer(api.Deps{
		Config:      cfg,
		Logger:      logger,
		Gate:        gate,
		Workspaces:  workspaceSvc,
		Webhooks:    webhookStore,
		Deliveries:  deliveryStore,
		Dispatcher:  dispatcher,
		APIKeys:     keyStore,
		Billing:     billingSvc,
		AuditStore:  auditStore,
		SSO:         ssoHandlers,
		Metrics:     metrics,
		AuditLog:    auditLog,
		Usage:       recorder,
		Cache:       cache,
		Sessions:    sessionMgr,
		RateLimiter: rateLimiter,
		Tracing:     cfg.Observability.OTelEnabled,
	})

	// Probes and metrics on a separate port so they stay reachable when
	// the API port is saturated.
	healthMux := http.NewServeMux()
	var rawRedis *redis.Client
	if redisClient != nil {
		rawRedis = redisClient.Client()
	}
	checker := observability.NewHealthChecker(db, rawRedis)
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthSrv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	httpSrv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpSrv, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		retryWorker.Stop()
		return healthSrv.Shutdown(ctx)
	})
	if otelProviders != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	go func() {
		logger.WithFields(map[string]interface{}{"addr": httpSrv.Addr, "health_addr": healthSrv.Addr}).Info("starting server")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown failed")
		os.Exit(1)
	}
}

// buildAuditLogger assembles the audit sink fan-out. The DB logger is
// always present; a file mirror joins it when configured.
func buildAuditLogger(cfg config.AuditConfig, db *sql.DB) (audit.Logger, audit.Store, error) {
	if !cfg.Enabled {
		return audit.NewMultiLogger(), nil, nil
	}

	dbLogger, err := audit.NewDBLogger(db)
	if err != nil {
		return nil, nil, err
	}
	store := audit.NewDBStore(dbLogger)

	if cfg.FilePath == "" {
		return dbLogger, store, nil
	}
	fileLogger, err := audit.NewFileLogger(audit.FileLoggerConfig{BasePath: cfg.FilePath, Rotate: true})
	if err != nil {
		return nil, nil, err
	}
	return audit.NewMultiLogger(dbLogger, fileLogger), store, nil
}
