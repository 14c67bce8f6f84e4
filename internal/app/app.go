package app

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"zoneadmin/internal/config"
	httpserver "zoneadmin/internal/http"
	"zoneadmin/internal/http/handlers"
	"zoneadmin/internal/http/middleware"
	"zoneadmin/internal/momo"
	"zoneadmin/internal/repository"
	"zoneadmin/internal/service"
	libdb "zoneadmin/libs/db"
	libredis "zoneadmin/libs/redis"
)

const tokenRefreshMargin = time.Minute

// App wires payment service dependencies.
type App struct {
	server *httpserver.Server
	db     *sql.DB
	logger *zap.Logger
}

// New constructs application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := libdb.NewPostgres(cfg.Database.DSN, libdb.PoolOptions{})
	if err != nil {
		return nil, err
	}

	momoClient := momo.NewClient(momo.Config{
		BaseURL:           cfg.Momo.BaseURL,
		APIUser:           cfg.Momo.APIUser,
		APIKey:            cfg.Momo.APIKey,
		SubscriptionKey:   cfg.Momo.SubscriptionKey,
		TargetEnvironment: cfg.Momo.TargetEnvironment,
		CallbackHost:      cfg.Momo.CallbackHost,
	}, nil)

	if cfg.Redis.Addr != "" {
		redisClient, err := libredis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
		momoClient.WithTokenSource(momo.NewRedisTokenCache(redisClient, momoClient.AccessToken, tokenRefreshMargin))
	} else {
		momoClient.WithTokenSource(momo.NewCachedTokenSource(momoClient.AccessToken, tokenRefreshMargin))
	}

	paymentsRepo := repository.NewPaymentsRepository(sqlDB)
	clientsRepo := repository.NewClientsRepository(sqlDB)
	paymentService := service.NewPaymentService(paymentsRepo, clientsRepo, momoClient, logger, service.Defaults{
		Currency:    cfg.Defaults.Currency,
		CountryCode: cfg.Defaults.CountryCode,
		Provider:    "momo",
	})

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Payments:      handlers.NewPaymentsHandler(paymentService, logger),
		HealthHandler: handlers.NewHealthHandler(),
	}, middleware.Auth(cfg.Auth.JWTSecret))

	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server: server,
		db:     sqlDB,
		logger: logger,
	}, nil
}

// Run starts HTTP server.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
