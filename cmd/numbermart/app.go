package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkiryanov/numbermart/internal/db"
	"github.com/nkiryanov/numbermart/internal/handlers"
	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/repository/postgres"
	"github.com/nkiryanov/numbermart/internal/service/auth"
	"github.com/nkiryanov/numbermart/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/numbermart/internal/service/balance"
	"github.com/nkiryanov/numbermart/internal/service/customer"
	"github.com/nkiryanov/numbermart/internal/service/order"
	"github.com/nkiryanov/numbermart/internal/service/payment"
	"github.com/nkiryanov/numbermart/internal/service/provider"
	"github.com/nkiryanov/numbermart/internal/service/ratelimit"
	"github.com/nkiryanov/numbermart/internal/service/reconcile"
	"github.com/nkiryanov/numbermart/internal/service/sweeper"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger    logger.Logger
	pool      *pgxpool.Pool
	sweeper   *sweeper.Sweeper
	scheduler *reconcile.Scheduler
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	app, err := newServerApp(c, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return app, nil
}

func newServerApp(c *Config, pool *pgxpool.Pool, logger logger.Logger) (*ServerApp, error) {
	storage := postgres.NewStorage(pool)

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey}, storage.Refresh())
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	authService, err := auth.NewService(auth.Config{}, tokenManager, storage.Customer())
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	mutator := balance.NewMutator(storage, logger)
	limiter := ratelimit.NewLimiter(storage, logger)
	registry := provider.NewRegistry(c.ProviderAddr, storage.Policy(), logger)
	orderService := order.NewService(storage, mutator, limiter, registry, logger)
	reconcileService := reconcile.NewService(storage, mutator, logger)
	sweep := sweeper.New(orderService, c.SweepInterval, c.SweepWorkers, logger)

	scheduler, err := reconcile.NewScheduler(c.ReconcileSchedule, reconcileService, logger)
	if err != nil {
		return nil, err
	}

	if c.WebhookSecret == "" {
		logger.Warn("Webhook secret is not set, payment and sms webhooks reject every call")
	}

	router := handlers.NewRouter(handlers.Services{
		Auth:          authService,
		Customers:     customer.NewService(storage, logger),
		Balance:       mutator,
		Orders:        orderService,
		Limits:        limiter,
		Reconcile:     reconcileService,
		Sweeper:       sweep,
		Payments:      payment.NewService(storage, mutator, logger),
		WebhookSecret: c.WebhookSecret,
	}, logger)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    router,
		logger:     logger,
		pool:       pool,
		sweeper:    sweep,
		scheduler:  scheduler,
	}, nil
}

// Run starts http server with background jobs and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.pool.Close()

	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	sweeperStopped := s.sweeper.Process(srvCtx)
	s.scheduler.Start()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.scheduler.Stop(timeoutCtx)
		<-sweeperStopped

		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
