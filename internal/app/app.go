package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seatline/seatline/internal/callctrl"
	"github.com/seatline/seatline/internal/config"
	"github.com/seatline/seatline/internal/dates"
	"github.com/seatline/seatline/internal/postgres"
	redisx "github.com/seatline/seatline/internal/redis"
	postgresrepo "github.com/seatline/seatline/internal/repository/postgres"
	redisrepo "github.com/seatline/seatline/internal/repository/redis"
	"github.com/seatline/seatline/internal/service"
	httpgin "github.com/seatline/seatline/internal/transport/http/gin"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	calls      *callctrl.Controller
	pubsub     *redisx.PubSub
	cache      *redisrepo.Cache
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redisx.New(context.Background(), redisx.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Initialize repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisx.NewPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, redisx.RateLimitPrefix(), 10, 1*time.Minute)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)

	// Call admission: lifecycle events fan out to Redis (for other
	// instances) and to the call-record log.
	callLogger := postgresrepo.NewCallLogger(store.Calls(), logger)
	calls := callctrl.New(callctrl.Config{
		MaxConcurrent:   cfg.Calls.MaxConcurrent,
		CleanupInterval: cfg.Calls.CleanupInterval,
		EndedRetention:  cfg.Calls.EndedRetention,
	}, callctrl.MultiNotifier{pubsub, callLogger}, logger)

	// Initialize services
	services := service.NewServices(store, cache, pubsub, limiter, dates.NewResolver(), service.Config{})

	// Initialize Gin router
	router := httpgin.NewRouter(services, calls, store.Calls(), idempotencyStore, logger)

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
		calls:  calls,
		pubsub: pubsub,
		cache:  cache,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	// Sweep stale calls in the background
	g.Go(func() error {
		return a.calls.Run(gCtx)
	})

	// Other instances' booking mutations invalidate our availability cache
	g.Go(func() error {
		err := a.pubsub.SubscribeReservationsChanged(gCtx, func(ctx context.Context, date string) {
			if err := a.cache.InvalidateDate(ctx, date); err != nil {
				a.logger.Warn("failed to invalidate availability cache", "date", date, "error", err)
			}
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	return g.Wait()
}
