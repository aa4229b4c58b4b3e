package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/internal/auth"
	"github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/internal/config"
	"github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/internal/duel"
	"github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/internal/logging"
	"github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/internal/questionbank"
	"github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/internal/server"
	"github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/internal/xp"
	ws "github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/pkg/http/ws"
)

// App owns the process-level wiring: backends, the duel engine, and the
// HTTP server in front of it.
type App struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client

	registry   *duel.Registry
	service    *duel.Service
	httpServer *http.Server
}

// New builds the application from config. Postgres and Redis are optional;
// without them the server runs on the built-in question pool and discards
// XP.
func New(ctx context.Context, cfg *config.App) (*App, error) {
	logger := logging.New(cfg.Name, cfg.Env)

	var (
		pool *pgxpool.Pool
		bank questionbank.Provider
		err  error
	)
	if cfg.Postgres.Enabled() {
		pool, err = pgxpool.New(ctx, postgresDSN(cfg.Postgres))
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		bank = questionbank.NewPGBank(pool, logger)
		logger.Info().Str("host", cfg.Postgres.Host).Msg("postgres question store connected")
	} else {
		bank = questionbank.NewStaticBank(nil)
		logger.Info().Msg("postgres disabled, using built-in question pool")
	}

	var (
		redisClient *redis.Client
		awarder     xp.Awarder = xp.Nop{}
	)
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			if pool != nil {
				pool.Close()
			}
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		awarder = xp.NewRedisAwarder(redisClient, "", logger)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis xp sink connected")
	} else {
		logger.Info().Msg("redis disabled, xp awards discarded")
	}

	duelCfg := duelConfig(cfg.Duel)
	conns := ws.NewRegistry(logger)
	queue := duel.NewQueue(duelCfg.InviteTTL, logger)
	registry := duel.NewRegistry(duelCfg, logger)
	service := duel.NewService(duel.ServiceOptions{
		Registry:    registry,
		Queue:       queue,
		Connections: conns,
		Questions:   bank,
		Awarder:     awarder,
		Config:      duelCfg,
		Logger:      logger,
	})

	tokens := auth.NewManager(auth.TokenConfig{Secret: []byte(cfg.Security.JWTSecret)})
	handler := duel.NewHandler(service, conns, tokens, logger)

	httpServer := server.New(server.Options{
		Config:        cfg,
		Logger:        logger,
		Pool:          pool,
		Redis:         redisClient,
		Tokens:        tokens,
		DuelWSHandler: handler.HandleWebSocket,
	})

	return &App{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		redis:      redisClient,
		registry:   registry,
		service:    service,
		httpServer: httpServer,
	}, nil
}

// Run serves until the context is cancelled or a termination signal arrives,
// then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.registry.Sweep(ctx)
		return nil
	})

	g.Go(func() error {
		a.service.ExpireInvites(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn().Err(err).Msg("http shutdown error")
		}

		if a.pool != nil {
			a.pool.Close()
		}
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				a.logger.Warn().Err(err).Msg("redis close error")
			}
		}
		return nil
	})

	return g.Wait()
}

func postgresDSN(cfg config.Postgres) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode)
}

func duelConfig(cfg config.Duel) duel.Config {
	return duel.Config{
		QuestionCount:    cfg.QuestionCount,
		PointsPerCorrect: cfg.PointsPerCorrect,
		Countdown:        cfg.Countdown,
		RevealDelay:      cfg.RevealDelay,
		WaitingTimeout:   cfg.WaitingTimeout,
		DisconnectGrace:  cfg.DisconnectGrace,
		InviteTTL:        cfg.InviteTTL,
		StaleTimeout:     cfg.StaleTimeout,
		FinishedGrace:    cfg.FinishedGrace,
		SweepInterval:    cfg.SweepInterval,
		BotAccuracy:      cfg.BotAccuracy,
	}
}
