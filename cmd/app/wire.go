package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"activation-platform/internal/config"
	"activation-platform/internal/domain/ports/adapter"
	"activation-platform/internal/domain/ports/repository"
	"activation-platform/internal/infra/cache"
	"activation-platform/internal/infra/db/fallback"
	pg "activation-platform/internal/infra/db/postgres"
	"activation-platform/internal/infra/db/sqlite"
	"activation-platform/internal/infra/ratelimit"
	red "activation-platform/internal/infra/redis"
	"activation-platform/internal/usecase"
)

// app holds the wired components and their release functions.
type app struct {
	cfg     *config.Config
	log     *zerolog.Logger
	repo    repository.ActivationCodeRepository
	uc      usecase.ActivationCodeUseCase
	redis   *red.Client // nil unless a redis backend is configured
	limiter adapter.RateLimiter
	health  func(ctx context.Context) error

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Cache.Backend == "redis" || cfg.RateLimit.Backend == "redis" ||
		(cfg.Redis.URL != "" && cfg.Activation.CleanupInterval > 0)
}

// build opens storage and derives every component from cfg. With
// withLimiter false the rate limiter is not created (CLI commands).
func build(ctx context.Context, cfg *config.Config, log *zerolog.Logger, withLimiter bool) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	if needsRedis(cfg) {
		rc, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = rc
		a.closers = append(a.closers, func() { _ = rc.Close() })
	}

	if err := a.wrapCache(); err != nil {
		return nil, err
	}

	a.uc = usecase.NewActivationCodeUseCase(a.repo, usecase.ActivationCodeOptions{
		CleanupOnCreate: cfg.Activation.CleanupOnCreate,
		CleanupMaxAge:   cfg.Activation.CleanupMaxAge,
		Dev:             cfg.Runtime.Dev,
	}, log)

	if withLimiter {
		switch cfg.RateLimit.Backend {
		case "redis":
			a.limiter = red.NewRateLimiter(a.redis, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		default:
			ml := ratelimit.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Burst)
			a.limiter = ml
			a.closers = append(a.closers, ml.Stop)
		}
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	cfg := a.cfg.Database
	switch cfg.Driver {
	case "postgres":
		if err := pg.RunMigrations(cfg.URL, "up"); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		a.repo = pg.NewActivationCodeRepo(pool)
		a.health = pool.Ping

		statsCtx, stop := context.WithCancel(context.Background())
		go pg.ReportPoolStats(statsCtx, pool, 15*time.Second, a.log)
		a.closers = append(a.closers, stop)

		if cfg.FallbackSQLitePath != "" {
			sdb, err := sqlite.Open(ctx, cfg.FallbackSQLitePath, a.log)
			if err != nil {
				return fmt.Errorf("fallback sqlite: %w", err)
			}
			a.closers = append(a.closers, func() { _ = sdb.Close() })
			a.repo = fallback.New(a.repo, sqlite.NewActivationCodeRepo(sdb.Conn()), a.log)
			a.log.Info().Str("path", cfg.FallbackSQLitePath).Msg("sqlite fallback store enabled")
		}
	case "sqlite":
		sdb, err := sqlite.Open(ctx, cfg.SQLitePath, a.log)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = sdb.Close() })
		a.repo = sqlite.NewActivationCodeRepo(sdb.Conn())
		a.health = sdb.Ping
	default:
		return errors.New("unsupported database driver " + cfg.Driver)
	}
	a.log.Info().Str("driver", cfg.Driver).Msg("activation code store ready")
	return nil
}

func (a *app) wrapCache() error {
	var store cache.Store
	switch a.cfg.Cache.Backend {
	case "memory":
		rs, err := cache.NewRistrettoStore(0)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rs.Close)
		store = rs
	case "redis":
		store = red.NewCacheStore(a.redis)
	default:
		return nil
	}
	a.repo = cache.NewActivationCodeCache(a.repo, store, a.cfg.Cache.TTL, a.log)
	a.log.Info().Str("backend", store.Name()).Dur("ttl", a.cfg.Cache.TTL).Msg("activation code cache enabled")
	return nil
}
