package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"activation-platform/internal/config"
	"activation-platform/internal/infra/api"
	"activation-platform/internal/infra/api/apiv1"
	"activation-platform/internal/infra/logging"
	"activation-platform/internal/infra/metrics"
	red "activation-platform/internal/infra/redis"
	"activation-platform/internal/infra/sched"
)

func RunServeCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath, g.dev)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		log.Warn().Msg("developer mode enabled")
	}
	metrics.MustRegister()
	metrics.SetBuildInfo(Version, Commit)

	a, err := build(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.Close()

	var auth *api.AuthManager
	if cfg.Security.JWTSecret != "" {
		auth = api.NewAuthManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	}
	if cfg.Security.APIKey == "" && auth == nil {
		log.Warn().Msg("admin endpoints are unauthenticated")
	}

	trusted, err := cfg.HTTP.TrustedProxyPrefixes()
	if err != nil {
		return err
	}

	handler := api.NewRouter(api.RouterDeps{
		Codes: apiv1.NewHandler(a.uc, apiv1.Options{
			DefaultTTL:    cfg.Activation.DefaultTTL(),
			CleanupMaxAge: cfg.Activation.CleanupMaxAge,
		}, log),
		Gate:    api.NewAdminGate(cfg.Security.APIKey, auth, log),
		Limiter: a.limiter,
		Health:  a.health,
		CORS:    cfg.CORS,
		Timeout: cfg.HTTP.RequestTimeout,
		Logger:  log,

		TrustedProxies: trusted,
	})
	srv := api.NewServer(cfg.HTTP, handler, log)

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(srv.Start)
	grp.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown requested")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if cfg.Activation.CleanupInterval > 0 {
		var locker red.Locker
		if a.redis != nil {
			locker = red.NewLocker(a.redis)
		}
		w := sched.NewCleanupWorker(cfg.Activation.CleanupInterval, cfg.Activation.CleanupMaxAge, a.uc, locker, log)
		grp.Go(func() error {
			if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return grp.Wait()
}
