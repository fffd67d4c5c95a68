package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"invoicecheck/internal/app"
	"invoicecheck/internal/config"
	"invoicecheck/internal/engine"
	"invoicecheck/internal/handler"
	"invoicecheck/internal/logger"
	"invoicecheck/internal/metrics"
	"invoicecheck/internal/router"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := app.OpenStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open rule-set store: %w", err)
	}
	defer func() { _ = store.Close() }()

	provider := app.NewProvider(&cfg.RuleSet, store)

	// Refuse to start with a broken active rule set.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rs, err := provider.Preload(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active rule set: %w", err)
	}
	log.Info().
		Str("source", cfg.RuleSet.Source).
		Str("rule_set", rs.Version).
		Str("digest", rs.Digest).
		Int("rules", len(rs.Rules)).
		Msg("rule set loaded")

	if cfg.RuleSet.Watch && cfg.RuleSet.Source == config.SourceDir {
		rlog := logger.Component(log, "ruleset")
		go func() {
			if err := provider.Watch(ctx, cfg.RuleSet.Dir, rlog); err != nil {
				rlog.Error().Err(err).Msg("rule-set watcher stopped")
			}
		}()
	}
	if cfg.RuleSet.RefreshSchedule != "" {
		sched, err := provider.ScheduleRefresh(cfg.RuleSet.RefreshSchedule, logger.Component(log, "ruleset"))
		if err != nil {
			return err
		}
		defer sched.Stop()
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	validator := engine.New(provider, app.EngineOptions(&cfg.Engine, logger.Component(log, "engine"), m)...)

	r := router.Setup(router.Deps{
		Log:            logger.Component(log, "http"),
		Metrics:        m,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Validate:       handler.NewValidateHandler(validator, cfg.Server.MaxUploadBytes()),
		RuleSets:       handler.NewRuleSetHandler(provider),
		Health:         handler.NewHealthHandler(provider, store.DB),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Port).Str("engine_version", engine.Version).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	return shutdown(srv, cfg.Server.ShutdownGrace, log)
}

func shutdown(srv *http.Server, grace time.Duration, log zerolog.Logger) error {
	log.Info().Dur("grace", grace).Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
