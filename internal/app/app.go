// Package app owns the process lifecycle: it wires the concrete dependencies
// from configuration and runs the feed ingestor, the scanner, and the
// optional archiver and metrics endpoint as one errgroup, shutting everything
// down together when the context is cancelled or any member fails.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/arb"
	"github.com/alanyoungcy/polyarb/internal/config"
	"github.com/alanyoungcy/polyarb/internal/exec"
	"github.com/alanyoungcy/polyarb/internal/feed"
	"github.com/alanyoungcy/polyarb/internal/metrics"
	"github.com/alanyoungcy/polyarb/internal/scanner"
)

// App is the root application object.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies, starts all goroutines, and blocks until the context
// is cancelled or one of them fails. The ingestor's reconnect loop means only
// the scanner's fail-loud termination or ctx cancellation normally end a run.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting scanner process",
		slog.String("log_level", a.cfg.LogLevel),
		slog.Int("markets", len(a.cfg.Markets)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	defer cleanup()

	ingestor := feed.New(feed.Config{
		URL:           a.cfg.Polymarket.WsURL,
		ReconnectBase: a.cfg.Feed.ReconnectBase.Duration,
		ReconnectMax:  a.cfg.Feed.ReconnectMax.Duration,
		QuoteTTL:      a.cfg.Redis.QuoteTTL.Duration,
	}, deps.Quotes, a.cfg.Markets, a.logger)

	scan := scanner.New(scanner.Config{
		Params: arb.Params{
			Threshold:        a.cfg.Scanner.Threshold,
			MinProfitPercent: a.cfg.Scanner.MinProfitPercent,
			MinLiquidityUSD:  a.cfg.Scanner.MinLiquidityUSD,
			MaxPositionUSD:   a.cfg.Scanner.MaxPositionUSD,
		},
		ScanInterval:   a.cfg.Scanner.ScanInterval.Duration,
		NotifyCooldown: a.cfg.Scanner.NotifyCooldown.Duration,
	}, deps.Quotes, deps.Stats, a.cfg.Markets, a.logger).
		WithAlerter(deps.Notifier)

	if deps.Journal != nil {
		scan.WithJournal(deps.Journal)
	}
	if a.cfg.Exec.Enabled {
		scan.WithExecutor(exec.NewPaperExecutor(exec.Config{
			FeeRate:         a.cfg.Exec.FeeRate,
			TargetVolumeUSD: a.cfg.Exec.TargetVolumeUSD,
		}, deps.Stats, a.logger))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer ingestor.Stop()
		return ingestor.Run(gctx)
	})

	g.Go(func() error {
		return scan.Run(gctx)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(gctx)
		})
	}

	if a.cfg.Metrics.Enabled {
		srv := metrics.Serve(a.cfg.Metrics.Addr, a.logger.With(slog.String("component", "metrics")))
		a.logger.Info("metrics endpoint started", slog.String("addr", a.cfg.Metrics.Addr))
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Warn("metrics shutdown failed", slog.String("error", err.Error()))
			}
			return gctx.Err()
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		a.logger.Info("shutdown complete")
		return nil
	}
	return err
}
