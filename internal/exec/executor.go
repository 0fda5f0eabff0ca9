// Package exec is the execution hook behind the detection loop. The only
// shipped implementation trades on paper: it sizes both legs, assumes fills
// at the quoted prices, and books the reconciled result into the stats cache.
// Placing real orders is a different system and deliberately not here.
package exec

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyarb/internal/arb"
	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Result summarizes one simulated execution.
type Result struct {
	YesShares    float64
	NoShares     float64
	VolumeUSD    float64
	FeesUSD      float64
	NetProfitUSD float64
}

// Executor receives gate-approved opportunities from the detection loop.
type Executor interface {
	Execute(ctx context.Context, opp domain.Opportunity) (Result, error)
}

// Config holds the paper-trading parameters.
type Config struct {
	FeeRate         float64 // per leg, 0.002 = 0.2%
	TargetVolumeUSD float64
}

// PaperExecutor simulates fills at the detected ask prices and accumulates
// trade count and daily PnL in the stats cache.
type PaperExecutor struct {
	cfg    Config
	stats  domain.StatsCache
	logger *slog.Logger
	now    func() time.Time
}

var _ Executor = (*PaperExecutor)(nil)

// NewPaperExecutor creates a paper executor booking into stats.
func NewPaperExecutor(cfg Config, stats domain.StatsCache, logger *slog.Logger) *PaperExecutor {
	return &PaperExecutor{
		cfg:    cfg,
		stats:  stats,
		logger: logger.With(slog.String("component", "paper_executor")),
		now:    time.Now,
	}
}

// Execute sizes both legs for the configured target volume, assumes perfect
// fills, and books the net result. Stats writes are best-effort: a cache
// failure is logged and the result is still returned.
func (p *PaperExecutor) Execute(ctx context.Context, opp domain.Opportunity) (Result, error) {
	yesShares, noShares := arb.TradeSizes(opp, p.cfg.TargetVolumeUSD)
	// The negated comparison also rejects NaN sizes.
	if !(yesShares > 0) || !(noShares > 0) {
		return Result{}, fmt.Errorf("exec: opportunity %s has no tradable volume", opp.MarketID)
	}

	volume := yesShares*opp.YesPrice + noShares*opp.NoPrice
	net := arb.NetProfit(opp.YesPrice, opp.NoPrice, volume, p.cfg.FeeRate)
	res := Result{
		YesShares:    yesShares,
		NoShares:     noShares,
		VolumeUSD:    volume,
		FeesUSD:      arb.Fees(volume*2, p.cfg.FeeRate),
		NetProfitUSD: net,
	}

	date := p.now().UTC().Format("2006-01-02")
	if _, err := p.stats.IncrTradeCount(ctx, date); err != nil {
		p.logger.Warn("trade count update failed", slog.String("error", err.Error()))
	}
	if _, err := p.stats.AddDailyPnL(ctx, date, net); err != nil {
		p.logger.Warn("daily pnl update failed", slog.String("error", err.Error()))
	}

	p.logger.Info("paper trade executed",
		slog.String("market", opp.MarketID),
		slog.Float64("volume_usd", res.VolumeUSD),
		slog.Float64("net_profit_usd", res.NetProfitUSD),
	)
	return res, nil
}
