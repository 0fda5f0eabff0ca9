// Package scanner runs the detection loop: every interval it reads quote
// pairs for the watched markets, asks the calculator for opportunities, and
// pushes the survivors through the notification gate to alerting, the
// journal, and the execution hook.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polyarb/internal/arb"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/exec"
	"github.com/alanyoungcy/polyarb/internal/metrics"
)

// Alerter delivers opportunity and critical alerts. Delivery failures are
// logged and never affect the loop.
type Alerter interface {
	NotifyOpportunity(ctx context.Context, opp domain.Opportunity) error
	NotifyCritical(ctx context.Context, title, message string) error
}

// WatchSet is the mutable set of market IDs the loop scans. Snapshot returns
// a copy, so a cycle iterates a stable view while Add/Remove run concurrently.
type WatchSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewWatchSet creates a set from the initial market IDs.
func NewWatchSet(ids []string) *WatchSet {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return &WatchSet{ids: set}
}

// Add inserts a market ID. Adding an existing ID is a no-op.
func (w *WatchSet) Add(marketID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ids[marketID] = struct{}{}
}

// Remove deletes a market ID. Removing an absent ID is a no-op.
func (w *WatchSet) Remove(marketID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.ids, marketID)
}

// Snapshot returns the current IDs in unspecified order.
func (w *WatchSet) Snapshot() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.ids))
	for id := range w.ids {
		ids = append(ids, id)
	}
	return ids
}

// Config holds the loop's detection bounds and timing.
type Config struct {
	Params         arb.Params
	ScanInterval   time.Duration
	NotifyCooldown time.Duration
}

// Scanner is the detection loop. Per-market reads degrade to "no data this
// cycle" like the ingestor's per-message tolerance, but a panicking cycle is
// fail-loud: it terminates Run with an error instead of retrying, because a
// scanner silently skipping whole cycles would look exactly like a market
// with no opportunities.
type Scanner struct {
	cfg    Config
	quotes domain.QuoteStore
	stats  domain.StatsCache
	gate   *CooldownGate
	watch  *WatchSet
	logger *slog.Logger

	alerter  Alerter                 // optional
	journal  domain.OpportunityStore // optional
	executor exec.Executor           // optional

	newID func() string
	now   func() time.Time
}

// New creates a Scanner over the given collaborators. alerter, journal, and
// executor may each be nil, disabling that downstream path.
func New(cfg Config, quotes domain.QuoteStore, stats domain.StatsCache, markets []string, logger *slog.Logger) *Scanner {
	return &Scanner{
		cfg:    cfg,
		quotes: quotes,
		stats:  stats,
		gate:   NewCooldownGate(cfg.NotifyCooldown),
		watch:  NewWatchSet(markets),
		logger: logger.With(slog.String("component", "scanner")),
		newID:  func() string { return uuid.NewString() },
		now:    time.Now,
	}
}

// WithAlerter sets the alert sink.
func (s *Scanner) WithAlerter(a Alerter) *Scanner { s.alerter = a; return s }

// WithJournal sets the opportunity journal.
func (s *Scanner) WithJournal(j domain.OpportunityStore) *Scanner { s.journal = j; return s }

// WithExecutor sets the execution hook.
func (s *Scanner) WithExecutor(e exec.Executor) *Scanner { s.executor = e; return s }

// AddMarket starts scanning a market on the next cycle.
func (s *Scanner) AddMarket(marketID string) { s.watch.Add(marketID) }

// RemoveMarket stops scanning a market after the current cycle.
func (s *Scanner) RemoveMarket(marketID string) { s.watch.Remove(marketID) }

// Run executes scan cycles at the configured interval until ctx is cancelled
// or a cycle fails. The bot status and active market set are published to the
// stats cache on entry and the status flipped to stopped on the way out.
func (s *Scanner) Run(ctx context.Context) error {
	markets := s.watch.Snapshot()
	if err := s.stats.SetActiveMarkets(ctx, markets); err != nil {
		s.logger.Warn("active markets publish failed", slog.String("error", err.Error()))
	}
	for _, id := range markets {
		if err := s.stats.SetMarketStatus(ctx, id, "active"); err != nil {
			s.logger.Warn("market status publish failed", slog.String("error", err.Error()))
		}
	}
	if err := s.stats.SetBotStatus(ctx, "running"); err != nil {
		s.logger.Warn("bot status publish failed", slog.String("error", err.Error()))
	}
	defer func() {
		// ctx is typically already cancelled here.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.stats.SetBotStatus(shutdownCtx, "stopped"); err != nil {
			s.logger.Warn("bot status publish failed", slog.String("error", err.Error()))
		}
	}()

	s.logger.Info("scanner started",
		slog.Duration("interval", s.cfg.ScanInterval),
		slog.Int("markets", len(s.watch.Snapshot())),
	)

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scanner stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("scan cycle failed, terminating", slog.String("error", err.Error()))
				s.alertCritical(ctx, "Scanner terminated", err.Error())
				return err
			}
		}
	}
}

// runCycle performs one scan cycle, converting a panic anywhere in the cycle
// into an error so Run can terminate loudly.
func (s *Scanner) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scanner: cycle panic: %v", r)
		}
	}()

	for _, opp := range s.scanOnce(ctx) {
		s.handleOpportunity(ctx, opp)
	}
	return nil
}

// scanOnce evaluates every watched market and returns the opportunities
// sorted by profit percent descending. A market with a missing or expired
// quote pair is skipped silently; an unreachable store is the same "no data
// this cycle" outcome, logged and skipped, never fatal.
func (s *Scanner) scanOnce(ctx context.Context) []domain.Opportunity {
	metrics.ScanCycles.Inc()

	var found []domain.Opportunity
	for _, id := range s.watch.Snapshot() {
		pair, err := s.quotes.GetPair(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn("quote read failed",
				slog.String("market", id),
				slog.String("error", err.Error()),
			)
			continue
		}

		opp, ok := arb.Calculate(id, pair.Yes, pair.No, s.cfg.Params)
		if !ok {
			continue
		}
		opp.ID = s.newID()
		opp.DetectedAt = s.now()
		found = append(found, opp)
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].ProfitPercent > found[j].ProfitPercent
	})
	return found
}

// handleOpportunity counts the detection, then pushes the opportunity through
// the cooldown gate to the downstream sinks. Every sink is best-effort.
func (s *Scanner) handleOpportunity(ctx context.Context, opp domain.Opportunity) {
	metrics.OpportunitiesFound.Inc()
	if _, err := s.stats.IncrOpportunitiesFound(ctx); err != nil {
		s.logger.Warn("opportunity counter update failed", slog.String("error", err.Error()))
	}
	s.logger.Info("opportunity detected",
		slog.String("id", opp.ID),
		slog.String("market", opp.MarketID),
		slog.Float64("sum", opp.SumPrice),
		slog.Float64("profit_percent", opp.ProfitPercent),
		slog.Float64("max_volume_usd", opp.MaxVolumeUSD),
	)

	if !s.gate.ShouldNotify(opp.MarketID) {
		s.logger.Debug("opportunity suppressed by cooldown", slog.String("market", opp.MarketID))
		return
	}
	s.gate.Record(opp.MarketID)
	metrics.OpportunitiesNotified.Inc()

	if s.alerter != nil {
		if err := s.alerter.NotifyOpportunity(ctx, opp); err != nil {
			s.logger.Warn("opportunity alert failed", slog.String("error", err.Error()))
		}
	}
	if s.journal != nil {
		if err := s.journal.Insert(ctx, opp); err != nil {
			s.logger.Warn("opportunity journal failed", slog.String("error", err.Error()))
		}
	}
	if s.executor != nil {
		if _, err := s.executor.Execute(ctx, opp); err != nil {
			s.logger.Warn("execution failed", slog.String("error", err.Error()))
		}
	}
}

func (s *Scanner) alertCritical(ctx context.Context, title, message string) {
	if s.alerter == nil {
		return
	}
	alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.alerter.NotifyCritical(alertCtx, title, message); err != nil {
		s.logger.Warn("critical alert failed", slog.String("error", err.Error()))
	}
}
