package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/polyarb/internal/arb"
	"github.com/alanyoungcy/polyarb/internal/domain"
)

func testParams() arb.Params {
	return arb.Params{
		Threshold:        0.998,
		MinProfitPercent: 0.2,
		MinLiquidityUSD:  50,
		MaxPositionUSD:   1000,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

// fakeQuotes serves canned quote pairs and can fail on demand.
type fakeQuotes struct {
	mu    sync.Mutex
	pairs map[string]domain.QuotePair
	err   error
	reads int
}

func newFakeQuotes() *fakeQuotes {
	return &fakeQuotes{pairs: make(map[string]domain.QuotePair)}
}

func (f *fakeQuotes) set(marketID string, yesPrice, yesSize, noPrice, noSize float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pairs[marketID] = domain.QuotePair{
		MarketID: marketID,
		Yes:      domain.Quote{Price: yesPrice, Size: yesSize},
		No:       domain.Quote{Price: noPrice, Size: noSize},
	}
}

func (f *fakeQuotes) PutQuote(context.Context, string, domain.Side, domain.Quote, time.Duration) error {
	return nil
}

func (f *fakeQuotes) GetQuote(context.Context, string, domain.Side) (domain.Quote, error) {
	return domain.Quote{}, domain.ErrNotFound
}

func (f *fakeQuotes) GetPair(_ context.Context, marketID string) (domain.QuotePair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil {
		return domain.QuotePair{}, f.err
	}
	p, ok := f.pairs[marketID]
	if !ok {
		return domain.QuotePair{}, domain.ErrNotFound
	}
	return p, nil
}

// fakeStats records status writes and counter bumps.
type fakeStats struct {
	mu            sync.Mutex
	statuses      []string
	opportunities int64
	trades        int64
	pnl           map[string]float64
	activeMarkets []string
}

func newFakeStats() *fakeStats {
	return &fakeStats{pnl: make(map[string]float64)}
}

func (f *fakeStats) SetMarketStatus(context.Context, string, string) error { return nil }
func (f *fakeStats) GetMarketStatus(context.Context, string) (string, error) {
	return "", domain.ErrNotFound
}

func (f *fakeStats) IncrOpportunitiesFound(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opportunities++
	return f.opportunities, nil
}

func (f *fakeStats) IncrTradeCount(context.Context, string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades++
	return f.trades, nil
}

func (f *fakeStats) AddDailyPnL(_ context.Context, date string, delta float64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pnl[date] += delta
	return f.pnl[date], nil
}

func (f *fakeStats) GetDailyPnL(_ context.Context, date string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pnl[date], nil
}

func (f *fakeStats) SetActiveMarkets(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeMarkets = append([]string(nil), ids...)
	return nil
}

func (f *fakeStats) SetBotStatus(_ context.Context, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

// fakeAlerter records alerted opportunities.
type fakeAlerter struct {
	mu       sync.Mutex
	opps     []domain.Opportunity
	critical []string
}

func (f *fakeAlerter) NotifyOpportunity(_ context.Context, opp domain.Opportunity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opps = append(f.opps, opp)
	return nil
}

func (f *fakeAlerter) NotifyCritical(_ context.Context, title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.critical = append(f.critical, title)
	return nil
}

func newTestScanner(quotes *fakeQuotes, stats *fakeStats, markets ...string) *Scanner {
	s := New(Config{
		Params:         testParams(),
		ScanInterval:   time.Millisecond,
		NotifyCooldown: time.Minute,
	}, quotes, stats, markets, discardLogger())
	n := 0
	s.newID = func() string { n++; return fmt.Sprintf("opp-%d", n) }
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestGateCooldown(t *testing.T) {
	g := NewCooldownGate(60 * time.Second)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return clock }

	if !g.ShouldNotify("m1") {
		t.Fatal("fresh market should be allowed")
	}

	// ShouldNotify alone must not start a cooldown.
	if !g.ShouldNotify("m1") {
		t.Fatal("ShouldNotify must not record")
	}

	g.Record("m1")
	if g.ShouldNotify("m1") {
		t.Fatal("market inside cooldown should be suppressed")
	}
	if !g.ShouldNotify("m2") {
		t.Fatal("cooldown must be per market")
	}

	clock = clock.Add(60 * time.Second)
	if g.ShouldNotify("m1") {
		t.Fatal("exactly at the window boundary is still suppressed")
	}

	clock = clock.Add(time.Nanosecond)
	if !g.ShouldNotify("m1") {
		t.Fatal("past the window the market should be allowed again")
	}
}

func TestScanOnceSortsByProfit(t *testing.T) {
	quotes := newFakeQuotes()
	quotes.set("small", 0.50, 100, 0.47, 100) // sum 0.97
	quotes.set("big", 0.48, 100, 0.47, 100)   // sum 0.95, most profitable
	quotes.set("mid", 0.49, 100, 0.47, 100)   // sum 0.96
	quotes.set("none", 0.60, 100, 0.50, 100)  // sum 1.10, no opportunity

	s := newTestScanner(quotes, newFakeStats(), "small", "big", "mid", "none", "missing")

	found := s.scanOnce(context.Background())
	if len(found) != 3 {
		t.Fatalf("found %d opportunities, want 3", len(found))
	}
	order := []string{found[0].MarketID, found[1].MarketID, found[2].MarketID}
	if order[0] != "big" || order[1] != "mid" || order[2] != "small" {
		t.Fatalf("sort order = %v, want [big mid small]", order)
	}
	for _, opp := range found {
		if opp.ID == "" || opp.DetectedAt.IsZero() {
			t.Fatalf("opportunity %s missing emission stamps: %+v", opp.MarketID, opp)
		}
	}
}

func TestScanOnceSkipsUnreachableStore(t *testing.T) {
	quotes := newFakeQuotes()
	quotes.err = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

	s := newTestScanner(quotes, newFakeStats(), "m1")
	if found := s.scanOnce(context.Background()); len(found) != 0 {
		t.Fatalf("unreachable store produced %d opportunities", len(found))
	}

	// Once the store is back the same scanner keeps working.
	quotes.mu.Lock()
	quotes.err = nil
	quotes.mu.Unlock()
	quotes.set("m1", 0.48, 100, 0.50, 100)

	if found := s.scanOnce(context.Background()); len(found) != 1 {
		t.Fatalf("scanner did not recover after store outage, found %d", len(found))
	}
}

func TestRunSurvivesStoreOutage(t *testing.T) {
	quotes := newFakeQuotes()
	quotes.err = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

	s := newTestScanner(quotes, newFakeStats(), "m1")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	// The loop must keep cycling against a dead store, not terminate.
	waitForReads := func(n int) {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			quotes.mu.Lock()
			reads := quotes.reads
			quotes.mu.Unlock()
			if reads >= n {
				return
			}
			select {
			case err := <-errCh:
				t.Fatalf("Run terminated on a transient store error: %v", err)
			case <-time.After(time.Millisecond):
			}
		}
		t.Fatalf("scanner stopped cycling during store outage")
	}
	waitForReads(3)

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHandleOpportunityGatesDownstream(t *testing.T) {
	quotes := newFakeQuotes()
	stats := newFakeStats()
	alerter := &fakeAlerter{}
	s := newTestScanner(quotes, stats, "m1").WithAlerter(alerter)

	opp := domain.Opportunity{ID: "opp-1", MarketID: "m1", ProfitPercent: 2.0}
	ctx := context.Background()

	s.handleOpportunity(ctx, opp)
	s.handleOpportunity(ctx, opp) // inside cooldown

	if got := len(alerter.opps); got != 1 {
		t.Fatalf("alerted %d times, want 1 (cooldown)", got)
	}
	if stats.opportunities != 2 {
		t.Fatalf("found counter = %d, want 2 (counting is not gated)", stats.opportunities)
	}
}

func TestRunCycleRecoversPanic(t *testing.T) {
	quotes := newFakeQuotes()
	s := newTestScanner(quotes, newFakeStats(), "m1")
	s.newID = func() string { panic("boom") }
	quotes.set("m1", 0.48, 100, 0.50, 100)

	err := s.runCycle(context.Background())
	if err == nil {
		t.Fatal("panicking cycle did not surface an error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("panic value lost: %v", err)
	}
}

func TestRunPublishesBotStatus(t *testing.T) {
	quotes := newFakeQuotes()
	stats := newFakeStats()
	s := newTestScanner(quotes, stats, "m1")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		stats.mu.Lock()
		started := len(stats.statuses) > 0 && stats.statuses[0] == "running"
		stats.mu.Unlock()
		if started {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("scanner never published running status")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	stats.mu.Lock()
	defer stats.mu.Unlock()
	if got := stats.statuses[len(stats.statuses)-1]; got != "stopped" {
		t.Fatalf("final bot status = %q, want stopped", got)
	}
	if len(stats.activeMarkets) != 1 || stats.activeMarkets[0] != "m1" {
		t.Fatalf("active markets = %v, want [m1]", stats.activeMarkets)
	}
}
