package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Retention windows for the counter and pnl keys. Market status has no fixed
// window; it tracks the configured quote TTL at 10x the quote lifetime.
const (
	statusTTLFactor = 10
	tradeCountTTL   = 2 * 24 * time.Hour
	dailyPnLTTL     = 7 * 24 * time.Hour
)

// StatsCache holds operational counters and status keys on the same Redis
// instance as the quote store.
//
// Key schema:
//
//	market:status:{marketID}    - status string, TTL 10x quote TTL
//	trades:count:{date}         - counter, TTL 2 days
//	pnl:daily:{date}            - float, TTL 7 days
//	stats:opportunities_found   - counter, no TTL
//	markets:active              - set of watched market IDs
//	bot:status                  - "running" / "stopped"
type StatsCache struct {
	rdb       *redis.Client
	statusTTL time.Duration
}

// NewStatsCache creates a StatsCache backed by the given Client. quoteTTL is
// the quote store's expiry; market status keys live 10x as long.
func NewStatsCache(c *Client, quoteTTL time.Duration) *StatsCache {
	return &StatsCache{
		rdb:       c.Underlying(),
		statusTTL: quoteTTL * statusTTLFactor,
	}
}

// SetMarketStatus stores the market status (active/halted/closed).
func (sc *StatsCache) SetMarketStatus(ctx context.Context, marketID, status string) error {
	key := "market:status:" + marketID
	if err := sc.rdb.SetEx(ctx, key, status, sc.statusTTL).Err(); err != nil {
		return fmt.Errorf("redis: set market status %s: %w", marketID, err)
	}
	return nil
}

// GetMarketStatus returns domain.ErrNotFound when no status is recorded.
func (sc *StatsCache) GetMarketStatus(ctx context.Context, marketID string) (string, error) {
	status, err := sc.rdb.Get(ctx, "market:status:"+marketID).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis: get market status %s: %w", marketID, err)
	}
	return status, nil
}

// IncrOpportunitiesFound bumps the global found-counter and returns the new
// value.
func (sc *StatsCache) IncrOpportunitiesFound(ctx context.Context) (int64, error) {
	n, err := sc.rdb.Incr(ctx, "stats:opportunities_found").Result()
	if err != nil {
		return 0, fmt.Errorf("redis: incr opportunities found: %w", err)
	}
	return n, nil
}

// IncrTradeCount bumps the per-day trade counter. Date is YYYY-MM-DD.
func (sc *StatsCache) IncrTradeCount(ctx context.Context, date string) (int64, error) {
	key := "trades:count:" + date
	n, err := sc.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: incr trade count %s: %w", date, err)
	}
	// Refresh retention on every bump; the key exists at most two days past
	// its last trade.
	_ = sc.rdb.Expire(ctx, key, tradeCountTTL).Err()
	return n, nil
}

// AddDailyPnL adds delta to the day's realized pnl and returns the new total.
func (sc *StatsCache) AddDailyPnL(ctx context.Context, date string, delta float64) (float64, error) {
	key := "pnl:daily:" + date
	total, err := sc.rdb.IncrByFloat(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: add daily pnl %s: %w", date, err)
	}
	_ = sc.rdb.Expire(ctx, key, dailyPnLTTL).Err()
	return total, nil
}

// GetDailyPnL returns 0 when no pnl is recorded for the date.
func (sc *StatsCache) GetDailyPnL(ctx context.Context, date string) (float64, error) {
	val, err := sc.rdb.Get(ctx, "pnl:daily:"+date).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis: get daily pnl %s: %w", date, err)
	}
	pnl, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse daily pnl %s: %w", date, err)
	}
	return pnl, nil
}

// SetActiveMarkets replaces the set of watched market IDs.
func (sc *StatsCache) SetActiveMarkets(ctx context.Context, marketIDs []string) error {
	const key = "markets:active"
	pipe := sc.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(marketIDs) > 0 {
		members := make([]interface{}, len(marketIDs))
		for i, id := range marketIDs {
			members[i] = id
		}
		pipe.SAdd(ctx, key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set active markets: %w", err)
	}
	return nil
}

// SetBotStatus records the scanner's lifecycle state.
func (sc *StatsCache) SetBotStatus(ctx context.Context, status string) error {
	if err := sc.rdb.Set(ctx, "bot:status", status, 0).Err(); err != nil {
		return fmt.Errorf("redis: set bot status: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.StatsCache = (*StatsCache)(nil)
