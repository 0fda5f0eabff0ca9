package domain

import (
	"context"
	"time"
)

// QuoteStore is the single shared-mutable surface between the feed ingestor
// (writer) and the scanner (reader). Each call is one atomic store operation;
// callers never need their own locking around it.
type QuoteStore interface {
	// PutQuote upserts the quote under (marketID, side) with an expiry of
	// ttl from now. Last writer wins.
	PutQuote(ctx context.Context, marketID string, side Side, q Quote, ttl time.Duration) error

	// GetQuote returns ErrNotFound when the key was never written or has
	// expired. An expired quote is absent, not stale-and-usable.
	GetQuote(ctx context.Context, marketID string, side Side) (Quote, error)

	// GetPair returns ErrNotFound unless both sides are present and
	// unexpired. Never a partial result.
	GetPair(ctx context.Context, marketID string) (QuotePair, error)
}

// StatsCache holds operational counters and status keys that share the quote
// store's Redis instance and TTL discipline. Everything here is best-effort
// reporting glue; failures are logged by callers and never fatal.
type StatsCache interface {
	SetMarketStatus(ctx context.Context, marketID, status string) error
	GetMarketStatus(ctx context.Context, marketID string) (string, error)

	IncrOpportunitiesFound(ctx context.Context) (int64, error)
	IncrTradeCount(ctx context.Context, date string) (int64, error)

	AddDailyPnL(ctx context.Context, date string, delta float64) (float64, error)
	GetDailyPnL(ctx context.Context, date string) (float64, error)

	SetActiveMarkets(ctx context.Context, marketIDs []string) error
	SetBotStatus(ctx context.Context, status string) error
}
