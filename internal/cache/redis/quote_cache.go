package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// QuoteCache implements domain.QuoteStore on Redis.
//
// Key schema:
//
//	orderbook:{marketID}:{side} - JSON {price, size, timestamp}, SETEX'd
//
// Expiry is enforced entirely by Redis: once the TTL lapses the key is gone
// and the quote is absent. Readers never inspect the stored timestamp.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(marketID string, side domain.Side) string {
	return "orderbook:" + marketID + ":" + string(side)
}

// quoteRecord is the stored JSON shape. The timestamp is Unix seconds with a
// fractional part, matching what the feed publishes.
type quoteRecord struct {
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Timestamp float64 `json:"timestamp"`
}

// PutQuote upserts the quote under (marketID, side) with an expiry of ttl
// from now. Last writer wins; the store guarantees per-key atomicity and
// nothing more.
func (qc *QuoteCache) PutQuote(ctx context.Context, marketID string, side domain.Side, q domain.Quote, ttl time.Duration) error {
	if !side.Valid() {
		return fmt.Errorf("redis: put quote %s: %w: %q", marketID, domain.ErrInvalidSide, side)
	}

	rec := quoteRecord{
		Price:     q.Price,
		Size:      q.Size,
		Timestamp: float64(q.ObservedAt.UnixNano()) / float64(time.Second),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: marshal quote %s/%s: %w", marketID, side, err)
	}

	if err := qc.rdb.SetEx(ctx, quoteKey(marketID, side), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: put quote %s/%s: %w", marketID, side, err)
	}
	return nil
}

// GetQuote returns domain.ErrNotFound when the key was never written or has
// expired.
func (qc *QuoteCache) GetQuote(ctx context.Context, marketID string, side domain.Side) (domain.Quote, error) {
	data, err := qc.rdb.Get(ctx, quoteKey(marketID, side)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Quote{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s/%s: %w", marketID, side, err)
	}
	return decodeQuote(data, marketID, side)
}

// GetPair fetches both sides with one pipelined round trip and returns
// domain.ErrNotFound unless both are present and unexpired. A one-sided
// quote cannot support an arbitrage decision, so partial results are never
// returned.
func (qc *QuoteCache) GetPair(ctx context.Context, marketID string) (domain.QuotePair, error) {
	pipe := qc.rdb.Pipeline()
	yesCmd := pipe.Get(ctx, quoteKey(marketID, domain.SideYes))
	noCmd := pipe.Get(ctx, quoteKey(marketID, domain.SideNo))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.QuotePair{}, fmt.Errorf("redis: get pair %s: %w", marketID, err)
	}

	yesData, yesErr := yesCmd.Bytes()
	noData, noErr := noCmd.Bytes()
	return assemblePair(marketID, yesData, yesErr, noData, noErr)
}

// assemblePair turns the two pipelined reads into a pair. Either side
// missing (or unreadable) collapses the whole result to domain.ErrNotFound;
// a one-sided pair is never returned.
func assemblePair(marketID string, yesData []byte, yesErr error, noData []byte, noErr error) (domain.QuotePair, error) {
	if yesErr != nil || noErr != nil {
		return domain.QuotePair{}, domain.ErrNotFound
	}

	yes, err := decodeQuote(yesData, marketID, domain.SideYes)
	if err != nil {
		return domain.QuotePair{}, err
	}
	no, err := decodeQuote(noData, marketID, domain.SideNo)
	if err != nil {
		return domain.QuotePair{}, err
	}

	return domain.QuotePair{MarketID: marketID, Yes: yes, No: no}, nil
}

func decodeQuote(data []byte, marketID string, side domain.Side) (domain.Quote, error) {
	var rec quoteRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: decode quote %s/%s: %w", marketID, side, err)
	}
	return domain.Quote{
		Price:      rec.Price,
		Size:       rec.Size,
		ObservedAt: time.Unix(0, int64(rec.Timestamp*float64(time.Second))),
	}, nil
}

// Compile-time interface check.
var _ domain.QuoteStore = (*QuoteCache)(nil)
