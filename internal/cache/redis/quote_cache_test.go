package redis

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

func TestQuoteKeySchema(t *testing.T) {
	if got := quoteKey("0xabc", domain.SideYes); got != "orderbook:0xabc:yes" {
		t.Fatalf("quoteKey yes = %q", got)
	}
	if got := quoteKey("0xabc", domain.SideNo); got != "orderbook:0xabc:no" {
		t.Fatalf("quoteKey no = %q", got)
	}
}

func TestQuoteRecordWireShape(t *testing.T) {
	observed := time.Unix(1740000000, 500_000_000).UTC()
	rec := quoteRecord{
		Price:     0.48,
		Size:      100,
		Timestamp: float64(observed.UnixNano()) / float64(time.Second),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, field := range []string{"price", "size", "timestamp"} {
		if _, ok := raw[field]; !ok {
			t.Fatalf("stored JSON missing %q field: %s", field, data)
		}
	}
	if len(raw) != 3 {
		t.Fatalf("stored JSON has extra fields: %s", data)
	}
	if math.Abs(raw["timestamp"]-1740000000.5) > 1e-6 {
		t.Fatalf("timestamp = %v, want unix seconds 1740000000.5", raw["timestamp"])
	}
}

func TestDecodeQuoteRoundTrip(t *testing.T) {
	q, err := decodeQuote([]byte(`{"price":0.48,"size":100,"timestamp":1740000000.5}`), "0xabc", domain.SideYes)
	if err != nil {
		t.Fatalf("decodeQuote: %v", err)
	}
	if q.Price != 0.48 || q.Size != 100 {
		t.Fatalf("decoded quote = %+v", q)
	}
	wantUnix := 1740000000.5
	if got := float64(q.ObservedAt.UnixNano()) / float64(time.Second); math.Abs(got-wantUnix) > 1e-6 {
		t.Fatalf("ObservedAt unix = %v, want %v", got, wantUnix)
	}

	if _, err := decodeQuote([]byte(`nope`), "0xabc", domain.SideYes); err == nil {
		t.Fatal("decodeQuote accepted garbage")
	}
}

func TestAssemblePairRequiresBothSides(t *testing.T) {
	yes := []byte(`{"price":0.48,"size":100,"timestamp":1740000000.5}`)
	no := []byte(`{"price":0.50,"size":80,"timestamp":1740000000.5}`)

	tests := []struct {
		name    string
		yesData []byte
		yesErr  error
		noData  []byte
		noErr   error
	}{
		{"yes side expired", nil, redis.Nil, no, nil},
		{"no side expired", yes, nil, nil, redis.Nil},
		{"both sides expired", nil, redis.Nil, nil, redis.Nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := assemblePair("0xabc", tt.yesData, tt.yesErr, tt.noData, tt.noErr)
			if !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("assemblePair err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestAssemblePairBothSidesPresent(t *testing.T) {
	yes := []byte(`{"price":0.48,"size":100,"timestamp":1740000000.5}`)
	no := []byte(`{"price":0.50,"size":80,"timestamp":1740000000.5}`)

	pair, err := assemblePair("0xabc", yes, nil, no, nil)
	if err != nil {
		t.Fatalf("assemblePair: %v", err)
	}
	if pair.MarketID != "0xabc" {
		t.Fatalf("MarketID = %q", pair.MarketID)
	}
	if pair.Yes.Price != 0.48 || pair.Yes.Size != 100 {
		t.Fatalf("yes quote = %+v", pair.Yes)
	}
	if pair.No.Price != 0.50 || pair.No.Size != 80 {
		t.Fatalf("no quote = %+v", pair.No)
	}
}

func TestAssemblePairRejectsMalformedSide(t *testing.T) {
	yes := []byte(`{"price":0.48,"size":100,"timestamp":1740000000.5}`)

	_, err := assemblePair("0xabc", yes, nil, []byte(`nope`), nil)
	if err == nil {
		t.Fatal("assemblePair accepted a malformed quote")
	}
	if errors.Is(err, domain.ErrNotFound) {
		t.Fatal("malformed payload should not look like a missing key")
	}
}
