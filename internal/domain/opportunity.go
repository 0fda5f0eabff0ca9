package domain

import (
	"fmt"
	"time"
)

// Opportunity is a detected arbitrage: the combined best asks of both sides
// sum to less than $1 by more than the configured margin. Values are computed
// once by the calculator and never mutated afterwards.
type Opportunity struct {
	ID       string // UUID assigned at detection time
	MarketID string

	SumPrice      float64 // yes ask + no ask
	ProfitPercent float64 // (1 - sum) / sum * 100

	YesPrice float64
	YesSize  float64
	NoPrice  float64
	NoSize   float64

	// MaxVolumeUSD is the tradable notional: equal share counts on both
	// legs, bounded by the thinner side and capped at the position limit.
	MaxVolumeUSD      float64
	ExpectedProfitUSD float64

	DetectedAt time.Time
}

// String renders a short operator-facing summary.
func (o Opportunity) String() string {
	id := o.MarketID
	if len(id) > 8 {
		id = id[:8] + "..."
	}
	return fmt.Sprintf("Opportunity(market=%s, sum=%.4f, profit=%.2f%%, volume=%.2f)",
		id, o.SumPrice, o.ProfitPercent, o.MaxVolumeUSD)
}
