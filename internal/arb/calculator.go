// Package arb contains the pure arbitrage math: deciding whether a pair of
// best-ask quotes is an opportunity and computing its economics, plus the
// sizing, slippage, fee, and reconciliation helpers the execution path uses.
// Nothing in this package performs I/O or holds state.
package arb

import (
	"math"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Params are the configured detection bounds. Threshold is a strict upper
// bound (a sum exactly at the threshold is rejected); the profit and
// liquidity floors are inclusive (a value exactly at the floor passes).
type Params struct {
	Threshold        float64
	MinProfitPercent float64
	MinLiquidityUSD  float64
	MaxPositionUSD   float64
}

// Calculate decides whether the two quotes form an arbitrage opportunity and
// computes its economics. It returns false for any rejection and for any
// invalid input (non-positive or non-finite price, negative or non-finite
// size) — never an error: "no opportunity" is an expected, frequent outcome.
//
// The returned Opportunity has ID and DetectedAt unset; the caller stamps
// them at emission time so this function stays deterministic.
func Calculate(marketID string, yes, no domain.Quote, p Params) (domain.Opportunity, bool) {
	if !validQuote(yes) || !validQuote(no) {
		return domain.Opportunity{}, false
	}

	sum := yes.Price + no.Price
	if sum >= p.Threshold {
		return domain.Opportunity{}, false
	}

	// Buying one share of each outcome for sum redeems for exactly $1.
	profitPercent := (1.0 - sum) / sum * 100
	if profitPercent < p.MinProfitPercent {
		return domain.Opportunity{}, false
	}

	maxVolume := maxVolumeUSD(yes, no)
	if maxVolume < p.MinLiquidityUSD {
		return domain.Opportunity{}, false
	}
	if maxVolume > p.MaxPositionUSD {
		maxVolume = p.MaxPositionUSD
	}

	return domain.Opportunity{
		MarketID:          marketID,
		SumPrice:          sum,
		ProfitPercent:     profitPercent,
		YesPrice:          yes.Price,
		YesSize:           yes.Size,
		NoPrice:           no.Price,
		NoSize:            no.Size,
		MaxVolumeUSD:      maxVolume,
		ExpectedProfitUSD: maxVolume * (1.0 - sum),
	}, true
}

// maxVolumeUSD computes the largest notional that can be traded with equal
// share counts on both legs. One unit of each outcome must be held to redeem
// $1, so the thinner side bounds the share count.
func maxVolumeUSD(yes, no domain.Quote) float64 {
	sharesYes := yes.Size / yes.Price
	sharesNo := no.Size / no.Price

	shares := math.Min(sharesYes, sharesNo)
	return shares * (yes.Price + no.Price)
}

func validQuote(q domain.Quote) bool {
	if q.Price <= 0 || q.Size < 0 {
		return false
	}
	if math.IsNaN(q.Price) || math.IsInf(q.Price, 0) {
		return false
	}
	if math.IsNaN(q.Size) || math.IsInf(q.Size, 0) {
		return false
	}
	return true
}

// TradeSizes returns the share count to buy on each leg for a target USD
// notional, capped at the opportunity's max volume. Both legs always get the
// same share count.
func TradeSizes(opp domain.Opportunity, targetVolumeUSD float64) (yesShares, noShares float64) {
	sum := opp.YesPrice + opp.NoPrice
	volume := math.Min(targetVolumeUSD, opp.MaxVolumeUSD)
	// A degenerate opportunity (zero prices or no volume) sizes to zero
	// rather than dividing into NaN.
	if !(sum > 0) || !(volume > 0) {
		return 0, 0
	}
	shares := volume / sum
	return shares, shares
}

// Slippage returns the percent difference between the expected and executed
// price. Positive means worse than expected.
func Slippage(expectedPrice, executedPrice float64) float64 {
	return (executedPrice - expectedPrice) / expectedPrice * 100
}

// SlippageAcceptable reports whether the absolute slippage is within the
// configured maximum percent.
func SlippageAcceptable(slippagePercent, maxPercent float64) bool {
	return math.Abs(slippagePercent) <= maxPercent
}

// Fees returns the exchange fee for the given notional at the given rate
// (0.002 = 0.2%).
func Fees(volumeUSD, feeRate float64) float64 {
	return volumeUSD * feeRate
}

// NetProfit reconciles an execution: each matched share pair pays out $1,
// the cost is the volume spent, and fees apply to both legs' notional.
func NetProfit(actualYesPrice, actualNoPrice, volumeUSD, feeRate float64) float64 {
	actualSum := actualYesPrice + actualNoPrice
	shares := volumeUSD / actualSum
	payout := shares * 1.0
	fees := Fees(volumeUSD*2, feeRate)
	return payout - volumeUSD - fees
}
