// Package domain defines the core value types and collaborator interfaces
// shared by every other package. It has no external dependencies so that any
// implementation package can import it without cycles.
package domain

import "time"

// Side identifies one of the two complementary outcomes of a market.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Opposite returns the complementary side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Quote is one side's best-ask snapshot: the lowest price at which size is
// currently offered, and when it was observed.
type Quote struct {
	Price      float64
	Size       float64
	ObservedAt time.Time
}

// QuotePair bundles both sides' quotes for one market. It is only ever
// produced whole: a pair with a missing side cannot support an arbitrage
// decision, so the store never returns one.
type QuotePair struct {
	MarketID string
	Yes      Quote
	No       Quote
}
