package scanner

import (
	"sync"
	"time"
)

// CooldownGate suppresses repeat alerts for a market inside the cooldown
// window. ShouldNotify and Record are deliberately separate: the loop checks
// the gate first and stamps it only after committing to the alert, so a
// rejected or skipped alert never starts a cooldown.
type CooldownGate struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewCooldownGate creates a gate with the given window.
func NewCooldownGate(window time.Duration) *CooldownGate {
	return &CooldownGate{
		window: window,
		now:    time.Now,
		last:   make(map[string]time.Time),
	}
}

// ShouldNotify reports whether an alert for the market is currently allowed:
// either it was never alerted or the cooldown window has fully elapsed.
func (g *CooldownGate) ShouldNotify(marketID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	at, ok := g.last[marketID]
	if !ok {
		return true
	}
	return g.now().Sub(at) > g.window
}

// Record stamps the market as alerted now.
func (g *CooldownGate) Record(marketID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last[marketID] = g.now()
}
