// Package notify delivers operator alerts for detected opportunities and
// loop failures. Alerts are dispatched to every configured sender (Telegram,
// Discord) and can be filtered by event type so operators receive only the
// alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Event types carried by alerts, matched against the configured filter.
const (
	EventOpportunity = "opportunity"
	EventTrade       = "trade"
	EventCritical    = "critical"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches alerts to one or more Senders. It maintains a set of
// allowed event types; Notify only forwards messages whose event type is in
// the allowed set. Critical alerts always bypass the filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice will be forwarded by Notify.
// If events is empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// NotifyOpportunity formats and delivers a detected-opportunity alert,
// subject to the event filter.
func (n *Notifier) NotifyOpportunity(ctx context.Context, opp domain.Opportunity) error {
	return n.Notify(ctx, EventOpportunity, "Arbitrage opportunity", FormatOpportunity(opp))
}

// NotifyCritical delivers a failure alert to all senders regardless of the
// event filter. An unwatched crash is worse than an unwanted ping.
func (n *Notifier) NotifyCritical(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// Notify sends a notification to all senders only if the event type is in the
// allowed list. If no events were configured (empty list), all events pass.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// dispatch iterates over all senders and sends the notification. Errors from
// individual senders are collected and returned as a combined error; a single
// sender failure does not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// FormatOpportunity renders the alert body: market, both legs, combined
// price, profit, and tradable size.
func FormatOpportunity(opp domain.Opportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Market: %s\n", opp.MarketID)
	fmt.Fprintf(&b, "YES ask: %.4f (size %.0f)\n", opp.YesPrice, opp.YesSize)
	fmt.Fprintf(&b, "NO ask: %.4f (size %.0f)\n", opp.NoPrice, opp.NoSize)
	fmt.Fprintf(&b, "Sum: %.4f\n", opp.SumPrice)
	fmt.Fprintf(&b, "Profit: %.2f%%\n", opp.ProfitPercent)
	fmt.Fprintf(&b, "Max volume: $%.2f\n", opp.MaxVolumeUSD)
	fmt.Fprintf(&b, "Expected profit: $%.2f", opp.ExpectedProfitUSD)
	return b.String()
}
