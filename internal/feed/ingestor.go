// Package feed maintains the multiplexed subscription to the Polymarket CLOB
// book feed and writes normalized best-ask quotes into the quote store. It
// owns reconnect/backoff and resubscription; nothing downstream ever talks to
// the socket.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/metrics"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 15 * time.Second
)

// State is the connection lifecycle phase of the ingestor.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateListening
)

// String returns the lowercase state name for logs.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateListening:
		return "listening"
	default:
		return "disconnected"
	}
}

// Backoff produces the reconnect delay schedule: base, doubling per
// consecutive failure, capped at max. Reset returns to base after a
// successful connect so recovery is immediate once the feed is back.
type Backoff struct {
	base, max, next time.Duration
}

// NewBackoff creates a schedule starting at base and capped at max.
func NewBackoff(base, max time.Duration) *Backoff {
	return &Backoff{base: base, max: max, next: base}
}

// Next returns the current delay and advances the schedule.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return d
}

// Reset returns the schedule to its base delay.
func (b *Backoff) Reset() {
	b.next = b.base
}

// Config holds the ingestor's endpoint and timing parameters.
type Config struct {
	URL           string
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	QuoteTTL      time.Duration
}

// Ingestor keeps one logical book-feed connection alive across network
// failures. Per-message faults are tolerated indefinitely: a bad frame or a
// failed store write drops that one item and the loop continues.
type Ingestor struct {
	cfg    Config
	store  domain.QuoteStore
	logger *slog.Logger

	state atomic.Int32

	mu      sync.Mutex // guards markets and conn
	markets map[string]struct{}
	conn    *websocket.Conn

	writeMu sync.Mutex // gorilla allows a single concurrent writer

	backoff  *Backoff
	done     chan struct{}
	stopOnce sync.Once
}

// New creates an Ingestor watching the given initial markets.
func New(cfg Config, store domain.QuoteStore, markets []string, logger *slog.Logger) *Ingestor {
	set := make(map[string]struct{}, len(markets))
	for _, id := range markets {
		set[id] = struct{}{}
	}
	return &Ingestor{
		cfg:     cfg,
		store:   store,
		logger:  logger.With(slog.String("component", "feed_ingestor")),
		markets: set,
		backoff: NewBackoff(cfg.ReconnectBase, cfg.ReconnectMax),
		done:    make(chan struct{}),
	}
}

// State returns the current connection state.
func (in *Ingestor) State() State {
	return State(in.state.Load())
}

func (in *Ingestor) setState(s State) {
	in.state.Store(int32(s))
}

// AddMarket starts watching a market. When the connection is live the
// subscription is issued immediately; it is also included on every
// subsequent reconnect, so the market is never silently dropped.
func (in *Ingestor) AddMarket(marketID string) {
	in.mu.Lock()
	_, exists := in.markets[marketID]
	in.markets[marketID] = struct{}{}
	conn := in.conn
	in.mu.Unlock()

	if exists {
		return
	}
	in.logger.Info("market added to watch list", slog.String("market", marketID))

	if conn != nil && in.State() >= StateSubscribed {
		if err := in.writeJSON(conn, newSubscribeRequest(marketID)); err != nil {
			// The reconnect cycle will pick it up from the watch list.
			in.logger.Warn("incremental subscribe failed",
				slog.String("market", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// RemoveMarket stops watching a market. The feed keeps sending updates until
// the next reconnect; they are written and simply never read again, expiring
// with the quote TTL.
func (in *Ingestor) RemoveMarket(marketID string) {
	in.mu.Lock()
	delete(in.markets, marketID)
	in.mu.Unlock()
	in.logger.Info("market removed from watch list", slog.String("market", marketID))
}

// Markets returns a snapshot of the watched market IDs.
func (in *Ingestor) Markets() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	ids := make([]string, 0, len(in.markets))
	for id := range in.markets {
		ids = append(ids, id)
	}
	return ids
}

// Stop cooperatively shuts the ingestor down: the current message or attempt
// finishes, the transport is closed, and no further reconnect is scheduled.
func (in *Ingestor) Stop() {
	in.stopOnce.Do(func() {
		close(in.done)
		in.mu.Lock()
		conn := in.conn
		in.mu.Unlock()
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = conn.Close()
		}
	})
}

// Run drives the connect/subscribe/listen cycle until Stop is called or ctx
// is cancelled. Transport failures trigger exponential backoff; a successful
// connect resets the schedule.
func (in *Ingestor) Run(ctx context.Context) error {
	defer in.setState(StateDisconnected)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-in.done:
			return nil
		default:
		}

		err := in.runConnection(ctx)
		if err == nil {
			return nil // stopped
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-in.done:
			return nil
		default:
		}

		in.setState(StateDisconnected)
		metrics.FeedReconnects.Inc()
		delay := in.backoff.Next()
		in.logger.Warn("feed disconnected, reconnecting",
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-in.done:
			return nil
		case <-time.After(delay):
		}
	}
}

// runConnection opens the transport, subscribes the full watch list, and
// listens until the connection dies or the ingestor stops. It never reuses
// state from a previous connection.
func (in *Ingestor) runConnection(ctx context.Context) error {
	in.setState(StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, in.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect %s: %w", in.cfg.URL, err)
	}

	in.mu.Lock()
	in.conn = conn
	in.mu.Unlock()
	defer func() {
		in.mu.Lock()
		in.conn = nil
		in.mu.Unlock()
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if err := in.subscribeAll(conn); err != nil {
		return err
	}
	in.setState(StateSubscribed)
	in.backoff.Reset()
	in.logger.Info("feed connected and subscribed", slog.Int("markets", len(in.Markets())))

	// Unblock the blocking read when the context or Stop fires.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-in.done:
		case <-watchDone:
		}
	}()
	go in.pingLoop(conn, watchDone)

	in.setState(StateListening)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-in.done:
				return nil
			default:
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: %w: %v", domain.ErrWSDisconnect, err)
		}
		in.handleFrame(ctx, raw)
	}
}

// subscribeAll issues one subscription request per watched market.
func (in *Ingestor) subscribeAll(conn *websocket.Conn) error {
	for _, id := range in.Markets() {
		if err := in.writeJSON(conn, newSubscribeRequest(id)); err != nil {
			return fmt.Errorf("feed: subscribe %s: %w", id, err)
		}
	}
	return nil
}

func (in *Ingestor) writeJSON(conn *websocket.Conn, v any) error {
	in.writeMu.Lock()
	defer in.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// pingLoop keeps the connection alive. A failed ping write just returns; the
// read loop notices the dead connection and starts the reconnect cycle.
func (in *Ingestor) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-in.done:
			return
		case <-ticker.C:
			in.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			in.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleFrame classifies and processes one inbound frame. Every failure path
// here drops the single frame and returns; nothing can terminate the listen
// loop from inside.
func (in *Ingestor) handleFrame(ctx context.Context, raw []byte) {
	msg, err := parseMessage(raw)
	if err != nil {
		metrics.MalformedMessages.Inc()
		in.logger.Debug("dropping undecodable message",
			slog.Int("bytes", len(raw)),
			slog.String("error", err.Error()),
		)
		return
	}

	switch msg.Type {
	case msgTypeBookUpdate:
		marketID, side, q, ok := normalizeBookUpdate(msg, time.Now())
		if !ok {
			metrics.MalformedMessages.Inc()
			in.logger.Debug("dropping unusable book update", slog.String("market", msg.Market))
			return
		}
		if err := in.store.PutQuote(ctx, marketID, side, q, in.cfg.QuoteTTL); err != nil {
			// Store unreachable means "no data this cycle" for readers.
			in.logger.Warn("quote write failed",
				slog.String("market", marketID),
				slog.String("side", string(side)),
				slog.String("error", err.Error()),
			)
			return
		}
		metrics.QuotesWritten.WithLabelValues(string(side)).Inc()
		in.logger.Debug("quote stored",
			slog.String("market", marketID),
			slog.String("side", string(side)),
			slog.Float64("price", q.Price),
			slog.Float64("size", q.Size),
		)

	case msgTypeSubscribed:
		in.logger.Info("subscription confirmed", slog.String("market", msg.Market))

	case msgTypeError:
		in.logger.Error("feed error message", slog.String("message", msg.Message))

	default:
		// Unrecognized types are ignored.
	}
}
