package feed

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Message types on the CLOB book feed.
const (
	msgTypeBookUpdate = "book_update"
	msgTypeSubscribed = "subscribed"
	msgTypeError      = "error"
)

// subscribeRequest is sent once per watched market after connecting.
type subscribeRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Market  string `json:"market"`
}

func newSubscribeRequest(marketID string) subscribeRequest {
	return subscribeRequest{Type: "subscribe", Channel: "book", Market: marketID}
}

// inboundMessage is the envelope for every message on the feed,
// discriminated by Type. Only book_update carries book data.
type inboundMessage struct {
	Type      string      `json:"type"`
	Market    string      `json:"market"`
	Asset     string      `json:"asset"`
	Asks      [][]float64 `json:"asks"`
	Timestamp float64     `json:"timestamp"`
	Message   string      `json:"message"`
}

// parseMessage decodes a raw frame into the envelope. Undecodable frames are
// dropped by the caller; a single bad message must never end the listen loop.
func parseMessage(raw []byte) (inboundMessage, error) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return inboundMessage{}, err
	}
	return msg, nil
}

// normalizeBookUpdate extracts the best ask from a book_update and produces
// the quote to store. asks[0] is the best (lowest) ask; the asset field names
// the outcome side the book belongs to, defaulting to yes when absent. The
// bool result is false when the message carries nothing usable.
func normalizeBookUpdate(msg inboundMessage, now time.Time) (marketID string, side domain.Side, q domain.Quote, ok bool) {
	if msg.Market == "" || len(msg.Asks) == 0 || len(msg.Asks[0]) < 2 {
		return "", "", domain.Quote{}, false
	}

	side = domain.SideYes
	if msg.Asset != "" {
		side = domain.Side(strings.ToLower(msg.Asset))
		if !side.Valid() {
			return "", "", domain.Quote{}, false
		}
	}

	observed := now
	if msg.Timestamp > 0 {
		observed = time.Unix(0, int64(msg.Timestamp*float64(time.Second)))
	}

	best := msg.Asks[0]
	return msg.Market, side, domain.Quote{
		Price:      best[0],
		Size:       best[1],
		ObservedAt: observed,
	}, true
}
