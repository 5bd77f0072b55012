package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// BidEvent is published whenever a bid is accepted on a lot, whether placed
// by hand or raised by the proxy-bid sweep.
type BidEvent struct {
	EventID   string    `json:"event_id"`
	LotID     string    `json:"lot_id"`
	UserID    string    `json:"user_id"`
	Amount    string    `json:"amount"`
	IsAuto    bool      `json:"is_auto"`
	Timestamp time.Time `json:"timestamp"`
}

// LotClosedEvent is published when a lot transitions to ended.
type LotClosedEvent struct {
	EventID   string    `json:"event_id"`
	LotID     string    `json:"lot_id"`
	WinnerID  string    `json:"winner_id,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	BuyNow    bool      `json:"buy_now"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher fans auction events out to interested consumers (websocket
// broadcasters, archival workers). Publishing is best effort; callers log
// and swallow failures.
type Publisher interface {
	PublishBid(ctx context.Context, event BidEvent) error
	PublishLotClosed(ctx context.Context, event LotClosedEvent) error
	Close()
}

// NATSPublisher publishes auction events to NATS subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to NATS and returns a publisher.
func NewNATSPublisher(url, name string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Printf("[NATSPublisher] Connected to %s", url)
	return &NATSPublisher{conn: conn}, nil
}

// PublishBid publishes a bid event to auction.bid.<lotID>.
func (p *NATSPublisher) PublishBid(ctx context.Context, event BidEvent) error {
	return p.publish("auction.bid."+event.LotID, event)
}

// PublishLotClosed publishes a close event to auction.closed.<lotID>.
func (p *NATSPublisher) PublishLotClosed(ctx context.Context, event LotClosedEvent) error {
	return p.publish("auction.closed."+event.LotID, event)
}

func (p *NATSPublisher) publish(subject string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// NoopPublisher drops all events. Used when NATS is not configured.
type NoopPublisher struct{}

// PublishBid implements Publisher.
func (NoopPublisher) PublishBid(ctx context.Context, event BidEvent) error { return nil }

// PublishLotClosed implements Publisher.
func (NoopPublisher) PublishLotClosed(ctx context.Context, event LotClosedEvent) error { return nil }

// Close implements Publisher.
func (NoopPublisher) Close() {}
