package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Hogigo/Bus2Hike/internal/core/ports"
)

const (
	maxDeliveries = 3
	redeliveryGap = 5 * time.Second
)

// SearchHandler processes one search outcome. A returned error asks for
// redelivery.
type SearchHandler func(ctx context.Context, ev ports.SearchEvent) error

// Subscriber consumes search outcomes through durable JetStream consumers.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewSubscriber opens its own connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := Connect(url, "bus2hike-search-consumer")
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeSearchEvents delivers every search outcome to handle until ctx
// is done. Undecodable messages are dropped for good; failed ones are
// redelivered after a pause, at most three times in total.
func (s *Subscriber) SubscribeSearchEvents(ctx context.Context, durable string, handle SearchHandler) error {
	sub, err := s.js.Subscribe(SubjectSearchAll, func(msg *nats.Msg) {
		var ev ports.SearchEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Warn("dropping undecodable search event", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if err := handle(ctx, ev); err != nil {
			slog.Debug("search event will be redelivered", "search_id", ev.SearchID, "error", err)
			_ = msg.NakWithDelay(redeliveryGap)
			return
		}
		_ = msg.Ack()
	},
		nats.Durable(durable),
		nats.ManualAck(),
		nats.MaxDeliver(maxDeliveries),
		nats.DeliverNew(),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", durable, err)
	}

	context.AfterFunc(ctx, func() { _ = sub.Unsubscribe() })
	return nil
}

// Close drains every subscription and the connection.
func (s *Subscriber) Close() {
	_ = s.conn.Drain()
}
