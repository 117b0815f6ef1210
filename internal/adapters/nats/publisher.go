package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/Hogigo/Bus2Hike/internal/core/ports"
)

// Publisher implements ports.EventPublisher. Search outcomes are persisted
// in JetStream, state snapshots are plain core NATS messages.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects and makes sure the search stream exists.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := Connect(url, "bus2hike-explorer")
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	if err := ensureStream(js, searchStream); err != nil {
		conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, js: js}, nil
}

// PublishSearch stores ev on explorer.search.<outcome>. The search id is
// used as message id, so a retried publish is stored once.
func (p *Publisher) PublishSearch(ctx context.Context, ev ports.SearchEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode search event: %w", err)
	}
	opts := []nats.PubOpt{nats.Context(ctx)}
	if ev.SearchID != "" {
		opts = append(opts, nats.MsgId(ev.SearchID))
	}
	if _, err := p.js.Publish(SubjectSearchPrefix+ev.Outcome, data, opts...); err != nil {
		return fmt.Errorf("publish search %s: %w", ev.SearchID, err)
	}
	return nil
}

// PublishState broadcasts a JSON snapshot. Only the latest one matters, so
// nothing is persisted and a canceled ctx drops it.
func (p *Publisher) PublishState(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.conn.Publish(SubjectState, data)
}

// Conn exposes the connection to the WebSocket relay and readiness probe.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}
