package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/Hogigo/Bus2Hike/internal/adapters/nats"
	"github.com/Hogigo/Bus2Hike/internal/core/usecases"
	"github.com/Hogigo/Bus2Hike/internal/pkg/metrics"
)

// wsMessage is sent from client to apply gestures or follow extra feeds.
type wsMessage struct {
	Action  string            `json:"action"`  // "gesture" | "subscribe" | "unsubscribe"
	Channel string            `json:"channel"` // "searches"
	Gesture *usecases.Gesture `json:"gesture"`
}

// wsEvent wraps every message pushed to clients.
type wsEvent struct {
	Type string          `json:"type"` // "state" | "search" | "status" | "error"
	Data json.RawMessage `json:"data,omitempty"`
	Msg  string          `json:"message,omitempty"`
}

// WebSocketHandler returns a handler that streams explorer state to
// connected clients and accepts gestures from them.
// State comes from NATS explorer.state when NATS is configured, otherwise
// straight from the coordinator.
// Clients send JSON: {"action":"gesture","gesture":{"kind":"tap_stop","id":3}}
// or {"action":"subscribe","channel":"searches"} for search outcomes.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		remoteAddr := c.RemoteAddr().String()
		slog.Info("ws client connected", "remote", remoteAddr)

		var mu sync.Mutex
		write := func(ev wsEvent) error {
			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}
		writeErr := func(msg string) { _ = write(wsEvent{Type: "error", Msg: msg}) }

		// The initial snapshot and the feed race, so older versions are dropped.
		var stateMu sync.Mutex
		sent := false
		var sentVersion uint64
		writeState := func(data []byte) {
			var v struct {
				Version uint64 `json:"version"`
			}
			if err := json.Unmarshal(data, &v); err != nil {
				return
			}
			stateMu.Lock()
			defer stateMu.Unlock()
			if sent && v.Version <= sentVersion {
				return
			}
			sent, sentVersion = true, v.Version
			_ = write(wsEvent{Type: "state", Data: data})
		}

		// State feed
		var stop func()
		if deps.NATS != nil {
			sub, err := deps.NATS.Subscribe(natsadapter.SubjectState, func(msg *nats.Msg) {
				writeState(msg.Data)
			})
			if err != nil {
				slog.Error("ws state subscribe failed", "error", err)
				return
			}
			stop = func() { _ = sub.Unsubscribe() }
		} else {
			stop = deps.Explorer.Subscribe(func(s usecases.Snapshot) {
				if data, err := json.Marshal(s); err == nil {
					writeState(data)
				}
			})
		}
		defer stop()

		// Initial snapshot so the client can render immediately
		if data, err := json.Marshal(deps.Explorer.Snapshot()); err == nil {
			writeState(data)
		}

		// Keep-alive ping
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		var searches *nats.Subscription
		defer func() {
			if searches != nil {
				_ = searches.Unsubscribe()
			}
		}()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				writeErr("invalid JSON")
				continue
			}

			switch m.Action {
			case "gesture":
				if m.Gesture == nil {
					writeErr("gesture is required")
					continue
				}
				// Searches outlive the connection; results arrive on the state feed.
				if _, err := deps.Explorer.Dispatch(context.Background(), *m.Gesture); err != nil {
					writeErr(err.Error())
				}

			case "subscribe":
				if m.Channel != "searches" {
					writeErr("unknown channel: " + m.Channel)
					continue
				}
				if deps.NATS == nil {
					writeErr("searches feed requires NATS")
					continue
				}
				if searches != nil {
					_ = write(wsEvent{Type: "status", Msg: "already subscribed"})
					continue
				}
				s, err := deps.NATS.Subscribe(natsadapter.SubjectSearchAll, func(msg *nats.Msg) {
					_ = write(wsEvent{Type: "search", Data: msg.Data})
				})
				if err != nil {
					writeErr("subscribe failed: " + err.Error())
					continue
				}
				searches = s
				_ = write(wsEvent{Type: "status", Msg: "subscribed"})

			case "unsubscribe":
				if searches == nil {
					writeErr("not subscribed to " + m.Channel)
					continue
				}
				_ = searches.Unsubscribe()
				searches = nil
				_ = write(wsEvent{Type: "status", Msg: "unsubscribed"})

			default:
				writeErr("unknown action: " + m.Action)
			}
		}

		slog.Info("ws client disconnected", "remote", remoteAddr)
	}
}
