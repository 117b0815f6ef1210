// Package natsadapter carries explorer events and state snapshots over NATS.
package natsadapter

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects used by the explorer. Search outcomes go to
// explorer.search.<outcome>.
const (
	SubjectSearchPrefix = "explorer.search."
	SubjectSearchAll    = "explorer.search.>"
	SubjectState        = "explorer.state"

	StreamSearches = "EXPLORER_SEARCHES"
)

// searchStream keeps a day of search outcomes for auditing.
var searchStream = nats.StreamConfig{
	Name:       StreamSearches,
	Subjects:   []string{SubjectSearchAll},
	Retention:  nats.LimitsPolicy,
	MaxAge:     24 * time.Hour,
	Storage:    nats.FileStorage,
	Duplicates: 2 * time.Minute,
}

// Connect dials NATS, retrying in the background until the server is up.
// name identifies the client in server monitoring.
func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "client", name, "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "client", name, "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return conn, nil
}

// ensureStream creates cfg or brings an existing stream up to date.
func ensureStream(js nats.JetStreamContext, cfg nats.StreamConfig) error {
	_, err := js.StreamInfo(cfg.Name)
	switch {
	case errors.Is(err, nats.ErrStreamNotFound):
		_, err = js.AddStream(&cfg)
	case err == nil:
		_, err = js.UpdateStream(&cfg)
	}
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
	}
	return nil
}
