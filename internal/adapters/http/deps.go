package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/Hogigo/Bus2Hike/internal/adapters/postgres"
	"github.com/Hogigo/Bus2Hike/internal/adapters/valkey"
	"github.com/Hogigo/Bus2Hike/internal/core/usecases"
)

// Pinger is a dependency that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Explorer *usecases.Coordinator
	Backend  Pinger
	NATS     *nats.Conn
	DB       *postgres.DB
	Cache    *valkey.Cache
}
