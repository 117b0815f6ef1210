package ports

import (
	"context"
)

// SearchEvent describes the outcome of one trail search.
type SearchEvent struct {
	SearchID   string  `json:"search_id"`
	Token      uint64  `json:"token"`
	StopID     int64   `json:"stop_id"`
	RadiusKm   float64 `json:"radius_km"`
	Trails     int     `json:"trails"`
	Outcome    string  `json:"outcome"` // applied | stale | failed
	Error      string  `json:"error,omitempty"`
	DurationMs int64   `json:"duration_ms"`
}

// EventPublisher publishes explorer events to a message broker.
type EventPublisher interface {
	PublishSearch(ctx context.Context, ev SearchEvent) error
	PublishState(ctx context.Context, data []byte) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
