package ports

import (
	"context"

	"github.com/Hogigo/Bus2Hike/internal/core/domain"
)

// TrailSearcher finds trails around a point.
type TrailSearcher interface {
	// SearchTrails returns trails within radiusKm of (lon, lat), in the
	// order the source ranks them.
	SearchTrails(ctx context.Context, lon, lat, radiusKm float64) ([]domain.Trail, error)
}

// StopFinder discovers transit stops around a point.
type StopFinder interface {
	FindStops(ctx context.Context, lon, lat, rangeKm float64) ([]domain.Stop, error)
}
