package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Hogigo/Bus2Hike/internal/core/domain"
	"github.com/Hogigo/Bus2Hike/internal/core/ports"
	"github.com/Hogigo/Bus2Hike/internal/pkg/geospatial"
)

// StopService is a StopFinder that caches discoveries and orders stops by
// distance from the query point.
type StopService struct {
	stops ports.StopFinder
	cache ports.CacheService
	ttl   int
}

// NewStopService creates a new StopService. cache may be nil.
func NewStopService(stops ports.StopFinder, cache ports.CacheService, ttlSeconds int) *StopService {
	if ttlSeconds <= 0 {
		ttlSeconds = 300
	}
	return &StopService{stops: stops, cache: cache, ttl: ttlSeconds}
}

// FindStops returns stops within rangeKm of (lon, lat), nearest first, with
// Distance set in meters.
func (s *StopService) FindStops(ctx context.Context, lon, lat, rangeKm float64) ([]domain.Stop, error) {
	// Try cache
	cacheKey := fmt.Sprintf("stops:discover:%.4f:%.4f:%.0f", lon, lat, rangeKm)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var stops []domain.Stop
			if err := json.Unmarshal(data, &stops); err == nil {
				return stops, nil
			}
		}
	}

	stops, err := s.stops.FindStops(ctx, lon, lat, rangeKm)
	if err != nil {
		return nil, err
	}

	origin := domain.GeoPoint{Lat: lat, Lon: lon}
	for i := range stops {
		d := geospatial.Distance(origin, stops[i].Location)
		stops[i].Distance = &d
	}
	sort.SliceStable(stops, func(i, j int) bool {
		return *stops[i].Distance < *stops[j].Distance
	})

	if s.cache != nil {
		if data, err := json.Marshal(stops); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, s.ttl)
		}
	}

	return stops, nil
}
