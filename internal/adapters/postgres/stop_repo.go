package postgres

import (
	"context"
	"fmt"

	"github.com/Hogigo/Bus2Hike/internal/core/domain"
)

// StopRepo implements ports.StopFinder over the transport_stops table.
type StopRepo struct {
	db *DB
}

// NewStopRepo creates a new StopRepo.
func NewStopRepo(db *DB) *StopRepo {
	return &StopRepo{db: db}
}

// FindStops returns stops within rangeKm using PostGIS ST_DWithin, nearest
// first.
func (r *StopRepo) FindStops(ctx context.Context, lon, lat, rangeKm float64) ([]domain.Stop, error) {
	ctx, span := r.db.startSpan(ctx, "transport_stops")
	defer span.End()

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, COALESCE(name, ''),
		       ST_Y(geometry) as lat,
		       ST_X(geometry) as lon,
		       ST_Distance(geometry::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) as distance
		FROM transport_stops
		WHERE geometry IS NOT NULL
		  AND ST_DWithin(geometry::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY distance
	`, lon, lat, rangeKm*1000)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query stops: %w: %w", domain.ErrTransport, err)
	}
	defer rows.Close()

	var stops []domain.Stop
	for rows.Next() {
		var s domain.Stop
		var dist float64
		if err := rows.Scan(&s.ID, &s.Name, &s.Location.Lat, &s.Location.Lon, &dist); err != nil {
			return nil, fmt.Errorf("scan stop: %w: %w", domain.ErrDecode, err)
		}
		s.Distance = &dist
		stops = append(stops, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stops: %w: %w", domain.ErrTransport, err)
	}
	return stops, nil
}
