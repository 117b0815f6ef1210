package postgres

import (
	"context"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/Hogigo/Bus2Hike/internal/core/domain"
	"github.com/Hogigo/Bus2Hike/internal/pkg/geospatial"
)

// TrailRepo implements ports.TrailSearcher over the hiking_trails table.
type TrailRepo struct {
	db    *DB
	limit int
}

// NewTrailRepo creates a new TrailRepo returning at most limit trails per
// search. A non-positive limit means 50.
func NewTrailRepo(db *DB, limit int) *TrailRepo {
	if limit <= 0 {
		limit = 50
	}
	return &TrailRepo{db: db, limit: limit}
}

// SearchTrails returns trails passing within radiusKm of (lon, lat),
// ordered by the distance of their start point.
func (r *TrailRepo) SearchTrails(ctx context.Context, lon, lat, radiusKm float64) ([]domain.Trail, error) {
	ctx, span := r.db.startSpan(ctx, "hiking_trails")
	defer span.End()

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, COALESCE(odh_id, ''), COALESCE(description, ''),
		       difficulty, length_km::float8, duration_minutes,
		       elevation_gain_m, elevation_loss_m, COALESCE(circular, false),
		       ST_AsGeoJSON(geometry)
		FROM hiking_trails
		WHERE ST_DWithin(geometry::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY ST_Distance(COALESCE(start_point, ST_StartPoint(geometry))::geography,
		                     ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography)
		LIMIT $4
	`, lon, lat, radiusKm*1000, r.limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query trails: %w: %w", domain.ErrTransport, err)
	}
	defer rows.Close()

	var trails []domain.Trail
	for rows.Next() {
		var t domain.Trail
		var geom *string
		if err := rows.Scan(
			&t.ID, &t.ExternalID, &t.Description,
			&t.Difficulty, &t.LengthKm, &t.DurationMinutes,
			&t.ElevationGainM, &t.ElevationLossM, &t.Circular,
			&geom,
		); err != nil {
			return nil, fmt.Errorf("scan trail: %w: %w", domain.ErrDecode, err)
		}
		if geom != nil {
			g, err := geojson.UnmarshalGeometry([]byte(*geom))
			if err != nil {
				return nil, fmt.Errorf("trail %d geometry: %w: %w", t.ID, domain.ErrDecode, err)
			}
			t.Path = geospatial.FlattenLines(g.Geometry())
		}
		t.Name = trailName(t)
		trails = append(trails, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read trails: %w: %w", domain.ErrTransport, err)
	}
	return trails, nil
}

func trailName(t domain.Trail) string {
	if t.ExternalID != "" {
		return "Trail " + t.ExternalID
	}
	return fmt.Sprintf("Trail %d", t.ID)
}
