package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/Hogigo/Bus2Hike/internal/core/domain"
)

const importBatchSize = 500

// Importer writes stops and trails fetched elsewhere into the PostGIS
// tables read by StopRepo and TrailRepo.
type Importer struct {
	db *DB
}

// NewImporter creates a new Importer.
func NewImporter(db *DB) *Importer {
	return &Importer{db: db}
}

// UpsertStops inserts or updates stops by id and returns how many were written.
func (im *Importer) UpsertStops(ctx context.Context, stops []domain.Stop) (int, error) {
	ctx, span := im.db.startSpan(ctx, "transport_stops")
	defer span.End()

	batch := &pgx.Batch{}
	written := 0
	for _, s := range stops {
		batch.Queue(`
			INSERT INTO transport_stops (id, name, geometry)
			VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326))
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, geometry = EXCLUDED.geometry
		`, s.ID, s.Name, s.Location.Lon, s.Location.Lat)

		if batch.Len() >= importBatchSize {
			if err := im.flush(ctx, batch); err != nil {
				span.RecordError(err)
				return written, fmt.Errorf("upsert stops: %w", err)
			}
			written += batch.Len()
			batch = &pgx.Batch{}
		}
	}
	if batch.Len() > 0 {
		if err := im.flush(ctx, batch); err != nil {
			span.RecordError(err)
			return written, fmt.Errorf("upsert stops: %w", err)
		}
		written += batch.Len()
	}
	return written, nil
}

// UpsertTrails inserts or updates trails by id. Start and end points are
// derived from the path.
func (im *Importer) UpsertTrails(ctx context.Context, trails []domain.Trail) (int, error) {
	ctx, span := im.db.startSpan(ctx, "hiking_trails")
	defer span.End()

	batch := &pgx.Batch{}
	written := 0
	for _, t := range trails {
		geom, err := lineGeoJSON(t.Path)
		if err != nil {
			return written, fmt.Errorf("trail %d geometry: %w", t.ID, err)
		}
		var odhID *string
		if t.ExternalID != "" {
			odhID = &t.ExternalID
		}
		batch.Queue(`
			WITH g AS (SELECT ST_SetSRID(ST_GeomFromGeoJSON($10), 4326) AS geom)
			INSERT INTO hiking_trails (
				id, odh_id, difficulty, length_km, duration_minutes,
				elevation_gain_m, elevation_loss_m, description, circular,
				geometry, start_point, end_point
			)
			SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9,
			       g.geom, ST_StartPoint(g.geom), ST_EndPoint(g.geom)
			FROM g
			ON CONFLICT (id) DO UPDATE SET
				odh_id = EXCLUDED.odh_id,
				difficulty = EXCLUDED.difficulty,
				length_km = EXCLUDED.length_km,
				duration_minutes = EXCLUDED.duration_minutes,
				elevation_gain_m = EXCLUDED.elevation_gain_m,
				elevation_loss_m = EXCLUDED.elevation_loss_m,
				description = EXCLUDED.description,
				circular = EXCLUDED.circular,
				geometry = EXCLUDED.geometry,
				start_point = EXCLUDED.start_point,
				end_point = EXCLUDED.end_point,
				updated_at = CURRENT_TIMESTAMP
		`, t.ID, odhID, t.Difficulty, t.LengthKm, t.DurationMinutes,
			t.ElevationGainM, t.ElevationLossM, t.Description, t.Circular, geom)

		if batch.Len() >= importBatchSize {
			if err := im.flush(ctx, batch); err != nil {
				span.RecordError(err)
				return written, fmt.Errorf("upsert trails: %w", err)
			}
			written += batch.Len()
			batch = &pgx.Batch{}
		}
	}
	if batch.Len() > 0 {
		if err := im.flush(ctx, batch); err != nil {
			span.RecordError(err)
			return written, fmt.Errorf("upsert trails: %w", err)
		}
		written += batch.Len()
	}
	return written, nil
}

func (im *Importer) flush(ctx context.Context, batch *pgx.Batch) error {
	return im.db.Pool.SendBatch(ctx, batch).Close()
}

// lineGeoJSON encodes path as a GeoJSON LineString, or nil when the path
// has fewer than two points.
func lineGeoJSON(path []domain.GeoPoint) (*string, error) {
	if len(path) < 2 {
		return nil, nil
	}
	ls := make(orb.LineString, len(path))
	for i, p := range path {
		ls[i] = orb.Point{p.Lon, p.Lat}
	}
	data, err := geojson.NewGeometry(ls).MarshalJSON()
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}
