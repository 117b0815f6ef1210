package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/Hogigo/Bus2Hike/internal/core/domain"
	"github.com/Hogigo/Bus2Hike/internal/pkg/geospatial"
)

// hikeDTO is one row of the /hikes list response.
type hikeDTO struct {
	ID              int64             `json:"id"`
	OdhID           string            `json:"odh_id"`
	Name            *string           `json:"name"`
	Description     *string           `json:"description"`
	Difficulty      *string           `json:"difficulty"`
	LengthKm        *float64          `json:"length_km"`
	DurationMinutes *int              `json:"duration_minutes"`
	ElevationGainM  *int              `json:"elevation_gain_m"`
	ElevationLossM  *int              `json:"elevation_loss_m"`
	Circular        bool              `json:"circular"`
	Geometry        *geojson.Geometry `json:"geometry"`
}

// stopDTO is one row of the /transport-stops response.
type stopDTO struct {
	ID       int64             `json:"id"`
	Name     *string           `json:"name"`
	Geometry *geojson.Geometry `json:"geometry"`
}

// decodeTrails accepts either a JSON array of hikes or a GeoJSON
// FeatureCollection of trail features.
func decodeTrails(body []byte) ([]domain.Trail, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty body: %w", domain.ErrDecode)
	}

	if trimmed[0] == '{' {
		fc, err := geojson.UnmarshalFeatureCollection(trimmed)
		if err != nil {
			return nil, fmt.Errorf("feature collection: %w: %v", domain.ErrDecode, err)
		}
		trails := make([]domain.Trail, 0, len(fc.Features))
		for i, f := range fc.Features {
			trails = append(trails, featureToTrail(i, f))
		}
		return trails, nil
	}

	var rows []hikeDTO
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, fmt.Errorf("hikes: %w: %v", domain.ErrDecode, err)
	}
	trails := make([]domain.Trail, 0, len(rows))
	for _, r := range rows {
		t := domain.Trail{
			ID:              r.ID,
			ExternalID:      r.OdhID,
			Difficulty:      r.Difficulty,
			LengthKm:        r.LengthKm,
			DurationMinutes: r.DurationMinutes,
			ElevationGainM:  r.ElevationGainM,
			ElevationLossM:  r.ElevationLossM,
			Circular:        r.Circular,
		}
		if r.Name != nil {
			t.Name = *r.Name
		}
		if r.Description != nil {
			t.Description = *r.Description
		}
		if t.Name == "" {
			t.Name = defaultTrailName(t)
		}
		if r.Geometry != nil {
			t.Path = geospatial.FlattenLines(r.Geometry.Geometry())
		}
		trails = append(trails, t)
	}
	return trails, nil
}

func featureToTrail(i int, f *geojson.Feature) domain.Trail {
	p := f.Properties
	t := domain.Trail{
		ID:          int64(i),
		ExternalID:  p.MustString("odh_id", ""),
		Name:        p.MustString("name", ""),
		Description: p.MustString("description", ""),
		Circular:    p.MustBool("circular", false),
	}

	switch {
	case hasNumber(p, "id"):
		t.ID = int64(p.MustFloat64("id"))
	case hasNumber(p, "path_id"):
		t.ID = int64(p.MustFloat64("path_id"))
	default:
		if id, ok := featureID(f.ID); ok {
			t.ID = id
		}
	}

	if s, ok := p["difficulty"].(string); ok {
		t.Difficulty = &s
	}
	if hasNumber(p, "length_km") {
		v := p.MustFloat64("length_km")
		t.LengthKm = &v
	} else if hasNumber(p, "total_distance_km") {
		v := p.MustFloat64("total_distance_km")
		t.LengthKm = &v
	}
	t.DurationMinutes = intProp(p, "duration_minutes")
	t.ElevationGainM = intProp(p, "elevation_gain_m")
	t.ElevationLossM = intProp(p, "elevation_loss_m")

	t.Path = geospatial.FlattenLines(f.Geometry)
	if !p.MustBool("circular", false) && len(t.Path) > 1 {
		t.Circular = t.Path[0] == t.Path[len(t.Path)-1]
	}
	if t.Name == "" {
		t.Name = defaultTrailName(t)
	}
	return t
}

func decodeStops(body []byte) ([]domain.Stop, error) {
	var rows []stopDTO
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("transport stops: %w: %v", domain.ErrDecode, err)
	}

	stops := make([]domain.Stop, 0, len(rows))
	for _, r := range rows {
		if r.Geometry == nil {
			continue
		}
		pt, ok := r.Geometry.Geometry().(orb.Point)
		if !ok {
			continue
		}
		s := domain.Stop{
			ID:       r.ID,
			Location: domain.GeoPoint{Lat: pt.Lat(), Lon: pt.Lon()},
		}
		if r.Name != nil {
			s.Name = *r.Name
		}
		stops = append(stops, s)
	}
	return stops, nil
}

func hasNumber(p geojson.Properties, key string) bool {
	_, ok := p[key].(float64)
	return ok
}

func intProp(p geojson.Properties, key string) *int {
	if !hasNumber(p, key) {
		return nil
	}
	v := int(p.MustFloat64(key))
	return &v
}

func featureID(id interface{}) (int64, bool) {
	switch v := id.(type) {
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func defaultTrailName(t domain.Trail) string {
	if t.ExternalID != "" {
		return "Trail " + t.ExternalID
	}
	return "Trail " + strconv.FormatInt(t.ID, 10)
}
