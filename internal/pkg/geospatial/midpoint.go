package geospatial

import (
	"github.com/paulmach/orb"

	"github.com/Hogigo/Bus2Hike/internal/core/domain"
)

// TargetMethod selects how a trail's representative point is computed.
type TargetMethod int

const (
	// ByIndex picks the middle element of the path.
	ByIndex TargetMethod = iota
	// ByBoundingBox picks the centre of the path's bounding box.
	ByBoundingBox
)

func (m TargetMethod) String() string {
	if m == ByBoundingBox {
		return "bounding-box"
	}
	return "index"
}

// MidpointByIndex returns path[len/2]. ok is false for an empty path.
func MidpointByIndex(path []domain.GeoPoint) (p domain.GeoPoint, ok bool) {
	if len(path) == 0 {
		return domain.GeoPoint{}, false
	}
	return path[len(path)/2], true
}

// MidpointByBoundingBox returns the centre of the axis-aligned box around
// every point of path, or the zero point for an empty path.
func MidpointByBoundingBox(path []domain.GeoPoint) domain.GeoPoint {
	if len(path) == 0 {
		return domain.GeoPoint{}
	}
	c := toLineString(path).Bound().Center()
	return domain.GeoPoint{Lat: c.Lat(), Lon: c.Lon()}
}

// PathBounds returns the bounding box of path. The zero box for an empty path.
func PathBounds(path []domain.GeoPoint) domain.Bounds {
	if len(path) == 0 {
		return domain.Bounds{}
	}
	return fromBound(toLineString(path).Bound())
}

// TrailTarget returns the camera target for a trail path using method.
// An empty path yields the zero point and domain.ErrInvalidGeometry.
func TrailTarget(path []domain.GeoPoint, method TargetMethod) (domain.GeoPoint, error) {
	if len(path) == 0 {
		return domain.GeoPoint{}, domain.ErrInvalidGeometry
	}
	if method == ByBoundingBox {
		return MidpointByBoundingBox(path), nil
	}
	p, _ := MidpointByIndex(path)
	return p, nil
}

// orb points are [lon, lat].
func toLineString(path []domain.GeoPoint) orb.LineString {
	ls := make(orb.LineString, len(path))
	for i, p := range path {
		ls[i] = orb.Point{p.Lon, p.Lat}
	}
	return ls
}

// FromLineString converts an orb line string into path points.
func FromLineString(ls orb.LineString) []domain.GeoPoint {
	path := make([]domain.GeoPoint, len(ls))
	for i, p := range ls {
		path[i] = domain.GeoPoint{Lat: p.Lat(), Lon: p.Lon()}
	}
	return path
}

// FlattenLines joins the parts of a LineString or MultiLineString into one
// path. Other geometry types yield nil.
func FlattenLines(g orb.Geometry) []domain.GeoPoint {
	switch geom := g.(type) {
	case orb.LineString:
		return FromLineString(geom)
	case orb.MultiLineString:
		var out []domain.GeoPoint
		for _, ls := range geom {
			out = append(out, FromLineString(ls)...)
		}
		return out
	default:
		return nil
	}
}
