// Package geospatial holds the distance and camera-target helpers used on
// stop and trail coordinates.
package geospatial

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/Hogigo/Bus2Hike/internal/core/domain"
)

// Haversine returns the great-circle distance in meters between two
// lat/lon pairs.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	return geo.DistanceHaversine(orb.Point{lon1, lat1}, orb.Point{lon2, lat2})
}

// Distance is Haversine over two GeoPoints.
func Distance(a, b domain.GeoPoint) float64 {
	return geo.DistanceHaversine(toPoint(a), toPoint(b))
}

// BoundingBox returns the box reaching radiusMeters from (lat, lon) in
// every compass direction.
func BoundingBox(lat, lon, radiusMeters float64) domain.Bounds {
	return fromBound(geo.NewBoundAroundPoint(orb.Point{lon, lat}, radiusMeters))
}

func toPoint(p domain.GeoPoint) orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

func fromBound(b orb.Bound) domain.Bounds {
	return domain.Bounds{MinLat: b.Min.Lat(), MinLon: b.Min.Lon(), MaxLat: b.Max.Lat(), MaxLon: b.Max.Lon()}
}
