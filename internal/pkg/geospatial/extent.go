package geospatial

import "math"

const earthRadiusMeters = 6371000.0

// metersPerDegree is the length of one degree of latitude.
const metersPerDegree = 111320.0

// Extent returns the bounding box of a circle in GFW order
// [minLon, minLat, maxLon, maxLat], clamped to WGS 84. A circle that reaches
// a pole spans every longitude.
func Extent(lat, lon, radiusMeters float64) [4]float64 {
	latDelta := radiusMeters / metersPerDegree
	minLat := math.Max(lat-latDelta, -90)
	maxLat := math.Min(lat+latDelta, 90)

	cos := math.Cos(toRad(lat))
	if minLat == -90 || maxLat == 90 || cos < 1e-9 {
		return [4]float64{-180, minLat, 180, maxLat}
	}
	lonDelta := radiusMeters / (metersPerDegree * cos)
	return [4]float64{
		math.Max(lon-lonDelta, -180),
		minLat,
		math.Min(lon+lonDelta, 180),
		maxLat,
	}
}

// CircleAreaHa is the area of a circle of radiusMeters in hectares.
func CircleAreaHa(radiusMeters float64) float64 {
	return math.Pi * radiusMeters * radiusMeters / 10000
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
