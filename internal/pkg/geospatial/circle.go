package geospatial

import "math"

// CirclePolygon approximates a circle of radiusMeters around (lat, lon) as a
// closed GeoJSON ring in [lon, lat] order. segments < 8 is raised to 8.
func CirclePolygon(lat, lon, radiusMeters float64, segments int) [][2]float64 {
	if segments < 8 {
		segments = 8
	}

	angular := radiusMeters / earthRadiusMeters
	latR := toRad(lat)
	lonR := toRad(lon)

	ring := make([][2]float64, 0, segments+1)
	for i := 0; i < segments; i++ {
		bearing := 2 * math.Pi * float64(i) / float64(segments)

		pLat := math.Asin(math.Sin(latR)*math.Cos(angular) +
			math.Cos(latR)*math.Sin(angular)*math.Cos(bearing))
		pLon := lonR + math.Atan2(
			math.Sin(bearing)*math.Sin(angular)*math.Cos(latR),
			math.Cos(angular)-math.Sin(latR)*math.Sin(pLat),
		)

		ring = append(ring, [2]float64{normalizeLon(toDeg(pLon)), toDeg(pLat)})
	}
	return append(ring, ring[0])
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

func normalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
