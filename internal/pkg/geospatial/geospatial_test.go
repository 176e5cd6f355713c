package geospatial

import (
	"math"
	"testing"
)

// distance is the great-circle distance in meters.
func distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func TestExtent_ContainsPoint(t *testing.T) {
	bb := Extent(10, 20, 1000)
	if !(bb[0] < 20 && bb[2] > 20 && bb[1] < 10 && bb[3] > 10) {
		t.Errorf("extent does not contain center: %v", bb)
	}
}

func TestExtent_ClampsAtPole(t *testing.T) {
	bb := Extent(89.99, 10, 5000)
	if bb[3] != 90 || bb[0] != -180 || bb[2] != 180 {
		t.Errorf("expected full longitude span up to the pole, got %v", bb)
	}
	for _, v := range bb {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			t.Fatalf("non-finite extent %v", bb)
		}
	}
}

func TestExtent_ClampsAtAntimeridian(t *testing.T) {
	bb := Extent(0, 179.99, 5000)
	if bb[2] != 180 {
		t.Errorf("expected maxLon clamped to 180, got %v", bb[2])
	}
}

func TestCircleAreaHa(t *testing.T) {
	// 10 km radius: pi * 1e8 m2 = 31415.9 ha
	if got := CircleAreaHa(10000); math.Abs(got-31415.93) > 0.01 {
		t.Errorf("unexpected area %.2f", got)
	}
}

func TestCirclePolygon_ClosedRingAtRadius(t *testing.T) {
	ring := CirclePolygon(43.26, -2.93, 10000, 32)
	if len(ring) != 33 {
		t.Fatalf("expected 33 points, got %d", len(ring))
	}
	if ring[0] != ring[len(ring)-1] {
		t.Error("ring is not closed")
	}
	for _, p := range ring[:len(ring)-1] {
		d := distance(43.26, -2.93, p[1], p[0])
		if math.Abs(d-10000) > 10 {
			t.Errorf("vertex %v is %.1fm from center", p, d)
		}
	}
}

func TestCirclePolygon_MinimumSegments(t *testing.T) {
	if ring := CirclePolygon(0, 0, 100, 3); len(ring) != 9 {
		t.Errorf("expected 9 points, got %d", len(ring))
	}
}

func TestCirclePolygon_WrapsAntimeridian(t *testing.T) {
	for _, p := range CirclePolygon(0, 179.99, 5000, 16) {
		if p[0] > 180 || p[0] < -180 {
			t.Errorf("longitude out of range: %v", p[0])
		}
	}
}
