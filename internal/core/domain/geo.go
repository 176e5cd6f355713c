package domain

// Coordinate is a validated WGS 84 point. Only the input validator builds one.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BBox is a bounding box in [minx, miny, maxx, maxy] order, as GFW returns it.
type BBox []float64

// Polygon is a GeoJSON polygon geometry.
type Polygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}
