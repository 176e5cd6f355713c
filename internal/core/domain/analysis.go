package domain

import (
	"bytes"
	"time"

	"github.com/goccy/go-json"
)

// Radius bounds and default, in meters.
const (
	MinRadiusMeters     = 100
	MaxRadiusMeters     = 100000
	DefaultRadiusMeters = 10000
)

// DateRange is an optional ISO-8601 interval. Either side may be empty.
type DateRange struct {
	Start string `json:"startDate,omitempty"`
	End   string `json:"endDate,omitempty"`
}

// Closed reports whether both ends are set.
func (d DateRange) Closed() bool {
	return d.Start != "" && d.End != ""
}

// Period renders a closed range the way the GFW data API expects ("start,end").
func (d DateRange) Period() string {
	if !d.Closed() {
		return ""
	}
	return d.Start + "," + d.End
}

// RegionQuery is the validated, request-scoped input of every region endpoint.
type RegionQuery struct {
	Coordinate   Coordinate
	RadiusMeters float64
	DateRange    DateRange
}

// Geostore is the upstream handle for a resolved region.
type Geostore struct {
	ID     string  `json:"id"`
	AreaHa float64 `json:"areaHa"`
	BBox   BBox    `json:"bbox,omitempty"`
}

// DatasetResult is the outcome of one dataset call. Present is false when the
// call failed or returned nothing; the payload is then empty. Payload holds
// the upstream JSON verbatim.
type DatasetResult struct {
	Name    string
	Payload json.RawMessage
	Present bool
}

// HasPayload reports whether the result carries renderable JSON.
func (d DatasetResult) HasPayload() bool {
	return d.Present && len(d.Payload) > 0 && !bytes.Equal(d.Payload, []byte("null"))
}

// Datasets keeps results in request order.
type Datasets []DatasetResult

// Get returns the named result.
func (ds Datasets) Get(name string) (DatasetResult, bool) {
	for _, d := range ds {
		if d.Name == name {
			return d, true
		}
	}
	return DatasetResult{}, false
}

// Missing lists the datasets that came back without a payload, in order.
func (ds Datasets) Missing() []string {
	var out []string
	for _, d := range ds {
		if !d.Present {
			out = append(out, d.Name)
		}
	}
	return out
}

// MarshalJSON renders the results as one object keyed by dataset name, in
// slice order. Missing payloads render as {}.
func (ds Datasets) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, d := range ds {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(d.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')

		if !d.HasPayload() {
			buf.WriteString("{}")
			continue
		}
		buf.Write(d.Payload)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Metadata describes when and against which API version an envelope was built.
type Metadata struct {
	Timestamp string     `json:"timestamp"`
	Version   string     `json:"version"`
	DateRange *DateRange `json:"dateRange,omitempty"`
}

// NewMetadata stamps the envelope. The date range is only echoed when closed.
func NewMetadata(now time.Time, version string, dr DateRange) Metadata {
	m := Metadata{
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Version:   version,
	}
	if dr.Closed() {
		r := dr
		m.DateRange = &r
	}
	return m
}

// AnalysisEnvelope is the unit returned to callers and stored in the cache.
type AnalysisEnvelope struct {
	Coordinates Coordinate
	Radius      float64
	Geostore    Geostore
	Datasets    Datasets
	Metadata    Metadata
}

// Endpoint names the logical gateway operation. It is part of every cache key
// and decides which key the datasets are rendered under.
type Endpoint string

const (
	EndpointAnalyze    Endpoint = "analyze"
	EndpointForestLoss Endpoint = "forest-loss"
	EndpointAlerts     Endpoint = "alerts"
	EndpointAnalysisID Endpoint = "analysis-by-id"
	EndpointGeostoreID Endpoint = "geostore-by-id"
)

// DatasetsKey is the JSON key the endpoint's datasets are rendered under.
func (e Endpoint) DatasetsKey() string {
	switch e {
	case EndpointForestLoss:
		return "forestLoss"
	case EndpointAlerts:
		return "alerts"
	default:
		return "analysis"
	}
}

// Render builds the {"data": ...} response body for a region endpoint. Keys
// are written as coordinates, radius, geostore, datasets, metadata.
func (env AnalysisEnvelope) Render(e Endpoint) ([]byte, error) {
	var datasets any = env.Datasets
	// forest-loss carries a single dataset; render its payload directly.
	if e == EndpointForestLoss && len(env.Datasets) == 1 {
		d := env.Datasets[0]
		if d.HasPayload() {
			datasets = d.Payload
		} else {
			datasets = json.RawMessage("{}")
		}
	}

	fields := []struct {
		key   string
		value any
	}{
		{"coordinates", env.Coordinates},
		{"radius", env.Radius},
		{"geostore", env.Geostore},
		{e.DatasetsKey(), datasets},
		{"metadata", env.Metadata},
	}

	var buf bytes.Buffer
	buf.WriteString(`{"data":{`)
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		v, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`"` + f.key + `":`)
		buf.Write(v)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// AnalysisCompleted is published after a fresh (uncached) response was built.
type AnalysisCompleted struct {
	Endpoint   Endpoint        `json:"endpoint"`
	CacheKey   string          `json:"cache_key"`
	Coordinate Coordinate      `json:"coordinate"`
	Radius     float64         `json:"radius"`
	GeostoreID string          `json:"geostore_id"`
	AreaHa     float64         `json:"area_ha"`
	DateRange  DateRange       `json:"date_range"`
	Datasets   map[string]bool `json:"datasets"`
	BuiltAt    time.Time       `json:"built_at"`
}
