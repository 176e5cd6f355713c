package domain_test

import (
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/samirrijal/forestlens/internal/core/domain"
)

func TestDatasets_MarshalKeepsRequestOrder(t *testing.T) {
	ds := domain.Datasets{
		{Name: "forest", Payload: json.RawMessage(`{"loss":3}`), Present: true},
		{Name: "alerts", Present: false},
		{Name: "biodiversity", Payload: json.RawMessage(`{"species":12}`), Present: true},
	}

	b, err := json.Marshal(ds)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"forest":{"loss":3},"alerts":{},"biodiversity":{"species":12}}`
	if string(b) != want {
		t.Errorf("expected %s, got %s", want, b)
	}
}

func TestDatasets_Get(t *testing.T) {
	ds := domain.Datasets{{Name: "fire", Present: true}}
	if _, ok := ds.Get("fire"); !ok {
		t.Error("expected fire to be found")
	}
	if _, ok := ds.Get("deforestation"); ok {
		t.Error("did not expect deforestation")
	}
}

func TestNewMetadata_DateRangeOnlyWhenClosed(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	open := domain.NewMetadata(now, "v3", domain.DateRange{Start: "2023-01-01"})
	if open.DateRange != nil {
		t.Error("open range must not be echoed")
	}

	closed := domain.NewMetadata(now, "v3", domain.DateRange{Start: "2023-01-01", End: "2023-06-01"})
	if closed.DateRange == nil || closed.DateRange.End != "2023-06-01" {
		t.Fatalf("expected closed range, got %+v", closed.DateRange)
	}
	if closed.Timestamp != "2024-03-01T12:00:00Z" {
		t.Errorf("unexpected timestamp %q", closed.Timestamp)
	}
}

func TestDateRange_Period(t *testing.T) {
	if p := (domain.DateRange{Start: "2020-01-01", End: "2021-01-01"}).Period(); p != "2020-01-01,2021-01-01" {
		t.Errorf("unexpected period %q", p)
	}
	if p := (domain.DateRange{End: "2021-01-01"}).Period(); p != "" {
		t.Errorf("expected empty period, got %q", p)
	}
}

func TestEnvelope_RenderUsesEndpointKey(t *testing.T) {
	env := domain.AnalysisEnvelope{
		Coordinates: domain.Coordinate{Lat: 1, Lng: 2},
		Radius:      500,
		Geostore:    domain.Geostore{ID: "g1", AreaHa: 10},
		Datasets: domain.Datasets{
			{Name: "deforestation", Payload: json.RawMessage(`{"alerts":10}`), Present: true},
			{Name: "fire", Present: false},
		},
		Metadata: domain.Metadata{Timestamp: "t", Version: "v3"},
	}

	b, err := env.Render(domain.EndpointAlerts)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(string(b), `"alerts":{"deforestation":{"alerts":10},"fire":{}}`) {
		t.Errorf("unexpected body %s", b)
	}
}

func TestEnvelope_RenderKeyOrder(t *testing.T) {
	env := domain.AnalysisEnvelope{
		Coordinates: domain.Coordinate{Lat: 1, Lng: 2},
		Radius:      500,
		Geostore:    domain.Geostore{ID: "g1"},
		Datasets: domain.Datasets{
			{Name: "umd_tree_cover_loss", Payload: json.RawMessage(`{"area":42}`), Present: true},
		},
		Metadata: domain.Metadata{Timestamp: "t", Version: "v3"},
	}

	for _, e := range []domain.Endpoint{domain.EndpointAnalyze, domain.EndpointForestLoss, domain.EndpointAlerts} {
		b, err := env.Render(e)
		if err != nil {
			t.Fatalf("render %s: %v", e, err)
		}
		body := string(b)
		if !strings.HasPrefix(body, `{"data":{"coordinates":`) {
			t.Errorf("%s: coordinates must come first, got %s", e, body)
		}
		keys := []string{`"coordinates":`, `"radius":`, `"geostore":`, `"` + e.DatasetsKey() + `":`, `"metadata":`}
		last := -1
		for _, k := range keys {
			i := strings.Index(body, k)
			if i <= last {
				t.Errorf("%s: key %s out of order in %s", e, k, body)
			}
			last = i
		}
		var decoded map[string]map[string]any
		if err := json.Unmarshal(b, &decoded); err != nil {
			t.Errorf("%s: body is not valid JSON: %v", e, err)
		}
	}
}

func TestEnvelope_RenderForestLossFlattensPayload(t *testing.T) {
	env := domain.AnalysisEnvelope{
		Geostore: domain.Geostore{ID: "g1"},
		Datasets: domain.Datasets{
			{Name: "umd_tree_cover_loss", Payload: json.RawMessage(`{"area":42}`), Present: true},
		},
	}

	b, err := env.Render(domain.EndpointForestLoss)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(string(b), `"forestLoss":{"area":42}`) {
		t.Errorf("unexpected body %s", b)
	}

	env.Datasets[0] = domain.DatasetResult{Name: "umd_tree_cover_loss"}
	b, _ = env.Render(domain.EndpointForestLoss)
	if !strings.Contains(string(b), `"forestLoss":{}`) {
		t.Errorf("expected empty forestLoss, got %s", b)
	}
}
