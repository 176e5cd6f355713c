package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/core/usecases"
)

func TestRegionKey_Canonical(t *testing.T) {
	q := domain.RegionQuery{
		Coordinate:   domain.Coordinate{Lat: 1, Lng: -0.0},
		RadiusMeters: 10000,
		DateRange:    domain.DateRange{Start: "2020-01-01", End: "2021-01-01"},
	}
	got := usecases.RegionKey(domain.EndpointAnalyze, q)
	want := "gfw:analyze:1.000000:0.000000:10000.0:2020-01-01:2021-01-01"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	q2 := q
	q2.Coordinate.Lat = 1.0000000001
	if usecases.RegionKey(domain.EndpointAnalyze, q2) != got {
		t.Error("sub-precision differences must share a key")
	}

	q3 := q
	q3.Coordinate.Lng = -0.0000001
	if usecases.RegionKey(domain.EndpointAnalyze, q3) != got {
		t.Error("values rounding to zero must not render as -0")
	}

	if usecases.RegionKey(domain.EndpointAlerts, q) == got {
		t.Error("endpoint must be part of the key")
	}

	for _, dr := range []domain.DateRange{
		{Start: "2020-01-01T00:00:00Z", End: "2021-01-01T00:00:00Z"},
		{Start: "2020-01-01T02:00:00+02:00", End: "2021-01-01T00:00:00.000Z"},
	} {
		q4 := q
		q4.DateRange = dr
		if k := usecases.RegionKey(domain.EndpointAnalyze, q4); k != got {
			t.Errorf("dates %+v: expected %s, got %s", dr, got, k)
		}
	}

	q5 := q
	q5.DateRange.Start = "2020-01-01T12:30:00+01:00"
	if k := usecases.RegionKey(domain.EndpointAnalyze, q5); k != "gfw:analyze:1.000000:0.000000:10000.0:2020-01-01T11:30:00Z:2021-01-01" {
		t.Errorf("unexpected key for a timestamp with time of day: %s", k)
	}
}

func TestIDKey(t *testing.T) {
	got := usecases.IDKey(domain.EndpointAnalysisID, "abc", domain.DateRange{Start: "2020-01-01"})
	if got != "gfw:analysis-by-id:abc:2020-01-01:" {
		t.Errorf("unexpected key %s", got)
	}
	same := usecases.IDKey(domain.EndpointAnalysisID, "abc", domain.DateRange{Start: "2020-01-01T00:00:00Z"})
	if same != got {
		t.Errorf("equivalent dates must share a key, got %s", same)
	}
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		endpoint domain.Endpoint
		ttl      time.Duration
	}{
		{domain.EndpointAlerts, 5 * time.Minute},
		{domain.EndpointAnalyze, time.Hour},
		{domain.EndpointAnalysisID, time.Hour},
		{domain.EndpointForestLoss, 24 * time.Hour},
		{domain.EndpointGeostoreID, 24 * time.Hour},
	}
	for _, tt := range tests {
		if got := usecases.TierFor(tt.endpoint).TTL(); got != tt.ttl {
			t.Errorf("%s: expected %v, got %v", tt.endpoint, tt.ttl, got)
		}
	}
}

func TestResponseCache_BackendErrorsDegradeToMiss(t *testing.T) {
	backend := &mockCache{
		getFn: func(ctx context.Context, key string) ([]byte, error) {
			return nil, errors.New("connection refused")
		},
		setFn: func(ctx context.Context, key string, value []byte, ttl time.Duration) error {
			return errors.New("connection refused")
		},
	}
	c := usecases.NewResponseCache(backend)

	if _, ok := c.Get(context.Background(), "k", usecases.TierShort); ok {
		t.Error("expected miss on backend error")
	}
	c.Put(context.Background(), "k", []byte("v"), usecases.TierShort)
}

func TestResponseCache_PutUsesTierTTL(t *testing.T) {
	var gotTTL time.Duration
	backend := &mockCache{
		setFn: func(ctx context.Context, key string, value []byte, ttl time.Duration) error {
			gotTTL = ttl
			return nil
		},
	}
	usecases.NewResponseCache(backend).Put(context.Background(), "k", []byte("v"), usecases.TierLong)
	if gotTTL != 24*time.Hour {
		t.Errorf("expected 24h, got %v", gotTTL)
	}
}

func TestResponseCache_NilBackend(t *testing.T) {
	c := usecases.NewResponseCache(nil)
	c.Put(context.Background(), "k", []byte("v"), usecases.TierMedium)
	if _, ok := c.Get(context.Background(), "k", usecases.TierMedium); ok {
		t.Error("nil backend must never hit")
	}
}
