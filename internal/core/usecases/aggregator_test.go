package usecases_test

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/core/ports"
	"github.com/samirrijal/forestlens/internal/core/usecases"
	"github.com/samirrijal/forestlens/internal/pkg/retry"
)

var testGeostore = domain.Geostore{ID: "test-geostore-id", AreaHa: 100}

func TestAggregate_PartialFailureKeepsOrder(t *testing.T) {
	set := newMockSet()
	set.analytics.callFn = func(ctx context.Context, req ports.UpstreamRequest) (*ports.RawResponse, error) {
		switch req.Path {
		case "/v2/alerts/test-geostore-id":
			return nil, failWith(http.StatusInternalServerError)
		case "/v2/climate/test-geostore-id":
			return ok(`{"data":{"attributes":null}}`), nil
		default:
			return ok(`{"data":{"attributes":{"path":"` + req.Path + `"}}}`), nil
		}
	}

	got := usecases.NewAggregator(set, retry.None).
		Aggregate(context.Background(), testGeostore, domain.DateRange{}, usecases.AnalyzeDatasets())

	wantNames := []string{"forest", "alerts", "biodiversity", "climate"}
	wantPresent := []bool{true, false, true, false}
	if len(got) != len(wantNames) {
		t.Fatalf("expected %d results, got %d", len(wantNames), len(got))
	}
	for i := range wantNames {
		if got[i].Name != wantNames[i] || got[i].Present != wantPresent[i] {
			t.Errorf("result %d: expected %s present=%v, got %+v", i, wantNames[i], wantPresent[i], got[i])
		}
	}
	if string(got[0].Payload) != `{"path":"/v2/forest/test-geostore-id"}` {
		t.Errorf("payload must be passed through verbatim, got %s", got[0].Payload)
	}
}

func TestAggregate_StartsAllBeforeAwaiting(t *testing.T) {
	const n = 4
	var started sync.WaitGroup
	started.Add(n)
	allStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(allStarted)
	}()

	set := newMockSet()
	set.analytics.callFn = func(ctx context.Context, req ports.UpstreamRequest) (*ports.RawResponse, error) {
		started.Done()
		select {
		case <-allStarted:
			return ok(`{"data":{"attributes":{}}}`), nil
		case <-time.After(2 * time.Second):
			return nil, failWith(http.StatusGatewayTimeout)
		}
	}

	got := usecases.NewAggregator(set, retry.None).
		Aggregate(context.Background(), testGeostore, domain.DateRange{}, usecases.AnalyzeDatasets())

	for _, r := range got {
		if !r.Present {
			t.Errorf("%s: calls did not run concurrently", r.Name)
		}
	}
}

func TestAggregate_FailureDoesNotCancelSiblings(t *testing.T) {
	set := newMockSet()
	set.data.callFn = func(ctx context.Context, req ports.UpstreamRequest) (*ports.RawResponse, error) {
		if req.Path == "/dataset/glad-alerts/area" {
			return nil, failWith(http.StatusUnauthorized)
		}
		time.Sleep(20 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return ok(`{"data":[{"count":3}]}`), nil
	}

	got := usecases.NewAggregator(set, retry.None).
		Aggregate(context.Background(), testGeostore, domain.DateRange{}, usecases.AlertDatasets())

	if got[0].Present {
		t.Error("deforestation should be missing")
	}
	if !got[1].Present || string(got[1].Payload) != `[{"count":3}]` {
		t.Errorf("fire should survive its sibling's failure, got %+v", got[1])
	}
}

func TestAggregate_RetriesTransientOnly(t *testing.T) {
	policy := retry.Policy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

	var flaky, limited atomic.Int32
	set := newMockSet()
	set.data.callFn = func(ctx context.Context, req ports.UpstreamRequest) (*ports.RawResponse, error) {
		switch req.Path {
		case "/dataset/glad-alerts/area":
			if flaky.Add(1) < 3 {
				return nil, failWith(http.StatusServiceUnavailable)
			}
			return ok(`{"data":{"ok":true}}`), nil
		default:
			limited.Add(1)
			return nil, failWith(http.StatusTooManyRequests)
		}
	}

	got := usecases.NewAggregator(set, policy).
		Aggregate(context.Background(), testGeostore, domain.DateRange{}, usecases.AlertDatasets())

	if !got[0].Present || flaky.Load() != 3 {
		t.Errorf("expected 503s to be retried into success, present=%v calls=%d", got[0].Present, flaky.Load())
	}
	if got[1].Present || limited.Load() != 1 {
		t.Errorf("rate limits must not be retried, calls=%d", limited.Load())
	}
}

func TestDatasets_QueryParameters(t *testing.T) {
	closed := domain.DateRange{Start: "2020-01-01", End: "2021-01-01"}
	open := domain.DateRange{Start: "2020-01-01"}

	fl := usecases.ForestLossDatasets()[0]
	if q := fl.Request(testGeostore, open).Query; q.Get("period") != "2001-2022" || q.Get("threshold") != "30" {
		t.Errorf("unexpected forest loss query %v", q)
	}
	if q := fl.Request(testGeostore, closed).Query; q.Get("period") != "2020-01-01,2021-01-01" {
		t.Errorf("unexpected forest loss period %v", q)
	}

	alert := usecases.AlertDatasets()[1]
	req := alert.Request(testGeostore, open)
	if req.Path != "/dataset/fire-alerts/area" || req.Query.Has("period") || req.Query.Get("geostore") != "test-geostore-id" {
		t.Errorf("unexpected alert request %+v", req)
	}

	forest := usecases.AnalyzeDatasets()[0]
	want := url.Values{"start-date": {"2020-01-01"}}
	if got := forest.Request(testGeostore, open).Query; got.Encode() != want.Encode() {
		t.Errorf("expected %v, got %v", want, got)
	}
}
