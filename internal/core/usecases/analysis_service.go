package usecases

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/core/ports"
	"github.com/samirrijal/forestlens/internal/pkg/logging"
	"github.com/samirrijal/forestlens/internal/pkg/metrics"
	"github.com/samirrijal/forestlens/internal/pkg/retry"
)

const publishTimeout = 2 * time.Second

// AnalysisService runs the gateway pipeline: cache lookup, geostore
// resolution, dataset fan-out, rendering and cache store. Inputs are already
// validated.
type AnalysisService struct {
	resolver   *GeostoreResolver
	aggregator *Aggregator
	data       ports.Upstream
	cache      *ResponseCache
	events     ports.EventPublisher
	version    string
	now        func() time.Time
}

// ServiceOption customises an AnalysisService.
type ServiceOption func(*AnalysisService)

// WithClock replaces time.Now for metadata timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *AnalysisService) { s.now = now }
}

// WithEvents publishes an AnalysisCompleted event for every fresh response.
func WithEvents(p ports.EventPublisher) ServiceOption {
	return func(s *AnalysisService) { s.events = p }
}

// WithVersion sets the API version echoed in metadata.
func WithVersion(v string) ServiceOption {
	return func(s *AnalysisService) { s.version = v }
}

// NewAnalysisService wires the pipeline over both upstream families.
func NewAnalysisService(upstreams ports.UpstreamSet, cache *ResponseCache, policy retry.Policy, opts ...ServiceOption) *AnalysisService {
	s := &AnalysisService{
		resolver:   NewGeostoreResolver(upstreams.For(ports.FamilyAnalytics)),
		aggregator: NewAggregator(upstreams, policy),
		data:       upstreams.For(ports.FamilyData),
		cache:      cache,
		version:    "v3",
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Version is the API version echoed in metadata.
func (s *AnalysisService) Version() string { return s.version }

// Analyze returns the combined forest, alerts, biodiversity and climate view.
func (s *AnalysisService) Analyze(ctx context.Context, q domain.RegionQuery) ([]byte, error) {
	return s.region(ctx, domain.EndpointAnalyze, q, AnalyzeDatasets())
}

// ForestLoss returns tree cover loss for the region.
func (s *AnalysisService) ForestLoss(ctx context.Context, q domain.RegionQuery) ([]byte, error) {
	return s.region(ctx, domain.EndpointForestLoss, q, ForestLossDatasets())
}

// Alerts returns deforestation and fire alerts for the region.
func (s *AnalysisService) Alerts(ctx context.Context, q domain.RegionQuery) ([]byte, error) {
	return s.region(ctx, domain.EndpointAlerts, q, AlertDatasets())
}

func (s *AnalysisService) region(ctx context.Context, e domain.Endpoint, q domain.RegionQuery, datasets []Dataset) ([]byte, error) {
	key := RegionKey(e, q)
	tier := TierFor(e)
	if body, ok := s.cache.Get(ctx, key, tier); ok {
		return body, nil
	}

	upCtx, cancel := detach(ctx)
	defer cancel()

	g, err := s.resolver.Resolve(upCtx, q)
	if err != nil {
		if errors.Is(upCtx.Err(), context.DeadlineExceeded) {
			return nil, domain.Wrap(domain.CodeTimeout, "Request timed out", err)
		}
		return nil, err
	}
	results := s.aggregator.Aggregate(upCtx, g, q.DateRange, datasets)

	env := domain.AnalysisEnvelope{
		Coordinates: q.Coordinate,
		Radius:      q.RadiusMeters,
		Geostore:    g,
		Datasets:    results,
		Metadata:    domain.NewMetadata(s.now(), s.version, q.DateRange),
	}
	body, err := env.Render(e)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "Failed to encode response", err)
	}
	storeCtx := context.WithoutCancel(ctx)
	// A degraded body is served once but never pinned for the tier's TTL.
	if missing := results.Missing(); len(missing) == 0 {
		s.cache.Put(storeCtx, key, body, tier)
	} else {
		logging.FromContext(ctx).Warn("partial result not cached",
			"endpoint", e, "missing", missing, "geostore", g.ID)
	}

	present := make(map[string]bool, len(results))
	for _, r := range results {
		present[r.Name] = r.Present
	}
	s.publish(storeCtx, &domain.AnalysisCompleted{
		Endpoint:   e,
		CacheKey:   key,
		Coordinate: q.Coordinate,
		Radius:     q.RadiusMeters,
		GeostoreID: g.ID,
		AreaHa:     g.AreaHa,
		DateRange:  q.DateRange,
		Datasets:   present,
		BuiltAt:    s.now().UTC(),
	})
	return body, nil
}

// AnalysisByID passes the upstream analysis of an existing geostore through
// unchanged. Any upstream failure becomes ANALYSIS_ERROR.
func (s *AnalysisService) AnalysisByID(ctx context.Context, id string, dr domain.DateRange) ([]byte, error) {
	key := IDKey(domain.EndpointAnalysisID, id, dr)
	tier := TierFor(domain.EndpointAnalysisID)
	if body, ok := s.cache.Get(ctx, key, tier); ok {
		return body, nil
	}

	q := url.Values{}
	if dr.Start != "" {
		q.Set("start_date", dr.Start)
	}
	if dr.End != "" {
		q.Set("end_date", dr.End)
	}

	upCtx, cancel := detach(ctx)
	defer cancel()
	resp, err := s.data.Call(upCtx, ports.UpstreamRequest{
		Method: http.MethodGet,
		Path:   "/analysis/" + url.PathEscape(id),
		Query:  q,
	})
	if err != nil {
		return nil, domain.Wrap(domain.CodeAnalysis, "Failed to fetch analysis data", err)
	}
	if !json.Valid(resp.Body) {
		return nil, domain.NewError(domain.CodeAnalysis, "Failed to fetch analysis data")
	}

	s.cache.Put(context.WithoutCancel(ctx), key, resp.Body, tier)
	return resp.Body, nil
}

// GeostoreByID returns an existing geostore as {"data":{id,areaHa,bbox}}.
func (s *AnalysisService) GeostoreByID(ctx context.Context, id string) ([]byte, error) {
	key := IDKey(domain.EndpointGeostoreID, id, domain.DateRange{})
	tier := TierFor(domain.EndpointGeostoreID)
	if body, ok := s.cache.Get(ctx, key, tier); ok {
		return body, nil
	}

	upCtx, cancel := detach(ctx)
	defer cancel()
	g, err := s.resolver.Lookup(upCtx, id)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(struct {
		Data domain.Geostore `json:"data"`
	}{g})
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "Failed to encode response", err)
	}

	s.cache.Put(context.WithoutCancel(ctx), key, body, tier)
	return body, nil
}

// detach keeps upstream work alive when the client goes away, so the result
// still lands in the cache. A server-side deadline on ctx still applies.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	up := context.WithoutCancel(ctx)
	if dl, ok := ctx.Deadline(); ok {
		return context.WithDeadline(up, dl)
	}
	return up, func() {}
}

// publish is best effort: a broker failure never fails the request.
func (s *AnalysisService) publish(ctx context.Context, ev *domain.AnalysisCompleted) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := s.events.PublishAnalysisCompleted(ctx, ev); err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		logging.FromContext(ctx).Warn("publish analysis event failed", "endpoint", ev.Endpoint, "error", err)
		return
	}
	metrics.EventsPublished.WithLabelValues("ok").Inc()
}
