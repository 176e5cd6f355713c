package usecases

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/core/ports"
	"github.com/samirrijal/forestlens/internal/pkg/logging"
	"github.com/samirrijal/forestlens/internal/pkg/metrics"
	"github.com/samirrijal/forestlens/internal/pkg/validation"
)

// Tier is a cache freshness class.
type Tier int

const (
	TierShort Tier = iota
	TierMedium
	TierLong
)

// TTL is how long a response in this tier stays fresh.
func (t Tier) TTL() time.Duration {
	switch t {
	case TierShort:
		return 5 * time.Minute
	case TierLong:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

func (t Tier) String() string {
	switch t {
	case TierShort:
		return "short"
	case TierLong:
		return "long"
	default:
		return "medium"
	}
}

// TierFor returns the freshness class of an endpoint. Alerts change quickly,
// forest loss and geostores barely at all.
func TierFor(e domain.Endpoint) Tier {
	switch e {
	case domain.EndpointAlerts:
		return TierShort
	case domain.EndpointForestLoss, domain.EndpointGeostoreID:
		return TierLong
	default:
		return TierMedium
	}
}

// RegionKey is the cache key of a region request. Coordinates are rendered
// at fixed precision and dates in one form, so equivalent inputs ("1" and
// "1.0", "2024-01-01" and "2024-01-01T00:00:00Z") share a key.
func RegionKey(e domain.Endpoint, q domain.RegionQuery) string {
	return strings.Join([]string{
		"gfw",
		string(e),
		canonical(q.Coordinate.Lat, 6),
		canonical(q.Coordinate.Lng, 6),
		canonical(q.RadiusMeters, 1),
		canonicalDate(q.DateRange.Start),
		canonicalDate(q.DateRange.End),
	}, ":")
}

// IDKey is the cache key of a by-id request.
func IDKey(e domain.Endpoint, id string, dr domain.DateRange) string {
	return strings.Join([]string{"gfw", string(e), id, canonicalDate(dr.Start), canonicalDate(dr.End)}, ":")
}

// canonicalDate renders an ISO-8601 date or timestamp in UTC: a bare date
// when it falls on midnight, RFC 3339 otherwise. Unparseable input is kept.
func canonicalDate(s string) string {
	if s == "" {
		return ""
	}
	t, ok := validation.ParseISODate(s)
	if !ok {
		return s
	}
	t = t.UTC()
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339Nano)
}

// canonical formats v with prec decimals; negative zero renders as zero.
func canonical(v float64, prec int) string {
	s := strconv.FormatFloat(v, 'f', prec, 64)
	if strings.HasPrefix(s, "-") && strings.Trim(s, "-0.") == "" {
		s = s[1:]
	}
	return s
}

// ResponseCache stores fully rendered response bodies. Backend failures are
// logged and treated as misses; the cache never fails a request.
type ResponseCache struct {
	backend ports.CacheService
}

// NewResponseCache wraps backend. A nil backend disables caching.
func NewResponseCache(backend ports.CacheService) *ResponseCache {
	return &ResponseCache{backend: backend}
}

// Get returns the stored body for key.
func (c *ResponseCache) Get(ctx context.Context, key string, tier Tier) ([]byte, bool) {
	if c == nil || c.backend == nil {
		return nil, false
	}
	b, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ports.ErrCacheMiss) {
			logging.FromContext(ctx).Warn("cache get failed", "key", key, "error", err)
		}
		metrics.CacheMisses.WithLabelValues(tier.String()).Inc()
		return nil, false
	}
	metrics.CacheHits.WithLabelValues(tier.String()).Inc()
	return b, true
}

// Put stores body under key for the tier's TTL.
func (c *ResponseCache) Put(ctx context.Context, key string, body []byte, tier Tier) {
	if c == nil || c.backend == nil {
		return
	}
	if err := c.backend.Set(ctx, key, body, tier.TTL()); err != nil {
		logging.FromContext(ctx).Warn("cache set failed", "key", key, "error", err)
	}
}
