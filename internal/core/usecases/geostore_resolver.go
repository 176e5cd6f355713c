package usecases

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/core/ports"
	"github.com/samirrijal/forestlens/internal/pkg/geospatial"
	"github.com/samirrijal/forestlens/internal/pkg/logging"
	"github.com/samirrijal/forestlens/internal/pkg/metrics"
)

const circleSegments = 64

// GeostoreVariant is one upstream geostore creation endpoint.
type GeostoreVariant struct {
	Name string
	Path string
	// WithPolygon adds a GeoJSON approximation of the circle to the body.
	WithPolygon bool
}

// GeostoreVariants is the fixed fallback order.
var GeostoreVariants = []GeostoreVariant{
	{Name: "area", Path: "/v2/geostore/area"},
	{Name: "polygon", Path: "/v2/geostore/polygon", WithPolygon: true},
	{Name: "generic", Path: "/v2/geostore"},
}

type geostoreBody struct {
	Lat     float64         `json:"lat"`
	Lng     float64         `json:"lng"`
	Radius  float64         `json:"radius"`
	GeoJSON *domain.Polygon `json:"geojson,omitempty"`
}

type geostoreReply struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			AreaHa float64     `json:"areaHa"`
			BBox   domain.BBox `json:"bbox"`
		} `json:"attributes"`
	} `json:"data"`
}

// GeostoreResolver turns a point and radius into an upstream geostore by
// trying each variant in order until one yields an id.
type GeostoreResolver struct {
	upstream ports.Upstream
	variants []GeostoreVariant
}

// NewGeostoreResolver creates a resolver over the analytics API.
func NewGeostoreResolver(upstream ports.Upstream) *GeostoreResolver {
	return &GeostoreResolver{upstream: upstream, variants: GeostoreVariants}
}

// Resolve walks the variant chain. AUTH_ERROR aborts it at once; any other
// failure moves on to the next variant. When every variant failed the last
// failure decides the error: RATE_LIMIT if it was one, else GEOSTORE_ERROR.
func (r *GeostoreResolver) Resolve(ctx context.Context, q domain.RegionQuery) (domain.Geostore, error) {
	log := logging.FromContext(ctx)
	body := geostoreBody{Lat: q.Coordinate.Lat, Lng: q.Coordinate.Lng, Radius: q.RadiusMeters}

	var last error
	for _, v := range r.variants {
		b := body
		if v.WithPolygon {
			b.GeoJSON = &domain.Polygon{
				Type:        "Polygon",
				Coordinates: [][][2]float64{geospatial.CirclePolygon(q.Coordinate.Lat, q.Coordinate.Lng, q.RadiusMeters, circleSegments)},
			}
		}

		g, err := r.create(ctx, v, b)
		if err == nil {
			metrics.GeostoreAttempts.WithLabelValues(v.Name, "ok").Inc()
			log.Debug("geostore resolved", "variant", v.Name, "geostore", g.ID)
			fillExtent(&g, q)
			return g, nil
		}

		if domain.HasCode(err, domain.CodeAuth) {
			metrics.GeostoreAttempts.WithLabelValues(v.Name, string(domain.CodeAuth)).Inc()
			return domain.Geostore{}, err
		}
		metrics.GeostoreAttempts.WithLabelValues(v.Name, string(domain.AsUpstreamError(err).Code)).Inc()
		log.Warn("geostore variant failed", "variant", v.Name, "error", err)
		last = err
	}

	if domain.HasCode(last, domain.CodeRateLimit) {
		return domain.Geostore{}, last
	}
	return domain.Geostore{}, domain.Wrap(domain.CodeGeostore, "All geostore creation methods failed", last)
}

func (r *GeostoreResolver) create(ctx context.Context, v GeostoreVariant, body geostoreBody) (domain.Geostore, error) {
	resp, err := r.upstream.Call(ctx, ports.UpstreamRequest{
		Method: http.MethodPost,
		Path:   v.Path,
		Body:   body,
	})
	if err != nil {
		return domain.Geostore{}, err
	}
	return parseGeostore(resp.Body)
}

// Lookup fetches an existing geostore by id.
func (r *GeostoreResolver) Lookup(ctx context.Context, id string) (domain.Geostore, error) {
	resp, err := r.upstream.Call(ctx, ports.UpstreamRequest{
		Method: http.MethodGet,
		Path:   "/v2/geostore/" + id,
	})
	if err != nil {
		return domain.Geostore{}, err
	}
	return parseGeostore(resp.Body)
}

var errNoGeostoreID = errors.New("response carried no geostore id")

func parseGeostore(body []byte) (domain.Geostore, error) {
	var reply geostoreReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return domain.Geostore{}, domain.Wrap(domain.CodeGeostore, "Malformed geostore response", err)
	}
	if reply.Data.ID == "" {
		return domain.Geostore{}, domain.Wrap(domain.CodeGeostore, "Geostore response without id", errNoGeostoreID)
	}
	return domain.Geostore{
		ID:     reply.Data.ID,
		AreaHa: reply.Data.Attributes.AreaHa,
		BBox:   reply.Data.Attributes.BBox,
	}, nil
}

// fillExtent completes a geostore whose reply omitted bbox or area with the
// requested circle's values.
func fillExtent(g *domain.Geostore, q domain.RegionQuery) {
	if len(g.BBox) != 4 {
		bb := geospatial.Extent(q.Coordinate.Lat, q.Coordinate.Lng, q.RadiusMeters)
		g.BBox = domain.BBox(bb[:])
	}
	if g.AreaHa <= 0 {
		g.AreaHa = geospatial.CircleAreaHa(q.RadiusMeters)
	}
}
