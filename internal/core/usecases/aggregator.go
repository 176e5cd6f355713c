package usecases

import (
	"bytes"
	"context"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/core/ports"
	"github.com/samirrijal/forestlens/internal/pkg/logging"
	"github.com/samirrijal/forestlens/internal/pkg/metrics"
	"github.com/samirrijal/forestlens/internal/pkg/retry"
)

// Extractor pulls the dataset payload out of an upstream body.
type Extractor func(body []byte) (json.RawMessage, error)

// Dataset describes one upstream dataset call of an aggregation.
type Dataset struct {
	Name    string
	Family  ports.Family
	Request func(g domain.Geostore, dr domain.DateRange) ports.UpstreamRequest
	Extract Extractor
}

// Aggregator fans out dataset calls for a resolved geostore.
type Aggregator struct {
	upstreams ports.UpstreamSet
	retry     retry.Policy
}

// NewAggregator creates an Aggregator. policy wraps each dataset fetch.
func NewAggregator(upstreams ports.UpstreamSet, policy retry.Policy) *Aggregator {
	return &Aggregator{upstreams: upstreams, retry: policy}
}

// Aggregate starts every dataset call before waiting on any and returns the
// results in the order of datasets. A failed dataset is reported as missing;
// it neither fails the aggregation nor cancels its siblings.
func (a *Aggregator) Aggregate(ctx context.Context, g domain.Geostore, dr domain.DateRange, datasets []Dataset) domain.Datasets {
	results := make(domain.Datasets, len(datasets))

	// A plain Group: no derived context, so one failure never cancels the rest.
	var eg errgroup.Group
	for i, ds := range datasets {
		eg.Go(func() error {
			results[i] = a.fetch(ctx, g, dr, ds)
			return nil
		})
	}
	_ = eg.Wait()

	return results
}

func (a *Aggregator) fetch(ctx context.Context, g domain.Geostore, dr domain.DateRange, ds Dataset) domain.DatasetResult {
	upstream := a.upstreams.For(ds.Family)
	req := ds.Request(g, dr)

	var payload json.RawMessage
	err := a.retry.Do(ctx, func() error {
		resp, err := upstream.Call(ctx, req)
		if err != nil {
			return err
		}
		payload, err = ds.Extract(resp.Body)
		return err
	})

	res := domain.DatasetResult{Name: ds.Name, Payload: payload, Present: err == nil}
	if err != nil {
		res.Payload = nil
		logging.FromContext(ctx).Warn("dataset fetch failed",
			"dataset", ds.Name, "geostore", g.ID, "error", err)
	}
	if res.HasPayload() {
		metrics.DatasetResults.WithLabelValues(ds.Name, "present").Inc()
	} else {
		res.Present = false
		metrics.DatasetResults.WithLabelValues(ds.Name, "missing").Inc()
	}
	return res
}

// DataOf extracts the top-level "data" member.
func DataOf(body []byte) (json.RawMessage, error) {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, domain.Wrap(domain.CodeUpstream, "Malformed dataset response", err)
	}
	return trimNull(env.Data), nil
}

// AttributesOf extracts "data.attributes".
func AttributesOf(body []byte) (json.RawMessage, error) {
	var env struct {
		Data struct {
			Attributes json.RawMessage `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, domain.Wrap(domain.CodeUpstream, "Malformed dataset response", err)
	}
	return trimNull(env.Data.Attributes), nil
}

func trimNull(raw json.RawMessage) json.RawMessage {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	return raw
}
