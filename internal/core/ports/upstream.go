package ports

import (
	"context"
	"net/url"
)

// Family selects one of the two upstream GFW API families.
type Family string

const (
	FamilyAnalytics Family = "analytics"
	FamilyData      Family = "data"
)

// UpstreamRequest is one outbound call. Body, when set, is JSON-encoded.
type UpstreamRequest struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// RawResponse is a successful (2xx) upstream reply.
type RawResponse struct {
	Status int
	Body   []byte
}

// Upstream performs outbound calls against one API family. Failures are
// returned as *domain.UpstreamError.
type Upstream interface {
	Call(ctx context.Context, req UpstreamRequest) (*RawResponse, error)
}

// UpstreamSet hands out the client for a family. Callers never build base URLs.
type UpstreamSet interface {
	For(family Family) Upstream
}
