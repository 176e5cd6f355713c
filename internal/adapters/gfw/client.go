package gfw

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/core/ports"
	"github.com/samirrijal/forestlens/internal/pkg/logging"
	"github.com/samirrijal/forestlens/internal/pkg/metrics"
	"github.com/samirrijal/forestlens/internal/pkg/telemetry"
)

const (
	DefaultTimeout = 30 * time.Second
	maxBodyBytes   = 16 << 20
)

var _ ports.Upstream = (*Client)(nil)

// Client calls one GFW API family. It holds its own connection pool, circuit
// breaker and rate limiter, and injects the bearer credential on every call.
type Client struct {
	family     ports.Family
	baseURL    string
	apiKey     string
	timeout    time.Duration
	roots      *x509.CertPool
	limiter    *rate.Limiter
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*ports.RawResponse]
}

// Option customises a Client.
type Option func(*Client)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit caps outbound calls per second. rps <= 0 disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRootCAs trusts the given pool instead of the system roots.
func WithRootCAs(roots *x509.CertPool) Option {
	return func(c *Client) { c.roots = roots }
}

// New creates a client for one family rooted at baseURL.
func New(family ports.Family, baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		family:  family,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		timeout: DefaultTimeout,
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	for _, o := range opts {
		o(c)
	}

	c.httpClient = &http.Client{
		Timeout: c.timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			TLSClientConfig:     TLSConfig(c.roots),
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
	c.breaker = newBreaker(family)
	return c
}

// Family returns the API family this client serves.
func (c *Client) Family() ports.Family { return c.family }

// BaseURL returns the configured base address.
func (c *Client) BaseURL() string { return c.baseURL }

// BreakerState returns the circuit breaker state name.
func (c *Client) BreakerState() string { return c.breaker.State().String() }

// Call performs one request. Non-2xx replies and transport failures come back
// as *domain.UpstreamError.
func (c *Client) Call(ctx context.Context, req ports.UpstreamRequest) (*ports.RawResponse, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx, span := telemetry.Tracer().Start(ctx, "gfw."+string(c.family),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("gfw.path", req.Path),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*ports.RawResponse, error) {
		return c.do(ctx, method, req)
	})
	metrics.UpstreamDuration.WithLabelValues(string(c.family)).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &domain.UpstreamError{
				Message: fmt.Sprintf("%s API temporarily unavailable", c.family),
				Status:  http.StatusServiceUnavailable,
				Code:    domain.CodeUpstream,
				Cause:   err,
			}
		}
		ue := domain.AsUpstreamError(err)
		metrics.UpstreamRequests.WithLabelValues(string(c.family), string(ue.Code)).Inc()
		span.SetStatus(codes.Error, ue.Message)
		span.SetAttributes(attribute.Int("http.status_code", ue.Status))
		logging.FromContext(ctx).Debug("gfw call failed",
			"family", c.family, "method", method, "path", req.Path,
			"status", ue.Status, "code", ue.Code, "error", err)
		return nil, ue
	}

	metrics.UpstreamRequests.WithLabelValues(string(c.family), "ok").Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.Status))
	return resp, nil
}

func (c *Client) do(ctx context.Context, method string, req ports.UpstreamRequest) (*ports.RawResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classifyLimiterError(ctx, err)
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, domain.Wrap(domain.CodeInternal, "encode upstream request", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "build upstream request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.FromStatus(resp.StatusCode, upstreamMessage(resp.StatusCode, data))
	}
	return &ports.RawResponse{Status: resp.StatusCode, Body: data}, nil
}

// classifyTransportError maps client-side failures into the taxonomy.
func classifyTransportError(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return domain.Wrap(domain.CodeTimeout, "Upstream request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return domain.Wrap(domain.CodeInternal, "Upstream request cancelled", err)
	}
	e := domain.Wrap(domain.CodeUpstream, "Upstream request failed", err)
	e.Retriable = true
	return e
}

// classifyLimiterError maps a failed token wait. The limiter refuses early
// when the wait would outlive the deadline, without wrapping
// context.DeadlineExceeded, so any refusal under a deadline is a timeout.
func classifyLimiterError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) {
		return classifyTransportError(err)
	}
	if _, ok := ctx.Deadline(); ok {
		return domain.Wrap(domain.CodeTimeout, "Upstream rate limit wait exceeds the deadline", err)
	}
	return classifyTransportError(err)
}

// upstreamMessage pulls a human message out of a GFW error body. Both
// {"errors":[{"detail":...}]} and {"message":...} shapes occur.
func upstreamMessage(status int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Errors  []struct {
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if len(payload.Errors) > 0 && payload.Errors[0].Detail != "" {
			return payload.Errors[0].Detail
		}
	}
	return fmt.Sprintf("upstream returned %d %s", status, http.StatusText(status))
}
