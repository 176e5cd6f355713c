package gfw

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/core/ports"
	"github.com/samirrijal/forestlens/internal/pkg/retry"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewTLSServer(h)
	t.Cleanup(srv.Close)

	roots := x509.NewCertPool()
	roots.AddCert(srv.Certificate())
	return New(ports.FamilyData, srv.URL, "secret-key", append([]Option{WithRootCAs(roots)}, opts...)...)
}

func TestCall_InjectsBearerAndEncodes(t *testing.T) {
	var gotAuth, gotQuery, gotBody, gotCT string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		gotCT = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"abc"}}`))
	})

	resp, err := c.Call(context.Background(), ports.UpstreamRequest{
		Method: http.MethodPost,
		Path:   "/v2/geostore",
		Query:  map[string][]string{"threshold": {"30"}},
		Body:   map[string]float64{"lat": 1.5},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `{"data":{"id":"abc"}}`, string(resp.Body))
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "threshold=30", gotQuery)
	assert.Equal(t, "application/json", gotCT)
	assert.JSONEq(t, `{"lat":1.5}`, gotBody)
}

func TestCall_StatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		body      string
		code      domain.Code
		retriable bool
		message   string
	}{
		{http.StatusUnauthorized, `{"errors":[{"detail":"bad token"}]}`, domain.CodeAuth, false, "bad token"},
		{http.StatusTooManyRequests, `{"message":"slow down"}`, domain.CodeRateLimit, true, "slow down"},
		{http.StatusServiceUnavailable, ``, domain.CodeUpstream, true, "upstream returned 503 Service Unavailable"},
		{http.StatusInternalServerError, `oops`, domain.CodeUpstream, false, "upstream returned 500 Internal Server Error"},
		{http.StatusNotFound, `{}`, domain.CodeUpstream, false, "upstream returned 404 Not Found"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Call(context.Background(), ports.UpstreamRequest{Path: "/x"})

			var ue *domain.UpstreamError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, tt.code, ue.Code)
			assert.Equal(t, tt.status, ue.Status)
			assert.Equal(t, tt.retriable, ue.Retriable)
			assert.Equal(t, tt.message, ue.Message)
		})
	}
}

func TestCall_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithTimeout(50*time.Millisecond))
	defer close(release)

	_, err := c.Call(context.Background(), ports.UpstreamRequest{Path: "/slow"})
	var ue *domain.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, domain.CodeTimeout, ue.Code)
	assert.Equal(t, http.StatusGatewayTimeout, ue.Status)
	assert.True(t, ue.Retriable)
}

func TestCall_RateLimitWaitPastDeadlineIsTimeout(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}, WithTimeout(50*time.Millisecond), WithRateLimit(0.01, 1))

	_, err := c.Call(context.Background(), ports.UpstreamRequest{Path: "/first"})
	require.NoError(t, err)

	// The bucket is empty and refills in 100s, far past the 50ms call timeout.
	_, err = c.Call(context.Background(), ports.UpstreamRequest{Path: "/second"})
	var ue *domain.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, domain.CodeTimeout, ue.Code)
	assert.Equal(t, http.StatusGatewayTimeout, ue.Status)
	assert.False(t, retry.Transient(err), "a deadline-bound limiter refusal must not be retried")
	assert.Equal(t, int32(1), hits.Load())
}

func TestCall_RejectsUntrustedCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// No injected roots: the self-signed test certificate must not verify.
	c := New(ports.FamilyAnalytics, srv.URL, "k")
	_, err := c.Call(context.Background(), ports.UpstreamRequest{Path: "/"})
	var ue *domain.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, domain.CodeUpstream, ue.Code)
}

func TestTLSConfig(t *testing.T) {
	cfg := TLSConfig(nil)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MaxVersion)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.NotEmpty(t, cfg.CipherSuites)

	insecure := map[uint16]bool{}
	for _, s := range tls.InsecureCipherSuites() {
		insecure[s.ID] = true
	}
	for _, id := range cfg.CipherSuites {
		assert.False(t, insecure[id], "insecure suite %s allowed", tls.CipherSuiteName(id))
	}
}

func TestBreaker_OpensOnServerErrorsOnly(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusTooManyRequests)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	})
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, _ = c.Call(ctx, ports.UpstreamRequest{Path: "/"})
	}
	assert.Equal(t, "closed", c.BreakerState(), "rate limits must not trip the breaker")

	status.Store(http.StatusBadGateway)
	for i := 0; i < 30; i++ {
		_, _ = c.Call(ctx, ports.UpstreamRequest{Path: "/"})
	}
	assert.Equal(t, "open", c.BreakerState())

	_, err := c.Call(ctx, ports.UpstreamRequest{Path: "/"})
	var ue *domain.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusServiceUnavailable, ue.Status)
	assert.Equal(t, domain.CodeUpstream, ue.Code)
}

func TestSet_For(t *testing.T) {
	s := NewSet("https://api.example.org", "https://data.example.org/", "k")
	assert.Equal(t, "https://api.example.org", s.For(ports.FamilyAnalytics).(*Client).BaseURL())
	assert.Equal(t, "https://data.example.org", s.For(ports.FamilyData).(*Client).BaseURL())
	assert.Len(t, s.Clients(), 2)
}
