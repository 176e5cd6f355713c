package usecases_test

import (
	"context"
	"sync"
	"time"

	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/core/ports"
)

// --- Mock Upstream ---

type mockUpstream struct {
	callFn func(ctx context.Context, req ports.UpstreamRequest) (*ports.RawResponse, error)

	mu    sync.Mutex
	calls []ports.UpstreamRequest
}

func (m *mockUpstream) Call(ctx context.Context, req ports.UpstreamRequest) (*ports.RawResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.callFn != nil {
		return m.callFn(ctx, req)
	}
	return ok(`{}`), nil
}

func (m *mockUpstream) paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.Path
	}
	return out
}

func (m *mockUpstream) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// --- Mock UpstreamSet ---

type mockUpstreamSet struct {
	analytics *mockUpstream
	data      *mockUpstream
}

func newMockSet() *mockUpstreamSet {
	return &mockUpstreamSet{analytics: &mockUpstream{}, data: &mockUpstream{}}
}

func (s *mockUpstreamSet) For(f ports.Family) ports.Upstream {
	if f == ports.FamilyData {
		return s.data
	}
	return s.analytics
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	publishFn func(ctx context.Context, ev *domain.AnalysisCompleted) error

	mu     sync.Mutex
	events []*domain.AnalysisCompleted
}

func (m *mockPublisher) PublishAnalysisCompleted(ctx context.Context, ev *domain.AnalysisCompleted) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	if m.publishFn != nil {
		return m.publishFn(ctx, ev)
	}
	return nil
}

// --- Mock CacheService ---

type mockCache struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, ports.ErrCacheMiss
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttl)
	}
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error { return nil }

// --- helpers ---

func ok(body string) *ports.RawResponse {
	return &ports.RawResponse{Status: 200, Body: []byte(body)}
}

func failWith(status int) error {
	return domain.FromStatus(status, "upstream said no")
}
