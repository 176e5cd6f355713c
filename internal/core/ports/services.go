package ports

import (
	"context"
	"errors"
	"time"

	"github.com/samirrijal/forestlens/internal/core/domain"
)

// ErrCacheMiss is returned by CacheService.Get for absent or expired keys.
var ErrCacheMiss = errors.New("cache miss")

// CacheService stores opaque values with a TTL.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// EventPublisher publishes gateway events to a message broker.
type EventPublisher interface {
	PublishAnalysisCompleted(ctx context.Context, event *domain.AnalysisCompleted) error
}

// EventSubscriber consumes gateway events from a message broker.
type EventSubscriber interface {
	SubscribeAnalysisCompleted(ctx context.Context, handler func(ctx context.Context, event *domain.AnalysisCompleted) error) error
}
