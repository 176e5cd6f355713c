package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/samirrijal/forestlens/internal/core/ports"
)

var _ ports.CacheService = (*Cache)(nil)

// Cache implements ports.CacheService using Valkey (Redis-compatible). It is
// the shared backend when several gateway replicas run.
type Cache struct {
	client valkey.Client
}

// Option adjusts the client before it connects.
type Option func(*valkey.ClientOption)

// WithAuth sets the AUTH password. Empty means no auth.
func WithAuth(password string) Option {
	return func(o *valkey.ClientOption) { o.Password = password }
}

// WithDB selects the logical database.
func WithDB(db int) Option {
	return func(o *valkey.ClientOption) { o.SelectDB = db }
}

// New connects to addr. Server-assisted client caching stays off: response
// bodies are read once per request and already TTL-bound.
func New(addr string, opts ...Option) (*Cache, error) {
	o := valkey.ClientOption{
		InitAddress:  []string{addr},
		DisableCache: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	client, err := valkey.NewClient(o)
	if err != nil {
		return nil, fmt.Errorf("valkey connect %s: %w", addr, err)
	}
	return &Cache{client: client}, nil
}

// Get retrieves a value by key. A nil reply maps to ports.ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, ports.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("valkey get %s: %w", key, err)
	}
	return b, nil
}

// Set stores a value; Valkey expires it after ttl.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	cmd := c.client.Do(ctx,
		c.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Px(ttl).Build(),
	)
	return cmd.Error()
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	cmd := c.client.Do(ctx, c.client.B().Del().Key(key).Build())
	return cmd.Error()
}

// Ping checks connectivity, for readiness probes.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}

// Close releases the client.
func (c *Cache) Close() {
	c.client.Close()
}
