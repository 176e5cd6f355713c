package http

import (
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/forestlens/internal/core/ports"
	"github.com/samirrijal/forestlens/internal/core/usecases"
)

// UpstreamStatus is the view of a GFW family client the health and readiness
// checks need.
type UpstreamStatus interface {
	Family() ports.Family
	BaseURL() string
	BreakerState() string
}

// Settings are the HTTP-layer knobs taken from configuration.
type Settings struct {
	Development    bool
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	HandlerTimeout time.Duration
	AllowOrigins   string
	RateLimitMax   int
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Analysis  *usecases.AnalysisService
	Upstreams []UpstreamStatus
	Cache     ports.CacheService
	NATS      *nats.Conn
	Settings  Settings
}

func (d *Dependencies) upstream(f ports.Family) UpstreamStatus {
	for _, u := range d.Upstreams {
		if u.Family() == f {
			return u
		}
	}
	return nil
}
