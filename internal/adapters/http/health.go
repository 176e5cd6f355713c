package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/forestlens/internal/core/ports"
)

const readyTimeout = 3 * time.Second

// HealthResponse is the liveness document.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Endpoints map[string]string `json:"endpoints"`
}

// ReadyResponse lists every dependency check by name.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// pinger is implemented by cache backends with a connectivity check.
type pinger interface {
	Ping(ctx context.Context) error
}

// probe reports a check's value and whether it blocks readiness.
type probe struct {
	name string
	run  func(ctx context.Context) (value string, ok bool)
}

// HealthHandler is the liveness check. It never calls upstream.
func HealthHandler(deps *Dependencies) fiber.Handler {
	version := ""
	if deps.Analysis != nil {
		version = deps.Analysis.Version()
	}
	endpoints := make(map[string]string, 2)
	for key, family := range map[string]ports.Family{"base": ports.FamilyAnalytics, "data": ports.FamilyData} {
		if u := deps.upstream(family); u != nil {
			endpoints[key] = u.BaseURL()
		}
	}

	return func(c *fiber.Ctx) error {
		return c.JSON(HealthResponse{
			Status:    "healthy",
			Version:   version,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Endpoints: endpoints,
		})
	}
}

// ReadyHandler runs the readiness probes. An open breaker fails readiness
// because every request of that family would be rejected.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	probes := readinessProbes(deps)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readyTimeout)
		defer cancel()

		resp := ReadyResponse{Status: "ready", Checks: make(map[string]string, len(probes))}
		code := fiber.StatusOK
		for _, p := range probes {
			value, ok := p.run(ctx)
			resp.Checks[p.name] = value
			if !ok {
				resp.Status = "not ready"
				code = fiber.StatusServiceUnavailable
			}
		}
		return c.Status(code).JSON(resp)
	}
}

func readinessProbes(deps *Dependencies) []probe {
	probes := []probe{
		{name: "cache", run: func(ctx context.Context) (string, bool) {
			switch cache := deps.Cache.(type) {
			case nil:
				return "not configured", true
			case pinger:
				if err := cache.Ping(ctx); err != nil {
					return "error: " + err.Error(), false
				}
			}
			return "ok", true
		}},
		{name: "nats", run: func(context.Context) (string, bool) {
			switch {
			case deps.NATS == nil:
				return "not configured", true
			case deps.NATS.IsConnected():
				return "ok", true
			default:
				return "disconnected", false
			}
		}},
	}

	for _, u := range deps.Upstreams {
		u := u
		probes = append(probes, probe{
			name: "upstream_" + string(u.Family()),
			run: func(context.Context) (string, bool) {
				state := u.BreakerState()
				return state, state != "open"
			},
		})
	}
	return probes
}
