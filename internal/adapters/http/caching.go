package http

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/core/usecases"
)

// CachingMiddleware sets Cache-Control on successful GET responses so that
// client caches follow the same tiers as the gateway cache.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err != nil || c.Method() != fiber.MethodGet {
			return err
		}
		if c.GetRespHeader(fiber.HeaderCacheControl) != "" {
			return nil
		}
		if c.Response().StatusCode() != fiber.StatusOK {
			return nil
		}

		if v := cacheControlFor(c.Path()); v != "" {
			c.Set(fiber.HeaderCacheControl, v)
		}
		return nil
	}
}

func cacheControlFor(path string) string {
	if rest, ok := underPrefix(path, LegacyPrefix); ok {
		path = "/v1" + rest
	}

	switch {
	case path == "/v1/health" || path == "/v1/ready":
		return "public, max-age=10"
	case path == "/metrics":
		return "no-cache"
	case path == "/graphql":
		return "private, max-age=0"
	case path == "/v1/analyze":
		return maxAge(domain.EndpointAnalyze)
	case path == "/v1/forest-loss":
		return maxAge(domain.EndpointForestLoss)
	case path == "/v1/alerts":
		return maxAge(domain.EndpointAlerts)
	case strings.HasPrefix(path, "/v1/analysis/"):
		return maxAge(domain.EndpointAnalysisID)
	case strings.HasPrefix(path, "/v1/geostore/"):
		return maxAge(domain.EndpointGeostoreID)
	}
	return ""
}

func maxAge(e domain.Endpoint) string {
	return fmt.Sprintf("public, max-age=%d", int(usecases.TierFor(e).TTL().Seconds()))
}
