package http

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/pkg/metrics"
)

// LegacyPrefix is the original mount point of the gateway, kept as an alias.
const LegacyPrefix = "/api/gfw"

// LegacySunset is when the /api/gfw alias is removed.
var LegacySunset = time.Date(2027, time.June, 30, 0, 0, 0, 0, time.UTC)

// NewApp builds the fiber application with codecs, error handler and the
// full middleware stack, and registers every route.
func NewApp(deps *Dependencies) *fiber.App {
	s := deps.Settings

	app := fiber.New(fiber.Config{
		AppName:               "forestlens",
		ReadTimeout:           s.ReadTimeout,
		WriteTimeout:          s.WriteTimeout,
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          ErrorHandler(s.Development, nil),
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: s.Development}))
	if s.Development {
		app.Use(logger.New())
	}
	origins := s.AllowOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,OPTIONS",
	}))

	SetupRoutes(app, deps)
	return app
}

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP unless configured
	limit := deps.Settings.RateLimitMax
	if limit <= 0 {
		limit = 120
	}
	app.Use(limiter.New(limiter.Config{
		Max:        limit,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return domain.NewError(domain.CodeRateLimit, "Too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if deps.Analysis != nil {
			c.Set("X-API-Version", deps.Analysis.Version())
		}
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	app.Get("/v1/ready", ReadyHandler(deps))

	registerGateway(app.Group("/v1"), deps)

	legacy := app.Group(LegacyPrefix, DeprecationMiddleware([]DeprecatedRoute{{
		Prefix:      LegacyPrefix,
		SunsetDate:  LegacySunset,
		Alternative: "/v1",
	}}))
	registerGateway(legacy, deps)

	app.Post("/graphql", withTimeout(GraphQLHandler(deps), deps.Settings.HandlerTimeout))

	// API documentation (Swagger UI)
	SetupDocs(app)

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))

	app.Use(func(c *fiber.Ctx) error {
		return fiber.ErrNotFound
	})
}

// registerGateway mounts the gateway operations on r. Used for /v1 and the
// legacy alias.
func registerGateway(r fiber.Router, deps *Dependencies) {
	d := deps.Settings.HandlerTimeout

	r.Get("/health", HealthHandler(deps))
	r.Get("/analyze", withTimeout(AnalyzeHandler(deps), d))
	r.Get("/forest-loss", withTimeout(ForestLossHandler(deps), d))
	r.Get("/alerts", withTimeout(AlertsHandler(deps), d))
	r.Get("/analysis/:geostoreId", withTimeout(AnalysisByIDHandler(deps), d))
	r.Get("/geostore/:geostoreId", withTimeout(GeostoreByIDHandler(deps), d))
}

// withTimeout puts a deadline on the handler's user context. Unlike fiber's
// timeout middleware it leaves the returned error alone: a GEOSTORE_ERROR or
// ANALYSIS_ERROR whose cause is a deadline must keep its own code.
func withTimeout(h fiber.Handler, d time.Duration) fiber.Handler {
	if d <= 0 {
		return h
	}
	return func(c *fiber.Ctx) error {
		parent := c.UserContext()
		ctx, cancel := context.WithTimeout(parent, d)
		defer cancel()

		c.SetUserContext(ctx)
		defer c.SetUserContext(parent)
		return h(c)
	}
}
