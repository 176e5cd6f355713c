package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/forestlens/internal/pkg/logging"
)

// RequestIDLogMiddleware puts a logger tagged with the request id into the
// user context, where the service and the error handler pick it up through
// logging.FromContext. Runs after fiber's requestid middleware.
func RequestIDLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid, _ := c.Locals("requestid").(string)
		if rid != "" {
			l := slog.Default().With(slog.String("request_id", rid))
			c.SetUserContext(logging.WithLogger(c.UserContext(), l))
		}
		return c.Next()
	}
}
