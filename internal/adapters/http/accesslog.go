package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/forestlens/internal/pkg/logging"
)

// AccessLogMiddleware writes one record per request. A handler error is
// rendered here, through the app's error handler, so the record carries the
// status the client actually received.
func AccessLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		method, path := c.Method(), c.Path()

		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				return herr
			}
		}

		resp := c.Response()
		status := resp.StatusCode()
		attrs := []slog.Attr{
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000),
			slog.Int("bytes_out", len(resp.Body())),
		}
		if cc := c.GetRespHeader(fiber.HeaderCacheControl); cc != "" {
			attrs = append(attrs, slog.String("cache_control", cc))
		}
		if q := c.Request().URI().QueryString(); len(q) > 0 {
			attrs = append(attrs, slog.String("query", string(q)))
		}

		ctx := c.UserContext()
		logging.FromContext(ctx).LogAttrs(ctx, accessLevel(status), "http request", attrs...)
		return nil
	}
}

func accessLevel(status int) slog.Level {
	switch {
	case status >= fiber.StatusInternalServerError:
		return slog.LevelError
	case status >= fiber.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
