package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/pkg/logging"
)

// ErrorEnvelope is the body of every failed response.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Message    string                  `json:"message"`
	Code       domain.Code             `json:"code"`
	Status     int                     `json:"status"`
	Timestamp  string                  `json:"timestamp"`
	Violations []domain.FieldViolation `json:"violations,omitempty"`
	RequestID  string                  `json:"requestId,omitempty"`
	Detail     string                  `json:"detail,omitempty"`
}

// ErrorHandler is the fiber error handler: the single place an error becomes
// a response. Detail carries the full error chain in development only.
func ErrorHandler(development bool, now func() time.Time) fiber.ErrorHandler {
	if now == nil {
		now = time.Now
	}
	return func(c *fiber.Ctx, err error) error {
		ue := toUpstreamError(err)

		body := ErrorBody{
			Message:    ue.Message,
			Code:       ue.Code,
			Status:     ue.Status,
			Timestamp:  now().UTC().Format(time.RFC3339Nano),
			Violations: ue.Violations,
		}
		if rid, ok := c.Locals("requestid").(string); ok {
			body.RequestID = rid
		}
		if development {
			body.Detail = err.Error()
		}

		level := slog.LevelWarn
		if ue.Status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logging.FromContext(c.UserContext()).Log(c.UserContext(), level, "request failed",
			"code", ue.Code,
			"status", ue.Status,
			"path", c.Path(),
			"error", err.Error(),
		)

		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.Status(ue.Status).JSON(ErrorEnvelope{Error: body})
	}
}

// toUpstreamError folds fiber's own errors into the taxonomy.
func toUpstreamError(err error) *domain.UpstreamError {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		switch fe.Code {
		case fiber.StatusNotFound:
			return domain.NewError(domain.CodeNotFound, "Route not found")
		case fiber.StatusRequestTimeout:
			return domain.NewError(domain.CodeTimeout, "Request timed out")
		case fiber.StatusTooManyRequests:
			return domain.NewError(domain.CodeRateLimit, "Too many requests, please try again later")
		case fiber.StatusUnauthorized:
			return domain.NewError(domain.CodeAuth, fe.Message)
		}
		if fe.Code < fiber.StatusInternalServerError {
			return &domain.UpstreamError{Message: fe.Message, Status: fe.Code, Code: domain.CodeValidation}
		}
		return domain.NewError(domain.CodeInternal, "Internal server error")
	}

	ue := domain.AsUpstreamError(err)
	if ue.Status == 0 {
		cp := *ue
		cp.Status = ue.Code.Status()
		return &cp
	}
	return ue
}
