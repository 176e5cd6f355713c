package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/pkg/validation"
)

type regionFunc func(ctx context.Context, q domain.RegionQuery) ([]byte, error)

// regionParams reads the region query string. Parameter names are part of the
// public contract and use hyphens for the dates.
func regionParams(c *fiber.Ctx) validation.RawRegionParams {
	return validation.RawRegionParams{
		Lat:       c.Query(validation.FieldLat),
		Lng:       c.Query(validation.FieldLng),
		Radius:    c.Query(validation.FieldRadius),
		StartDate: c.Query(validation.FieldStartDate),
		EndDate:   c.Query(validation.FieldEndDate),
	}
}

// regionHandler validates before any upstream work and sends the service's
// bytes unchanged, so cached and fresh responses are byte-identical.
func regionHandler(run func(*Dependencies) regionFunc, deps *Dependencies) fiber.Handler {
	fn := run(deps)
	return func(c *fiber.Ctx) error {
		q, err := validation.ValidateRegion(regionParams(c))
		if err != nil {
			return err
		}

		body, err := fn(c.UserContext(), q)
		if err != nil {
			return err
		}
		return sendJSON(c, body)
	}
}

// AnalyzeHandler handles GET /analyze.
func AnalyzeHandler(deps *Dependencies) fiber.Handler {
	return regionHandler(func(d *Dependencies) regionFunc { return d.Analysis.Analyze }, deps)
}

// ForestLossHandler handles GET /forest-loss.
func ForestLossHandler(deps *Dependencies) fiber.Handler {
	return regionHandler(func(d *Dependencies) regionFunc { return d.Analysis.ForestLoss }, deps)
}

// AlertsHandler handles GET /alerts.
func AlertsHandler(deps *Dependencies) fiber.Handler {
	return regionHandler(func(d *Dependencies) regionFunc { return d.Analysis.Alerts }, deps)
}

// AnalysisByIDHandler handles GET /analysis/:geostoreId. The upstream payload
// is passed through.
func AnalysisByIDHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("geostoreId")
		if err := validation.ValidateGeostoreID(id); err != nil {
			return err
		}

		dr := domain.DateRange{Start: c.Query("start_date"), End: c.Query("end_date")}
		if err := validation.ValidateDateParam("start_date", dr.Start); err != nil {
			return err
		}
		if err := validation.ValidateDateParam("end_date", dr.End); err != nil {
			return err
		}

		body, err := deps.Analysis.AnalysisByID(c.UserContext(), id, dr)
		if err != nil {
			return err
		}
		return sendJSON(c, body)
	}
}

// GeostoreByIDHandler handles GET /geostore/:geostoreId.
func GeostoreByIDHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("geostoreId")
		if err := validation.ValidateGeostoreID(id); err != nil {
			return err
		}

		body, err := deps.Analysis.GeostoreByID(c.UserContext(), id)
		if err != nil {
			return err
		}
		return sendJSON(c, body)
	}
}

func sendJSON(c *fiber.Ctx, body []byte) error {
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}
