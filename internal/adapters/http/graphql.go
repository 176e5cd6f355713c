package http

import (
	"context"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/samirrijal/forestlens/internal/core/domain"
	"github.com/samirrijal/forestlens/internal/pkg/validation"
)

// jsonScalar passes decoded gateway payloads through unchanged. Upstream
// dataset shapes are opaque, so they are not modelled as object types.
var jsonScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "Arbitrary JSON value",
	Serialize:   func(v interface{}) interface{} { return v },
	ParseValue:  func(v interface{}) interface{} { return v },
	ParseLiteral: func(v ast.Value) interface{} {
		if s, ok := v.(*ast.StringValue); ok {
			return s.Value
		}
		return nil
	},
})

// gqlError carries the taxonomy code into the GraphQL "extensions" member.
type gqlError struct {
	ue *domain.UpstreamError
}

func (e gqlError) Error() string { return e.ue.Message }

func (e gqlError) Extensions() map[string]interface{} {
	ext := map[string]interface{}{
		"code":   string(e.ue.Code),
		"status": e.ue.Status,
	}
	if len(e.ue.Violations) > 0 {
		ext["violations"] = e.ue.Violations
	}
	return ext
}

func toGraphQLError(err error) error {
	return gqlError{ue: toUpstreamError(err)}
}

// decodeData unmarshals a gateway body and returns its "data" member when
// present, otherwise the whole document.
func decodeData(body []byte) (interface{}, error) {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	if m, ok := doc.(map[string]interface{}); ok {
		if data, ok := m["data"]; ok {
			return data, nil
		}
	}
	return doc, nil
}

func floatArg(args map[string]interface{}, name string) string {
	switch v := args[name].(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

func stringArg(args map[string]interface{}, name string) string {
	s, _ := args[name].(string)
	return s
}

var regionArgs = graphql.FieldConfigArgument{
	"lat":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
	"lng":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
	"radius":    &graphql.ArgumentConfig{Type: graphql.Float, Description: "Meters, 100-100000 (default 10000)"},
	"startDate": &graphql.ArgumentConfig{Type: graphql.String},
	"endDate":   &graphql.ArgumentConfig{Type: graphql.String},
}

// regionResolver validates exactly like the REST handlers before calling fn.
func regionResolver(fn func(context.Context, domain.RegionQuery) ([]byte, error)) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		q, err := validation.ValidateRegion(validation.RawRegionParams{
			Lat:       floatArg(p.Args, "lat"),
			Lng:       floatArg(p.Args, "lng"),
			Radius:    floatArg(p.Args, "radius"),
			StartDate: stringArg(p.Args, "startDate"),
			EndDate:   stringArg(p.Args, "endDate"),
		})
		if err != nil {
			return nil, toGraphQLError(err)
		}
		body, err := fn(p.Context, q)
		if err != nil {
			return nil, toGraphQLError(err)
		}
		return decodeData(body)
	}
}

// buildSchema creates the GraphQL schema wired to the analysis service.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	svc := deps.Analysis

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"analyze": &graphql.Field{
				Type:        jsonScalar,
				Description: "Forest, alerts, biodiversity and climate analysis around a point",
				Args:        regionArgs,
				Resolve:     regionResolver(svc.Analyze),
			},
			"forestLoss": &graphql.Field{
				Type:        jsonScalar,
				Description: "Tree cover loss around a point",
				Args:        regionArgs,
				Resolve:     regionResolver(svc.ForestLoss),
			},
			"alerts": &graphql.Field{
				Type:        jsonScalar,
				Description: "Deforestation and fire alerts around a point",
				Args:        regionArgs,
				Resolve:     regionResolver(svc.Alerts),
			},
			"analysis": &graphql.Field{
				Type:        jsonScalar,
				Description: "Stored analysis for an existing geostore",
				Args: graphql.FieldConfigArgument{
					"geostoreId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"startDate":  &graphql.ArgumentConfig{Type: graphql.String},
					"endDate":    &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := stringArg(p.Args, "geostoreId")
					dr := domain.DateRange{Start: stringArg(p.Args, "startDate"), End: stringArg(p.Args, "endDate")}
					if err := validation.ValidateGeostoreID(id); err != nil {
						return nil, toGraphQLError(err)
					}
					if err := validation.ValidateDateParam("startDate", dr.Start); err != nil {
						return nil, toGraphQLError(err)
					}
					if err := validation.ValidateDateParam("endDate", dr.End); err != nil {
						return nil, toGraphQLError(err)
					}
					body, err := svc.AnalysisByID(p.Context, id, dr)
					if err != nil {
						return nil, toGraphQLError(err)
					}
					var doc interface{}
					if err := json.Unmarshal(body, &doc); err != nil {
						return nil, err
					}
					return doc, nil
				},
			},
			"geostore": &graphql.Field{
				Type:        jsonScalar,
				Description: "Geostore area and bounding box",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := stringArg(p.Args, "id")
					if err := validation.ValidateGeostoreID(id); err != nil {
						return nil, toGraphQLError(err)
					}
					body, err := svc.GeostoreByID(p.Context, id)
					if err != nil {
						return nil, toGraphQLError(err)
					}
					return decodeData(body)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil || req.Query == "" {
			return domain.NewError(domain.CodeValidation, "Request body must be a GraphQL query document")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
