package http

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
)

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>ForestLens GFW Gateway API</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
  <style>html{box-sizing:border-box}*,*::before,*::after{box-sizing:inherit}body{margin:0;background:#fafafa}</style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: '/docs/openapi.json',
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: 'BaseLayout',
    });
  </script>
</body>
</html>`

// OpenAPIPath is where the API description is read from, relative to the
// working directory.
var OpenAPIPath = "api/openapi.yaml"

// SetupDocs serves Swagger UI at /docs, the description as written at
// /docs/openapi.yaml, and a JSON rendering at /docs/openapi.json whose server
// list is this host. The file is read per request.
func SetupDocs(app *fiber.App) {
	app.Get("/docs", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(swaggerUIHTML)
	})

	app.Get("/docs/openapi.yaml", func(c *fiber.Ctx) error {
		data, err := os.ReadFile(OpenAPIPath)
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "API description not found")
		}
		c.Set(fiber.HeaderContentType, "application/yaml")
		return c.Send(data)
	})

	app.Get("/docs/openapi.json", func(c *fiber.Ctx) error {
		doc, err := loadAPIDescription(c.BaseURL())
		if err != nil {
			return err
		}
		data, err := doc.MarshalJSON()
		if err != nil {
			return fmt.Errorf("render API description: %w", err)
		}
		return sendJSON(c, data)
	})
}

// loadAPIDescription parses OpenAPIPath and points its servers at baseURL so
// "Try it out" calls the gateway that served the page.
func loadAPIDescription(baseURL string) (*openapi3.T, error) {
	if _, err := os.Stat(OpenAPIPath); errors.Is(err, fs.ErrNotExist) {
		return nil, fiber.NewError(fiber.StatusNotFound, "API description not found")
	}
	doc, err := openapi3.NewLoader().LoadFromFile(OpenAPIPath)
	if err != nil {
		return nil, fmt.Errorf("load API description: %w", err)
	}
	if baseURL != "" {
		doc.Servers = openapi3.Servers{{URL: baseURL, Description: "This gateway"}}
	}
	return doc, nil
}
