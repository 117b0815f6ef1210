package http

import (
	"os"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
)

// OpenAPIPath is where the API document is read from, relative to the
// working directory.
var OpenAPIPath = "api/openapi.yaml"

const docsPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>{{title}}</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body style="margin:0">
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({url: '{{spec}}', dom_id: '#swagger-ui', deepLinking: true, tryItOutEnabled: true});
  </script>
</body>
</html>`

// SetupDocs serves Swagger UI at /docs over the document at /docs/openapi.yaml.
// The document is read on first request and kept in memory.
func SetupDocs(app *fiber.App) {
	page := strings.NewReplacer(
		"{{title}}", "Bus2Hike Explorer API",
		"{{spec}}", "/docs/openapi.yaml",
	).Replace(docsPage)

	loadSpec := sync.OnceValues(func() ([]byte, error) {
		return os.ReadFile(OpenAPIPath)
	})

	docs := app.Group("/docs")
	docs.Get("/", func(c *fiber.Ctx) error {
		c.Type("html", "utf-8")
		return c.SendString(page)
	})
	docs.Get("/openapi.yaml", func(c *fiber.Ctx) error {
		spec, err := loadSpec()
		if err != nil {
			return errNotFound(c, "API document not available")
		}
		c.Set(fiber.HeaderContentType, "application/yaml")
		return c.Send(spec)
	})
}
