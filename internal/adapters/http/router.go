package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/Hogigo/Bus2Hike/internal/pkg/metrics"
)

const (
	// Gestures arrive in bursts while a slider is dragged.
	requestsPerMinute = 600

	discoverTimeout = 15 * time.Second
	// Long enough to await a search with ?wait=true.
	searchRequestTimeout = 20 * time.Second
)

// SetupRoutes installs the middleware chain and registers the REST,
// GraphQL, docs, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(
		compress.New(compress.Config{Level: compress.LevelBestSpeed}),
		requestid.New(),
		RequestIDLogMiddleware(),
		AccessLogMiddleware(),
		rateLimiter(),
		securityHeaders,
		ETagMiddleware(),
		CachingMiddleware(),
	)

	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Get("/state", StateHandler(deps))
	v1.Get("/trails", ListTrailsHandler(deps))
	v1.Get("/trails/:id", GetTrailHandler(deps))
	v1.Get("/stops", ListStopsHandler(deps))
	v1.Post("/stops/discover", timeout.NewWithContext(DiscoverStopsHandler(deps), discoverTimeout))
	v1.Post("/gestures", timeout.NewWithContext(GestureHandler(deps), searchRequestTimeout))
	v1.Post("/search", timeout.NewWithContext(SearchHandler(deps), searchRequestTimeout))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app)

	app.Use("/ws", requireUpgrade)
	app.Get("/ws", websocket.New(WebSocketHandler(deps)))
}

func rateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          requestsPerMinute,
		Expiration:   time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string { return c.IP() },
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, slow down")
		},
	})
}

func securityHeaders(c *fiber.Ctx) error {
	c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
	c.Set(fiber.HeaderXFrameOptions, "DENY")
	c.Set(fiber.HeaderReferrerPolicy, "strict-origin-when-cross-origin")
	c.Set("X-API-Version", "1.0.0")
	return c.Next()
}

func requireUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}
