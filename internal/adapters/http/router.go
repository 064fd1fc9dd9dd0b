package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/huddle/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed, // Balance speed vs compression ratio
	}))

	// Request ID, propagated into the slog context
	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 240 requests per minute per IP. Location reports arrive
	// every minute per device, so this leaves room for clients sharing an IP.
	app.Use(limiter.New(limiter.Config{
		Max:        240,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// REST API v1, each request bounded by requestTimeout
	v1 := app.Group("/v1")

	v1.Put("/entities/:id/location", timeout.NewWithContext(ReportLocationHandler(deps), requestTimeout))
	v1.Get("/entities/:id/nearby", timeout.NewWithContext(EntityNearbyHandler(deps), requestTimeout))
	v1.Get("/entities/:id/groups/available", timeout.NewWithContext(AvailableGroupsHandler(deps), requestTimeout))
	v1.Get("/entities/:id/groups", timeout.NewWithContext(MemberGroupsHandler(deps), requestTimeout))
	v1.Get("/nearby", timeout.NewWithContext(NearbyHandler(deps), requestTimeout))

	// Groups: ETag only on the single-group read
	v1.Post("/groups", timeout.NewWithContext(CreateGroupHandler(deps), requestTimeout))
	v1.Get("/groups/:id", ETagMiddleware(), timeout.NewWithContext(GetGroupHandler(deps), requestTimeout))
	v1.Post("/groups/:id/join", timeout.NewWithContext(JoinGroupHandler(deps), requestTimeout))
	v1.Post("/groups/:id/leave", timeout.NewWithContext(LeaveGroupHandler(deps), requestTimeout))
	v1.Post("/groups/:id/messages", timeout.NewWithContext(SendMessageHandler(deps), requestTimeout))

	// GraphQL
	app.Post("/graphql", timeout.NewWithContext(GraphQLHandler(deps), requestTimeout))

	// WebSocket upgrade for live membership and chat events
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps)))
}
