package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control on GET responses the handler left
// unmarked. Anything derived from live positions is never cached.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		// Only set on GET requests
		if c.Method() != fiber.MethodGet {
			return err
		}
		// Don't override if already set
		if existing := c.GetRespHeader(fiber.HeaderCacheControl); existing != "" {
			return err
		}

		path := c.Path()
		var ttl string

		// Default cache times by endpoint pattern
		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "no-cache" // Health checks must see the current state

		case path == "/metrics":
			ttl = "no-cache" // Metrics are real-time

		case c.GetRespHeader(DegradedHeader) != "":
			ttl = "no-store" // Never pin an answer built without the index

		case strings.HasPrefix(path, "/v1/nearby"),
			strings.HasPrefix(path, "/v1/entities/"):
			ttl = "no-store" // Positions move every report

		case strings.HasPrefix(path, "/v1/groups/"):
			ttl = "private, max-age=5" // Short, membership and last message change often

		case strings.HasPrefix(path, "/v1/"):
			ttl = "no-store"
		}

		if ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}
		return err
	}
}
