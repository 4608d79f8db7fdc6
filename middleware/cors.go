package middleware

import (
	"github.com/gofiber/fiber/v2"
)

const (
	corsMethods = "GET,POST,PUT,DELETE,OPTIONS"
	corsHeaders = "Origin,Content-Type,Accept,Authorization,X-Api-Key"
	corsMaxAge  = "3600"
)

// CORS lets the operator dashboard call the request API from a browser.
// Only listed origins are allowed; with none given the local dashboard
// origin is assumed. Preflight requests are answered inline.
func CORS(origins ...string) fiber.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if origin := c.Get("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				c.Set("Access-Control-Allow-Origin", origin)
				c.Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if c.Method() == fiber.MethodOptions {
			c.Set("Access-Control-Allow-Methods", corsMethods)
			c.Set("Access-Control-Allow-Headers", corsHeaders)
			c.Set("Access-Control-Max-Age", corsMaxAge)
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}
