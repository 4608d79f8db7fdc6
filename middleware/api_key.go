package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// RequireAPIKey guards gateway webhook routes with a shared key, accepted
// either as "Authorization: Bearer <key>" or an "X-Api-Key" header. An empty
// configured key disables the guard (local development).
func RequireAPIKey(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return c.Next()
		}

		presented := c.Get("X-Api-Key")
		if presented == "" {
			auth := c.Get("Authorization")
			presented = strings.TrimPrefix(auth, "Bearer ")
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or missing API key",
			})
		}
		return c.Next()
	}
}
