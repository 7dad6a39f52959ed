// middleware/user_context.go
package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware extracts the acting Discord user forwarded by the
// gateway. Session and redemption routes refuse to run without it — the
// user id is what session ownership and token ownership are checked
// against.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-Discord-User-ID")
		if userID == "" {
			log.Printf("❌ [USER_CTX] X-Discord-User-ID missing on %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-Discord-User-ID — request must come through the gateway with user context",
			})
		}

		c.Locals("user_id", userID)
		c.Locals("display_name", c.Get("X-Discord-Display-Name"))
		return c.Next()
	}
}
