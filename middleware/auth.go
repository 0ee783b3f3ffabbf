package middleware

import (
	"log"
	"strings"

	"breathesmart/models"

	"github.com/gofiber/fiber/v2"
)

const sessionKey = "session"

// SessionContext builds the request's session from the bearer token
// and the identity headers forwarded by the auth gateway. The token is
// opaque here: issuance and verification live in the external auth
// service, this backend only carries the credential and the role it
// came with.
func SessionContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		if token == c.Get("Authorization") {
			token = ""
		}

		sess := models.Session{
			Name:  c.Get("X-User-Name"),
			Email: c.Get("X-User-Email"),
			Role:  c.Get("X-User-Role"),
			Token: token,
		}
		c.Locals(sessionKey, sess)
		return c.Next()
	}
}

// RequireRole guards mutating routes: the request must carry a bearer
// token and the gateway-supplied role must match.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess := SessionFrom(c)
		if sess.Token == "" {
			log.Printf("[AUTH] missing bearer token on %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "authentication token missing",
			})
		}
		if sess.Role != role {
			log.Printf("[AUTH] role %q denied on %s (need %q)", sess.Role, c.Path(), role)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "insufficient role",
			})
		}
		return c.Next()
	}
}

// SessionFrom returns the session attached by SessionContext; the
// zero session when the middleware did not run.
func SessionFrom(c *fiber.Ctx) models.Session {
	if sess, ok := c.Locals(sessionKey).(models.Session); ok {
		return sess
	}
	return models.Session{}
}
