package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// TokenValidator resolves a bearer token to a user id.
type TokenValidator interface {
	Validate(token string) (int64, error)
}

// tokenFromRequest looks for a token in the :token path param, the token
// query, the token cookie, then the Authorization header.
func tokenFromRequest(c *fiber.Ctx) string {
	if token := c.Params("token"); token != "" {
		return token
	}
	if token := c.Query("token"); token != "" {
		return token
	}
	if token := c.Cookies("token"); token != "" {
		return token
	}

	header := c.Get(fiber.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// Auth validates the request token and stores the user id in context.
// It runs before any websocket upgrade, so a bad token never opens a session.
func Auth(validator TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := tokenFromRequest(c)
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Unauthorized - No token provided",
			})
		}

		userID, err := validator.Validate(tokenString)
		if err != nil {
			log.Debugw("token rejected", "ip", c.IP(), "error", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Unauthorized - Invalid token",
			})
		}

		c.Locals("userID", userID)

		return c.Next()
	}
}

// GetUserID gets user ID from context
func GetUserID(c *fiber.Ctx) int64 {
	userID, ok := c.Locals("userID").(int64)
	if !ok {
		return 0
	}
	return userID
}
