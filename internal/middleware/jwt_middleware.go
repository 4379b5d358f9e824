package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"marketplace/internal/apperror"
	"marketplace/internal/models"
	"marketplace/internal/services"
)

const (
	localUserID   = "user_id"
	localUsername = "username"
	localRole     = "role"
)

// TokenValidator checks bearer tokens. *services.AuthService implements it.
type TokenValidator interface {
	ValidateToken(token string) (*services.TokenClaims, error)
}

// AuthRequired is a Fiber middleware to check for a valid JWT token.
func AuthRequired(auth TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return apperror.Unauthorized("Authorization header is required")
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return apperror.Unauthorized("Authorization header format must be 'Bearer <token>'")
		}

		claims, err := auth.ValidateToken(parts[1])
		if err != nil {
			return err
		}

		c.Locals(localUserID, claims.UserID)
		c.Locals(localUsername, claims.Username)
		c.Locals(localRole, string(claims.Role))
		return c.Next()
	}
}

// RequireRole lets the request through only when the caller has one of roles.
// It must run after AuthRequired.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role := Role(c)
		for _, allowed := range roles {
			if role == allowed {
				return c.Next()
			}
		}
		return apperror.Forbidden("Access denied")
	}
}

// UserID returns the authenticated user's id, or "" on public routes.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

func Role(c *fiber.Ctx) models.Role {
	role, _ := c.Locals(localRole).(string)
	return models.Role(role)
}

// Actor is the caller of the current request.
func Actor(c *fiber.Ctx) services.Actor {
	return services.Actor{UserID: UserID(c), Role: Role(c)}
}
