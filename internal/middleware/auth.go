package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/nepgrocery/internal/config"
	"github.com/example/nepgrocery/internal/models"
	"github.com/example/nepgrocery/internal/utils"
)

const userContextKey = "currentUser"

// AuthMiddleware validates the bearer JWT, loads the account and rejects
// deactivated accounts before any handler runs.
func AuthMiddleware(cfg *config.Config, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication failed: no token provided")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
		}

		userID, _, err := utils.ParseToken(cfg.JWTSecret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		var user models.User
		if err := db.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "authentication failed: user not found")
			}
			return err
		}

		if !user.IsActive {
			return fiber.NewError(fiber.StatusForbidden, "your account has been deactivated; please contact support")
		}

		c.Locals(userContextKey, &user)
		return c.Next()
	}
}

// RequireAdmin rejects requests from accounts without the admin role. It
// must run after AuthMiddleware.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := GetCurrentUser(c)
		if !ok || user.Role != models.RoleAdmin {
			return fiber.NewError(fiber.StatusForbidden, "access denied: admin privileges are required")
		}
		return c.Next()
	}
}

// GetCurrentUser extracts the authenticated account from context.
func GetCurrentUser(c *fiber.Ctx) (*models.User, bool) {
	value := c.Locals(userContextKey)
	if value == nil {
		return nil, false
	}

	user, ok := value.(*models.User)
	return user, ok
}
