package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/nepgrocery/internal/models"
	"github.com/example/nepgrocery/internal/security"
)

// GeoLocator resolves a source IP to an approximate coordinate. Lookups are
// best-effort: an error means "skip the geo-velocity check", never "block
// the login".
type GeoLocator interface {
	Lookup(ip string) (*security.Coordinates, error)
}

// Mailer is the outbound email collaborator. Sends are synchronous and a
// failure aborts the state change that triggered them.
type Mailer interface {
	SendOTP(to, code string) error
	SendPasswordReset(to, fullName, resetURL string) error
}

// userResponse shapes account data for API responses. The password hash,
// PIN hash and histories never leave the server.
func userResponse(u *models.User) fiber.Map {
	return fiber.Map{
		"id":                 u.ID,
		"full_name":          u.FullName,
		"email":              u.Email,
		"role":               u.Role,
		"profile_picture":    u.ProfilePicture,
		"location":           u.Location,
		"grocery_points":     u.GroceryPoints,
		"created_at":         u.CreatedAt,
		"two_factor_enabled": u.TwoFactorEnabled,
		"is_pin_set":         u.IsPinSet(),
	}
}

// clientIP prefers the X-Forwarded-For chain head over the socket address.
func clientIP(c *fiber.Ctx) string {
	if forwarded := c.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return c.IP()
}
