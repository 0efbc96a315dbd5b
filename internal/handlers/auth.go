package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/example/nepgrocery/internal/config"
	"github.com/example/nepgrocery/internal/models"
	"github.com/example/nepgrocery/internal/security"
	"github.com/example/nepgrocery/internal/utils"
)

// AuthHandler bundles dependencies for authentication endpoints.
type AuthHandler struct {
	db  *gorm.DB
	cfg *config.Config
	otp *security.OTPManager
	geo GeoLocator
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config, otp *security.OTPManager, geo GeoLocator) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg, otp: otp, geo: geo}
}

type registerRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a new customer account. The role is always "normal":
// clients can never register themselves as admins.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Email == "" || req.FullName == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "please fill all fields")
	}

	if err := security.ValidateNewPassword(req.Password, req.FullName, nil); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var existing models.User
	if err := h.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return fiber.NewError(fiber.StatusConflict, "user with this email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	passwordHash, err := utils.HashSecret(req.Password)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		FullName:      req.FullName,
		Email:         req.Email,
		Role:          models.RoleNormal,
		PasswordHash:  passwordHash,
		GroceryPoints: 0,
		IsActive:      true,
	}

	if err := h.db.Create(&user).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "user registered successfully",
		"data":    userResponse(&user),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	PIN      string `json:"pin"`
}

// Login authenticates an existing user. The flow branches password ->
// two-factor -> geo-velocity -> PIN step-up; the branching itself lives in
// security.DecideLogin, this handler only performs the surrounding I/O.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email and password are required")
	}

	var user models.User
	if err := h.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, security.ErrInvalidCredentials.Error())
		}
		return err
	}

	attempt := security.LoginAttempt{
		PasswordOK:       utils.CheckSecret(user.PasswordHash, req.Password),
		AccountActive:    user.IsActive,
		TwoFactorEnabled: user.TwoFactorEnabled,
		PINHash:          user.PINHash,
		SubmittedPIN:     req.PIN,
	}

	// The geo-velocity check only matters once the password holds and no OTP
	// round-trip will interpose.
	ip := clientIP(c)
	var coords *security.Coordinates
	if attempt.PasswordOK && attempt.AccountActive && !attempt.TwoFactorEnabled {
		var err error
		coords, err = h.geo.Lookup(ip)
		if err != nil {
			// Not security-critical: skip the check rather than block logins
			// on a geolocation outage.
			log.Debug().Err(err).Str("ip", ip).Msg("geo lookup skipped")
		}
		attempt.RiskFlagged = security.AssessLogin(h.lastLogin(user.ID), time.Now(), coords)
	}

	decision := security.DecideLogin(attempt)

	switch decision.Outcome {
	case security.LoginRequires2FA:
		if err := h.otp.Issue(user.ID, user.Email); err != nil {
			if errors.Is(err, security.ErrOTPDelivery) {
				return fiber.NewError(fiber.StatusBadGateway, security.ErrOTPDelivery.Error())
			}
			return err
		}
		return c.JSON(fiber.Map{
			"success":      true,
			"requires_2fa": true,
			"user_id":      user.ID,
			"message":      fmt.Sprintf("Verification code sent to %s", security.MaskEmail(user.Email)),
		})

	case security.LoginRequiresPin:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success":      false,
			"requires_pin": true,
			"message":      "suspicious login detected (traveling too fast); please enter your security PIN",
		})

	case security.LoginDenied:
		if errors.Is(decision.Reason, security.ErrAccountDeactivated) {
			return fiber.NewError(fiber.StatusForbidden, decision.Reason.Error())
		}
		return fiber.NewError(fiber.StatusUnauthorized, decision.Reason.Error())
	}

	if err := h.recordLogin(&user, ip, coords); err != nil {
		return err
	}

	return h.issueSession(c, &user, "login successful")
}

type verifyOTPRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

// VerifyOTP consumes a pending two-factor challenge and, on success, issues
// the session that Login withheld.
func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	var req verifyOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.UserID == "" || req.Code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "user id and OTP are required")
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "user not found")
		}
		return err
	}

	// The account may have been deactivated between the password step and the
	// code round-trip.
	if !user.IsActive {
		return fiber.NewError(fiber.StatusForbidden, security.ErrAccountDeactivated.Error())
	}

	if err := h.otp.Verify(user.ID, req.Code); err != nil {
		switch {
		case errors.Is(err, security.ErrNoChallenge),
			errors.Is(err, security.ErrChallengeExpired),
			errors.Is(err, security.ErrCodeMismatch):
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		return err
	}

	ip := clientIP(c)
	coords, lookupErr := h.geo.Lookup(ip)
	if lookupErr != nil {
		log.Debug().Err(lookupErr).Str("ip", ip).Msg("geo lookup skipped")
	}
	if err := h.recordLogin(&user, ip, coords); err != nil {
		return err
	}

	return h.issueSession(c, &user, "login successful")
}

type resendOTPRequest struct {
	UserID string `json:"user_id"`
}

// ResendOTP issues a fresh challenge, overwriting any pending one. Only
// two-factor accounts may request it.
func (h *AuthHandler) ResendOTP(c *fiber.Ctx) error {
	var req resendOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "user not found")
		}
		return err
	}

	if !user.IsActive {
		return fiber.NewError(fiber.StatusForbidden, security.ErrAccountDeactivated.Error())
	}

	if !user.TwoFactorEnabled {
		return fiber.NewError(fiber.StatusBadRequest, "2FA is not enabled for this account")
	}

	if err := h.otp.Issue(user.ID, user.Email); err != nil {
		if errors.Is(err, security.ErrOTPDelivery) {
			return fiber.NewError(fiber.StatusBadGateway, security.ErrOTPDelivery.Error())
		}
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "new verification code sent",
	})
}

// Logout acknowledges a logout. Sessions are stateless bearer tokens, so the
// client simply discards its copy.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"message": "logged out successfully",
	})
}

// lastLogin returns the most recent login record, or nil when no history
// exists.
func (h *AuthHandler) lastLogin(userID uuid.UUID) *models.LoginRecord {
	var record models.LoginRecord
	err := h.db.Where("user_id = ?", userID).
		Order("timestamp desc").
		First(&record).Error
	if err != nil {
		return nil
	}
	return &record
}

// recordLogin appends a login-history entry (coordinates nullable) and trims
// the log to the most recent entries.
func (h *AuthHandler) recordLogin(user *models.User, ip string, coords *security.Coordinates) error {
	record := models.LoginRecord{
		UserID:    user.ID,
		IP:        ip,
		Timestamp: time.Now(),
	}
	if coords != nil {
		record.Lat = &coords.Lat
		record.Lon = &coords.Lon
	}

	if err := h.db.Create(&record).Error; err != nil {
		return err
	}

	var stale []models.LoginRecord
	if err := h.db.Where("user_id = ?", user.ID).
		Order("timestamp desc").
		Offset(models.LoginHistoryLimit).
		Find(&stale).Error; err != nil {
		return err
	}
	if len(stale) > 0 {
		if err := h.db.Delete(&stale).Error; err != nil {
			return err
		}
	}

	return nil
}

func (h *AuthHandler) issueSession(c *fiber.Ctx, user *models.User, message string) error {
	token, err := utils.GenerateToken(h.cfg.JWTSecret, user.ID, user.Role, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": message,
		"token":   token,
		"role":    user.Role,
		"data":    userResponse(user),
	})
}
