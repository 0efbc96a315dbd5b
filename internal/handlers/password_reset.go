package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/example/nepgrocery/internal/config"
	"github.com/example/nepgrocery/internal/models"
	"github.com/example/nepgrocery/internal/security"
	"github.com/example/nepgrocery/internal/utils"
)

// PasswordResetHandler manages the forgot-password flow.
type PasswordResetHandler struct {
	db     *gorm.DB
	cfg    *config.Config
	mailer Mailer
}

// NewPasswordResetHandler constructs a PasswordResetHandler.
func NewPasswordResetHandler(db *gorm.DB, cfg *config.Config, mailer Mailer) *PasswordResetHandler {
	return &PasswordResetHandler{db: db, cfg: cfg, mailer: mailer}
}

const resetSentMessage = "if an account with that email exists, a reset link has been sent"

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword emails a 15-minute reset link. The response never reveals
// whether the address has an account.
func (h *PasswordResetHandler) ForgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email is required")
	}

	var user models.User
	if err := h.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{"success": true, "message": resetSentMessage})
		}
		return err
	}

	token, err := utils.GenerateResetToken(h.cfg.JWTSecret, user.ID, h.cfg.ResetTokenTTL)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate reset token")
	}

	resetURL := fmt.Sprintf("%s/reset-password/%s", h.cfg.ClientURL, token)
	if err := h.mailer.SendPasswordReset(user.Email, user.FullName, resetURL); err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "failed to send reset email; please try again later")
	}

	return c.JSON(fiber.Map{"success": true, "message": resetSentMessage})
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// ResetPassword verifies the reset token and applies the full password
// policy, including the last-5 reuse check, before storing the new hash.
func (h *PasswordResetHandler) ResetPassword(c *fiber.Ctx) error {
	tokenString := c.Params("token")

	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "password is required")
	}

	userID, err := utils.ParseResetToken(h.cfg.JWTSecret, tokenString)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fiber.NewError(fiber.StatusUnauthorized, "token has expired; please request a new reset link")
		}
		return fiber.NewError(fiber.StatusUnauthorized, "invalid or malformed token")
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "user not found")
		}
		return err
	}

	if err := security.ValidateNewPassword(req.Password, user.FullName, user.PasswordHistory); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	hash, err := utils.HashSecret(req.Password)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}

	now := time.Now()
	user.PasswordHash = hash
	user.PasswordHistory = security.PushPasswordHistory(user.PasswordHistory, hash)
	user.PasswordChangedAt = &now

	if err := h.db.Save(&user).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "password has been reset successfully",
	})
}
