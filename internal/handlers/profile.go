package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/nepgrocery/internal/middleware"
	"github.com/example/nepgrocery/internal/models"
	"github.com/example/nepgrocery/internal/security"
	"github.com/example/nepgrocery/internal/utils"
)

// ProfileHandler manages account profile and security-PIN endpoints.
type ProfileHandler struct {
	db *gorm.DB
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(db *gorm.DB) *ProfileHandler {
	return &ProfileHandler{db: db}
}

// GetProfile returns the authenticated account.
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	return c.JSON(fiber.Map{"success": true, "data": userResponse(user)})
}

type updateProfileRequest struct {
	FullName         string  `json:"full_name"`
	Email            string  `json:"email"`
	Location         *string `json:"location"`
	TwoFactorEnabled *bool   `json:"two_factor_enabled"`
	PIN              string  `json:"pin"`
}

// UpdateProfile updates account fields. Disabling two-factor authentication
// or changing the email are trust-reducing actions: with a PIN set they
// require the correct PIN in the same request, so a stolen session token
// alone cannot perform them. The role field is never updatable here.
func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	isDisabling2FA := req.TwoFactorEnabled != nil && !*req.TwoFactorEnabled && user.TwoFactorEnabled
	isChangingEmail := req.Email != "" && req.Email != user.Email

	if (isDisabling2FA || isChangingEmail) && user.IsPinSet() {
		if req.PIN == "" {
			return fiber.NewError(fiber.StatusForbidden, "security PIN required to change sensitive settings")
		}
		if err := security.VerifyPIN(user.PINHash, req.PIN); err != nil {
			return fiber.NewError(fiber.StatusForbidden, "invalid security PIN")
		}
	}

	if isChangingEmail {
		var existing models.User
		err := h.db.Where("email = ? AND id <> ?", req.Email, user.ID).First(&existing).Error
		if err == nil {
			return fiber.NewError(fiber.StatusConflict, "email is already in use by another account")
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		user.Email = req.Email
	}

	if req.FullName != "" {
		user.FullName = req.FullName
	}
	if req.Location != nil {
		user.Location = *req.Location
	}
	if req.TwoFactorEnabled != nil {
		user.TwoFactorEnabled = *req.TwoFactorEnabled
	}

	if err := h.db.Save(user).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "profile updated successfully",
		"data":    userResponse(user),
	})
}

type updatePictureRequest struct {
	ProfilePicture string `json:"profile_picture"`
}

// UpdateProfilePicture stores a new profile picture reference.
func (h *ProfileHandler) UpdateProfilePicture(c *fiber.Ctx) error {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req updatePictureRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.ProfilePicture == "" {
		return fiber.NewError(fiber.StatusBadRequest, "profile_picture is required")
	}

	user.ProfilePicture = req.ProfilePicture
	if err := h.db.Save(user).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "profile picture updated successfully",
		"data":    userResponse(user),
	})
}

type pinRequest struct {
	PIN string `json:"pin"`
}

// SetPIN configures the security PIN once. An existing PIN is never silently
// overwritten; resets go through support.
func (h *ProfileHandler) SetPIN(c *fiber.Ctx) error {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req pinRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if user.IsPinSet() {
		return fiber.NewError(fiber.StatusConflict, security.ErrPINAlreadySet.Error())
	}
	if err := security.ValidatePINFormat(req.PIN); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	hash, err := utils.HashSecret(req.PIN)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash PIN")
	}

	user.PINHash = hash
	if err := h.db.Save(user).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "security PIN set successfully",
	})
}

// VerifyPIN reports whether the submitted PIN matches. It makes no
// authorization decision itself.
func (h *ProfileHandler) VerifyPIN(c *fiber.Ctx) error {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req pinRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	switch err := security.VerifyPIN(user.PINHash, req.PIN); {
	case errors.Is(err, security.ErrPINNotSet):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, security.ErrPINMismatch):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	case err != nil:
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "PIN verified",
	})
}
