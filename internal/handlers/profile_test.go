package handlers

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/nepgrocery/internal/config"
	"github.com/example/nepgrocery/internal/middleware"
	"github.com/example/nepgrocery/internal/models"
	"github.com/example/nepgrocery/internal/utils"
)

func newProfileApp(db *gorm.DB, cfg *config.Config) *fiber.App {
	app := fiber.New()
	h := NewProfileHandler(db)

	protected := app.Group("", middleware.AuthMiddleware(cfg, db))
	protected.Get("/profile", h.GetProfile)
	protected.Put("/profile", h.UpdateProfile)
	protected.Put("/profile/picture", h.UpdateProfilePicture)
	protected.Post("/profile/pin", h.SetPIN)
	protected.Post("/profile/pin/verify", h.VerifyPIN)
	return app
}

func TestGetProfile_HidesSecrets(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	app := newProfileApp(db, cfg)
	user := createUser(t, db, "ram@example.com", "Str0ng!Pass")

	resp, body := doRequest(t, app, authedRequest(t, http.MethodGet, "/profile", sessionToken(t, cfg, user), nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := body["data"].(map[string]any)
	assert.Equal(t, "ram@example.com", data["email"])
	assert.Equal(t, false, data["is_pin_set"])
	assert.NotContains(t, data, "password_hash")
	assert.NotContains(t, data, "pin_hash")
}

func TestSetPIN(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	app := newProfileApp(db, cfg)
	user := createUser(t, db, "ram@example.com", "Str0ng!Pass")
	token := sessionToken(t, cfg, user)

	resp, _ := doRequest(t, app, authedRequest(t, http.MethodPost, "/profile/pin", token, fiber.Map{
		"pin": "12ab56",
	}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, app, authedRequest(t, http.MethodPost, "/profile/pin", token, fiber.Map{
		"pin": "123456",
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fresh models.User
	reload(t, db, &fresh, user.ID)
	assert.True(t, fresh.IsPinSet())
	assert.NotEqual(t, "123456", fresh.PINHash)

	// A configured PIN cannot be silently replaced.
	resp, _ = doRequest(t, app, authedRequest(t, http.MethodPost, "/profile/pin", token, fiber.Map{
		"pin": "654321",
	}))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestVerifyPIN(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	app := newProfileApp(db, cfg)

	pinHash, err := utils.HashSecret("123456")
	require.NoError(t, err)
	withPin := createUser(t, db, "ram@example.com", "Str0ng!Pass", func(u *models.User) {
		u.PINHash = pinHash
	})
	withoutPin := createUser(t, db, "sita@example.com", "Str0ng!Pass")

	resp, _ := doRequest(t, app, authedRequest(t, http.MethodPost, "/profile/pin/verify",
		sessionToken(t, cfg, withPin), fiber.Map{"pin": "123456"}))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, app, authedRequest(t, http.MethodPost, "/profile/pin/verify",
		sessionToken(t, cfg, withPin), fiber.Map{"pin": "654321"}))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doRequest(t, app, authedRequest(t, http.MethodPost, "/profile/pin/verify",
		sessionToken(t, cfg, withoutPin), fiber.Map{"pin": "123456"}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateProfile_PINGateOnSensitiveChanges(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	app := newProfileApp(db, cfg)

	pinHash, err := utils.HashSecret("123456")
	require.NoError(t, err)
	user := createUser(t, db, "ram@example.com", "Str0ng!Pass", func(u *models.User) {
		u.PINHash = pinHash
		u.TwoFactorEnabled = true
	})
	token := sessionToken(t, cfg, user)

	// Disabling two-factor without the PIN is refused.
	resp, _ := doRequest(t, app, authedRequest(t, http.MethodPut, "/profile", token, fiber.Map{
		"two_factor_enabled": false,
	}))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doRequest(t, app, authedRequest(t, http.MethodPut, "/profile", token, fiber.Map{
		"two_factor_enabled": false,
		"pin":                "654321",
	}))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var fresh models.User
	reload(t, db, &fresh, user.ID)
	assert.True(t, fresh.TwoFactorEnabled)

	resp, _ = doRequest(t, app, authedRequest(t, http.MethodPut, "/profile", token, fiber.Map{
		"two_factor_enabled": false,
		"pin":                "123456",
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reload(t, db, &fresh, user.ID)
	assert.False(t, fresh.TwoFactorEnabled)
}

func TestUpdateProfile_EmailChangeGuards(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	app := newProfileApp(db, cfg)

	pinHash, err := utils.HashSecret("123456")
	require.NoError(t, err)
	user := createUser(t, db, "ram@example.com", "Str0ng!Pass", func(u *models.User) {
		u.PINHash = pinHash
	})
	createUser(t, db, "taken@example.com", "Str0ng!Pass")
	token := sessionToken(t, cfg, user)

	resp, _ := doRequest(t, app, authedRequest(t, http.MethodPut, "/profile", token, fiber.Map{
		"email": "new@example.com",
	}))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doRequest(t, app, authedRequest(t, http.MethodPut, "/profile", token, fiber.Map{
		"email": "taken@example.com",
		"pin":   "123456",
	}))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doRequest(t, app, authedRequest(t, http.MethodPut, "/profile", token, fiber.Map{
		"email": "new@example.com",
		"pin":   "123456",
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fresh models.User
	reload(t, db, &fresh, user.ID)
	assert.Equal(t, "new@example.com", fresh.Email)
}

func TestUpdateProfile_NonSensitiveChangesNeedNoPIN(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	app := newProfileApp(db, cfg)

	pinHash, err := utils.HashSecret("123456")
	require.NoError(t, err)
	user := createUser(t, db, "ram@example.com", "Str0ng!Pass", func(u *models.User) {
		u.PINHash = pinHash
	})
	token := sessionToken(t, cfg, user)

	resp, _ := doRequest(t, app, authedRequest(t, http.MethodPut, "/profile", token, fiber.Map{
		"full_name": "Ram B. Thapa",
		"location":  "Pokhara",
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fresh models.User
	reload(t, db, &fresh, user.ID)
	assert.Equal(t, "Ram B. Thapa", fresh.FullName)
	assert.Equal(t, "Pokhara", fresh.Location)
}

func TestUpdateProfile_NoPINConfiguredSkipsGate(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	app := newProfileApp(db, cfg)

	user := createUser(t, db, "ram@example.com", "Str0ng!Pass", func(u *models.User) {
		u.TwoFactorEnabled = true
	})
	token := sessionToken(t, cfg, user)

	resp, _ := doRequest(t, app, authedRequest(t, http.MethodPut, "/profile", token, fiber.Map{
		"two_factor_enabled": false,
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fresh models.User
	reload(t, db, &fresh, user.ID)
	assert.False(t, fresh.TwoFactorEnabled)
}

func TestUpdateProfilePicture(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	app := newProfileApp(db, cfg)
	user := createUser(t, db, "ram@example.com", "Str0ng!Pass")
	token := sessionToken(t, cfg, user)

	resp, _ := doRequest(t, app, authedRequest(t, http.MethodPut, "/profile/picture", token, fiber.Map{
		"profile_picture": "https://cdn.example.com/avatars/ram.png",
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fresh models.User
	reload(t, db, &fresh, user.ID)
	assert.Equal(t, "https://cdn.example.com/avatars/ram.png", fresh.ProfilePicture)

	resp, _ = doRequest(t, app, authedRequest(t, http.MethodPut, "/profile/picture", token, fiber.Map{}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
