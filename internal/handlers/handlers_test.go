package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/nepgrocery/internal/config"
	"github.com/example/nepgrocery/internal/database"
	"github.com/example/nepgrocery/internal/models"
	"github.com/example/nepgrocery/internal/security"
	"github.com/example/nepgrocery/internal/utils"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A pooled second connection would see a different in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:     "test-secret",
		TokenExpires:  time.Hour,
		ResetTokenTTL: 15 * time.Minute,
		ClientURL:     "http://localhost:5173",
		BackendURL:    "http://localhost:8081",
	}
}

type stubMailer struct {
	otpTo    string
	otpCode  string
	otpSends int
	failOTP  bool

	resetTo   string
	resetURL  string
	resetSent int
}

func (m *stubMailer) SendOTP(to, code string) error {
	if m.failOTP {
		return errors.New("smtp: connection refused")
	}
	m.otpTo = to
	m.otpCode = code
	m.otpSends++
	return nil
}

func (m *stubMailer) SendPasswordReset(to, fullName, resetURL string) error {
	m.resetTo = to
	m.resetURL = resetURL
	m.resetSent++
	return nil
}

type stubGeo struct {
	coords *security.Coordinates
}

func (g *stubGeo) Lookup(string) (*security.Coordinates, error) {
	if g.coords == nil {
		return nil, errors.New("geoip lookup unavailable")
	}
	return g.coords, nil
}

func createUser(t *testing.T, db *gorm.DB, email, password string, mutate ...func(*models.User)) *models.User {
	t.Helper()

	hash, err := utils.HashSecret(password)
	require.NoError(t, err)

	user := &models.User{
		FullName:     "Ram Bahadur",
		Email:        email,
		Role:         models.RoleNormal,
		PasswordHash: hash,
		IsActive:     true,
	}
	for _, fn := range mutate {
		fn(user)
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func sessionToken(t *testing.T, cfg *config.Config, user *models.User) string {
	t.Helper()

	token, err := utils.GenerateToken(cfg.JWTSecret, user.ID, user.Role, cfg.TokenExpires)
	require.NoError(t, err)
	return token
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func authedRequest(t *testing.T, method, target, token string, body any) *http.Request {
	t.Helper()

	req := jsonRequest(t, method, target, body)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		decoded = nil
	}
	return resp, decoded
}
