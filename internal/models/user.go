package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles. Role is assigned server-side and is never settable by the
// owning account.
const (
	RoleNormal = "normal"
	RoleAdmin  = "admin"
)

// LoginHistoryLimit bounds the login-history log per account.
const LoginHistoryLimit = 5

// PasswordHistoryLimit bounds the password reuse-check window.
const PasswordHistoryLimit = 5

// User represents a customer or admin account.
type User struct {
	BaseModel
	FullName          string        `json:"full_name"`
	Email             string        `gorm:"uniqueIndex" json:"email"`
	Role              string        `json:"role"`
	PasswordHash      string        `json:"-"`
	PasswordHistory   []string      `gorm:"serializer:json" json:"-"`
	PasswordChangedAt *time.Time    `json:"-"`
	ProfilePicture    string        `json:"profile_picture"`
	Location          string        `json:"location"`
	GroceryPoints     int           `json:"grocery_points"`
	IsActive          bool          `json:"is_active"`
	PINHash           string        `gorm:"column:pin_hash" json:"-"`
	TwoFactorEnabled  bool          `json:"two_factor_enabled"`
	LoginRecords      []LoginRecord `json:"-"`
	Orders            []Order       `gorm:"foreignKey:CustomerID" json:"orders,omitempty"`
}

// IsPinSet reports whether a security PIN has been configured.
func (u *User) IsPinSet() bool {
	return u.PINHash != ""
}

// LoginRecord is one entry in the bounded login-history log. Coordinates are
// nil when IP geolocation was unavailable at login time.
type LoginRecord struct {
	BaseModel
	UserID    uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	IP        string    `json:"ip"`
	Lat       *float64  `json:"lat"`
	Lon       *float64  `json:"lon"`
	Timestamp time.Time `json:"timestamp"`
}

// LoginChallenge is a pending two-factor challenge. At most one exists per
// account; it is deleted on consumption or expiry and overwritten on resend.
type LoginChallenge struct {
	BaseModel
	UserID    uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"user_id"`
	CodeHash  string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}
