package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/nepgrocery/internal/models"
	"github.com/example/nepgrocery/internal/utils"
)

// OTPTTL is how long an issued challenge stays verifiable.
const OTPTTL = 10 * time.Minute

// OTP challenge failures.
var (
	ErrNoChallenge      = errors.New("no OTP request found; please login again")
	ErrChallengeExpired = errors.New("OTP has expired; please login again to get a new code")
	ErrCodeMismatch     = errors.New("invalid OTP")
	ErrOTPDelivery      = errors.New("failed to send verification code")
)

// ChallengeStore persists pending two-factor challenges keyed by account id.
type ChallengeStore interface {
	// SaveChallenge writes a pending challenge, replacing any existing one.
	SaveChallenge(userID uuid.UUID, codeHash string, expiresAt time.Time) error
	// FindChallenge returns the pending challenge or nil when none exists.
	FindChallenge(userID uuid.UUID) (*models.LoginChallenge, error)
	// ClearChallenge removes the pending challenge, if any.
	ClearChallenge(userID uuid.UUID) error
}

// OTPMailer delivers a plaintext one-time code out-of-band.
type OTPMailer interface {
	SendOTP(to, code string) error
}

// OTPManager drives the challenge state machine:
// NoChallenge -> Issued -> {Consumed | Expired}.
type OTPManager struct {
	store  ChallengeStore
	mailer OTPMailer
	ttl    time.Duration
	now    func() time.Time
}

// NewOTPManager wires an OTPManager with the default 10-minute TTL.
func NewOTPManager(store ChallengeStore, mailer OTPMailer) *OTPManager {
	return &OTPManager{
		store:  store,
		mailer: mailer,
		ttl:    OTPTTL,
		now:    time.Now,
	}
}

// Issue generates a fresh 6-digit code, emails it, and persists its hash
// with an expiry. Delivery is attempted before anything is written: a send
// failure aborts the state transition so an undeliverable challenge is never
// left pending. Calling Issue with a challenge already pending overwrites it,
// which is exactly the resend semantics.
func (m *OTPManager) Issue(userID uuid.UUID, email string) error {
	code, err := GenerateCode()
	if err != nil {
		return err
	}

	codeHash, err := utils.HashSecret(code)
	if err != nil {
		return err
	}

	if err := m.mailer.SendOTP(email, code); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPDelivery, err)
	}

	return m.store.SaveChallenge(userID, codeHash, m.now().Add(m.ttl))
}

// Verify consumes a pending challenge. A mismatched code leaves the
// challenge active so the user can retry; expiry and consumption both clear
// it, so a code can never be verified twice.
func (m *OTPManager) Verify(userID uuid.UUID, code string) error {
	challenge, err := m.store.FindChallenge(userID)
	if err != nil {
		return err
	}
	if challenge == nil {
		return ErrNoChallenge
	}

	if m.now().After(challenge.ExpiresAt) {
		if err := m.store.ClearChallenge(userID); err != nil {
			return err
		}
		return ErrChallengeExpired
	}

	if !utils.CheckSecret(challenge.CodeHash, code) {
		return ErrCodeMismatch
	}

	return m.store.ClearChallenge(userID)
}

// GenerateCode returns a cryptographically random 6-digit numeric code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// MaskEmail hides most of an address for challenge responses, e.g.
// "dipesh@gmail.com" becomes "dip***@gmail.com". Addresses with local parts
// shorter than three characters are returned unchanged.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 3 {
		return email
	}
	return email[:3] + "***" + email[at:]
}
