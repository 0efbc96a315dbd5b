package database

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/nepgrocery/internal/models"
)

// ChallengeStore is the GORM-backed persistence for pending two-factor
// challenges. It satisfies security.ChallengeStore.
type ChallengeStore struct {
	db *gorm.DB
}

// NewChallengeStore constructs a ChallengeStore.
func NewChallengeStore(db *gorm.DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

// SaveChallenge upserts the pending challenge for an account, so a resend
// overwrites rather than accumulates.
func (s *ChallengeStore) SaveChallenge(userID uuid.UUID, codeHash string, expiresAt time.Time) error {
	challenge := models.LoginChallenge{
		UserID:    userID,
		CodeHash:  codeHash,
		ExpiresAt: expiresAt,
	}

	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"code_hash", "expires_at", "updated_at"}),
	}).Create(&challenge).Error
}

// FindChallenge returns the pending challenge for an account, or nil when
// none exists.
func (s *ChallengeStore) FindChallenge(userID uuid.UUID) (*models.LoginChallenge, error) {
	var challenge models.LoginChallenge
	err := s.db.Where("user_id = ?", userID).First(&challenge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

// ClearChallenge removes the pending challenge, if any.
func (s *ChallengeStore) ClearChallenge(userID uuid.UUID) error {
	return s.db.Where("user_id = ?", userID).Delete(&models.LoginChallenge{}).Error
}
