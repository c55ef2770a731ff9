package services

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ekklesia/backend/internal/models"
	"github.com/ekklesia/backend/pkg/logger"
	"github.com/ekklesia/backend/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Fixed validity window for a delivered code.
const challengeValidity = 10 * time.Minute

var (
	ErrNoPendingChallenge = errors.New("no pending challenge")
	ErrExpiredCode        = errors.New("code expired")
	ErrInvalidCode        = errors.New("invalid code")
)

// TwoFactorService owns the pending-challenge fields on the user row:
// issuing a hashed one-time code, verifying a submission against it, and
// clearing it after use. A user has at most one active challenge; issuing
// a new code supersedes the previous one even if it has not expired.
type TwoFactorService struct {
	DB *gorm.DB
}

func NewTwoFactorService(db *gorm.DB) *TwoFactorService {
	return &TwoFactorService{DB: db}
}

// GenerateCode returns a uniformly distributed 6-digit code in
// [100000, 999999] from a cryptographic source.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed reading random source: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// Issue generates a fresh code for the user, stores its bcrypt hash with
// a 10-minute expiry, and returns the plaintext for delivery. The
// plaintext is never persisted. Any previously pending challenge is
// overwritten.
func (s *TwoFactorService) Issue(user *models.User, channel models.TwoFactorChannel) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", err
	}

	codeHash, err := utils.HashPassword(code)
	if err != nil {
		return "", fmt.Errorf("failed hashing code: %w", err)
	}

	expiresAt := time.Now().Add(challengeValidity)
	if err := s.DB.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"two_factor_code_hash":  codeHash,
		"two_factor_expires_at": expiresAt,
		"two_factor_sent_via":   channel,
	}).Error; err != nil {
		return "", fmt.Errorf("failed storing challenge: %w", err)
	}

	user.TwoFactorCodeHash = &codeHash
	user.TwoFactorExpiresAt = &expiresAt
	user.TwoFactorSentVia = &channel

	logger.InfoWithUser(user.ID.String(), "two_factor_challenge_issued", map[string]interface{}{
		"channel":    string(channel),
		"expires_at": expiresAt.UTC(),
	})

	return code, nil
}

// Verify checks a submitted code against the user's pending challenge
// without consuming it. Failures are ordered so that callers cannot
// distinguish a missing challenge from a wrong code unless they choose to.
func (s *TwoFactorService) Verify(user *models.User, code string) error {
	if !user.HasPendingChallenge() {
		return ErrNoPendingChallenge
	}
	if time.Now().After(*user.TwoFactorExpiresAt) {
		// Expired challenges are left in place; issuing a new code
		// overwrites them.
		return ErrExpiredCode
	}
	if !utils.CheckPassword(code, *user.TwoFactorCodeHash) {
		return ErrInvalidCode
	}
	return nil
}

// Consume verifies the code and clears the challenge in one step. The
// clear is a guarded update on the stored hash with the row count
// checked, so two concurrent submissions of the same valid code cannot
// both succeed.
func (s *TwoFactorService) Consume(user *models.User, code string) error {
	if err := s.Verify(user, code); err != nil {
		return err
	}

	result := s.DB.Model(&models.User{}).
		Where("id = ? AND two_factor_code_hash = ?", user.ID, *user.TwoFactorCodeHash).
		Updates(map[string]interface{}{
			"two_factor_code_hash":  nil,
			"two_factor_expires_at": nil,
			"two_factor_sent_via":   nil,
		})
	if result.Error != nil {
		return fmt.Errorf("failed clearing challenge: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Lost the race: the challenge was consumed or superseded
		// between the read and the guarded update.
		return ErrNoPendingChallenge
	}

	user.TwoFactorCodeHash = nil
	user.TwoFactorExpiresAt = nil
	user.TwoFactorSentVia = nil

	logger.InfoWithUser(user.ID.String(), "two_factor_challenge_consumed", nil)
	return nil
}

// Clear unconditionally removes any pending challenge. Idempotent.
func (s *TwoFactorService) Clear(userID uuid.UUID) error {
	return s.DB.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"two_factor_code_hash":  nil,
		"two_factor_expires_at": nil,
		"two_factor_sent_via":   nil,
	}).Error
}
