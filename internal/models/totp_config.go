package models

import (
	"time"

	"github.com/google/uuid"
)

// TOTPConfig holds the optional authenticator-app factor for a user, on
// top of the delivered email/SMS code. The secret is AES-GCM encrypted at
// rest; recovery codes are stored bcrypt-hashed as a JSON array.
type TOTPConfig struct {
	BaseModel
	UserID         uuid.UUID  `json:"userID" gorm:"type:uuid;uniqueIndex;not null"`
	TOTPEnabled    bool       `json:"totpEnabled" gorm:"default:false"`
	TOTPSecret     string     `json:"-" gorm:"type:text"`
	TOTPVerifiedAt *time.Time `json:"totpVerifiedAt,omitempty"`
	RecoveryCodes  string     `json:"-" gorm:"type:text"`
	RecoveryCount  int        `json:"recoveryCodesRemaining" gorm:"default:0"`
	User           User       `json:"-" gorm:"foreignKey:UserID"`
}

func (TOTPConfig) TableName() string {
	return "totp_configs"
}
