package models

import (
	"encoding/json"
	"time"
)

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

type TwoFactorChannel string

const (
	TwoFactorChannelEmail TwoFactorChannel = "email"
	TwoFactorChannelSMS   TwoFactorChannel = "sms"
)

type User struct {
	BaseModel
	Email        string   `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string   `json:"-" gorm:"type:text;not null"`
	FirstName    string   `json:"firstName" gorm:"type:varchar(100);not null"`
	LastName     string   `json:"lastName" gorm:"type:varchar(100);not null"`
	Phone        string   `json:"phone" gorm:"type:varchar(30)"`
	Role         UserRole `json:"role" gorm:"type:varchar(20);not null;default:'user'"`
	Permissions  string   `json:"-" gorm:"type:text"`

	// Second-factor login. The pending challenge lives directly on the
	// user row: hash and expiry are always both set or both null.
	TwoFactorEnabled   bool              `json:"twoFactorEnabled" gorm:"not null;default:false"`
	TwoFactorChannel   TwoFactorChannel  `json:"twoFactorChannel" gorm:"type:varchar(10);not null;default:'email'"`
	TwoFactorCodeHash  *string           `json:"-" gorm:"type:text"`
	TwoFactorExpiresAt *time.Time        `json:"-"`
	TwoFactorSentVia   *TwoFactorChannel `json:"-" gorm:"type:varchar(10)"`
}

func (User) TableName() string {
	return "users"
}

// PermissionList decodes the stored permission slugs. A corrupt or empty
// column reads as no extra permissions.
func (u *User) PermissionList() []string {
	if u.Permissions == "" {
		return nil
	}
	var perms []string
	if err := json.Unmarshal([]byte(u.Permissions), &perms); err != nil {
		return nil
	}
	return perms
}

// EncodePermissions serializes permission slugs for the text column.
func EncodePermissions(perms []string) (string, error) {
	if len(perms) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(perms)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// HasPermission reports whether the user holds the given permission slug.
// Admins implicitly hold every permission.
func (u *User) HasPermission(slug string) bool {
	if u.Role == UserRoleAdmin {
		return true
	}
	for _, p := range u.PermissionList() {
		if p == slug {
			return true
		}
	}
	return false
}

// HasPendingChallenge reports whether a second-factor code has been issued
// and not yet consumed or superseded. Expiry is checked separately.
func (u *User) HasPendingChallenge() bool {
	return u.TwoFactorCodeHash != nil && u.TwoFactorExpiresAt != nil
}
