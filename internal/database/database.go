package database

import (
	"fmt"

	"github.com/ekklesia/backend/internal/config"
	"github.com/ekklesia/backend/internal/models"
	"github.com/ekklesia/backend/pkg/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := seedAdminUser(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.TOTPConfig{},
		&models.Room{},
		&models.Child{},
		&models.Monitor{},
		&models.Activity{},
		&models.WorshipReport{},
		&models.CashTransaction{},
		&models.Payment{},
		&models.Presence{},
		&models.Post{},
		&models.Media{},
		&models.Notification{},
		&models.AuditLog{},
		&models.AuditExportCursor{},
	); err != nil {
		return err
	}

	// A challenge is never half-issued: code hash and expiry are set and
	// cleared together.
	constraint := `
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1
    FROM pg_constraint
    WHERE conname = 'two_factor_challenge_check'
  ) THEN
    ALTER TABLE users
    ADD CONSTRAINT two_factor_challenge_check
    CHECK (
      (two_factor_code_hash IS NOT NULL AND two_factor_expires_at IS NOT NULL)
      OR
      (two_factor_code_hash IS NULL AND two_factor_expires_at IS NULL)
    );
  END IF;
END $$;`

	return db.Exec(constraint).Error
}

func seedAdminUser(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		return nil
	}

	hash, err := utils.HashPassword("admin123")
	if err != nil {
		return err
	}

	admin := models.User{
		Email:        "admin@ekklesia.local",
		PasswordHash: hash,
		FirstName:    "System",
		LastName:     "Admin",
		Role:         models.UserRoleAdmin,
	}

	return db.Create(&admin).Error
}
