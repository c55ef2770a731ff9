package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/ekklesia/backend/internal/middleware"
	"github.com/ekklesia/backend/internal/models"
	"github.com/ekklesia/backend/internal/services"
	"github.com/ekklesia/backend/pkg/logger"
	"github.com/ekklesia/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"
)

type TOTPHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewTOTPHandler(db *gorm.DB, audit *services.AuditService) *TOTPHandler {
	return &TOTPHandler{DB: db, Audit: audit}
}

func (h *TOTPHandler) Status(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var cfg models.TOTPConfig
	hasCfg := h.DB.First(&cfg, "user_id = ?", user.ID).Error == nil

	totpEnabled := hasCfg && cfg.TOTPEnabled

	var verifiedAt *time.Time
	recoveryCount := 0
	if hasCfg {
		verifiedAt = cfg.TOTPVerifiedAt
		recoveryCount = cfg.RecoveryCount
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"codeEnabled":            user.TwoFactorEnabled,
		"codeChannel":            user.TwoFactorChannel,
		"totpEnabled":            totpEnabled,
		"totpVerifiedAt":         verifiedAt,
		"recoveryCodesRemaining": recoveryCount,
	})
}

func (h *TOTPHandler) Setup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var existing models.TOTPConfig
	if err := h.DB.First(&existing, "user_id = ?", user.ID).Error; err == nil && existing.TOTPEnabled {
		return utils.Error(c, fiber.StatusConflict, "TOTP is already enabled")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Ekklesia",
		AccountName: user.Email,
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to generate TOTP secret")
	}

	encryptedSecret, err := utils.EncryptAESGCM(key.Secret())
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to encrypt TOTP secret")
	}

	if existing.ID != [16]byte{} {
		if err := h.DB.Model(&existing).Updates(map[string]interface{}{
			"totp_secret":      encryptedSecret,
			"totp_enabled":     false,
			"totp_verified_at": nil,
		}).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed to update TOTP config")
		}
	} else {
		cfg := models.TOTPConfig{
			UserID:     user.ID,
			TOTPSecret: encryptedSecret,
		}
		if err := h.DB.Create(&cfg).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed to save TOTP config")
		}
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"secret": key.Secret(),
		"qrUri":  key.URL(),
	})
}

type verifyTOTPSetupRequest struct {
	Code string `json:"code"`
}

func (h *TOTPHandler) VerifySetup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req verifyTOTPSetupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Code == "" {
		return utils.Error(c, fiber.StatusBadRequest, "code is required")
	}

	var cfg models.TOTPConfig
	if err := h.DB.First(&cfg, "user_id = ?", user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "TOTP setup not started")
	}

	if cfg.TOTPEnabled {
		return utils.Error(c, fiber.StatusConflict, "TOTP is already enabled")
	}

	totpSecret := utils.DecryptOrPlaintext(cfg.TOTPSecret)
	if !totp.Validate(req.Code, totpSecret) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid TOTP code")
	}

	codes, hashedCodes, err := generateRecoveryCodes(10)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to generate recovery codes")
	}

	codesJSON, err := json.Marshal(hashedCodes)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to serialize recovery codes")
	}
	now := time.Now()
	if err := h.DB.Model(&cfg).Updates(map[string]interface{}{
		"totp_enabled":     true,
		"totp_verified_at": now,
		"recovery_codes":   string(codesJSON),
		"recovery_count":   len(codes),
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to enable TOTP")
	}

	logger.Info("totp_enabled", map[string]interface{}{
		"user_id": user.ID.String(),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "totp.enabled",
		ResourceType: "user",
		ResourceID:   &user.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"recoveryCodes": codes,
	})
}

type disableTOTPRequest struct {
	Password string `json:"password"`
}

func (h *TOTPHandler) Disable(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req disableTOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "password is required")
	}

	var dbUser models.User
	if err := h.DB.First(&dbUser, "id = ?", user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load user")
	}

	if !utils.CheckPassword(req.Password, dbUser.PasswordHash) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid password")
	}

	var cfg models.TOTPConfig
	if err := h.DB.First(&cfg, "user_id = ?", user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "TOTP is not configured")
	}

	if err := h.DB.Model(&cfg).Updates(map[string]interface{}{
		"totp_enabled":     false,
		"totp_secret":      "",
		"totp_verified_at": nil,
		"recovery_codes":   "",
		"recovery_count":   0,
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to disable TOTP")
	}

	logger.Info("totp_disabled", map[string]interface{}{
		"user_id": user.ID.String(),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "totp.disabled",
		ResourceType: "user",
		ResourceID:   &user.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Message(c, fiber.StatusOK, "TOTP disabled")
}

type verifyTOTPRequest struct {
	ChallengeToken string `json:"challengeToken"`
	Code           string `json:"code"`
}

func (h *TOTPHandler) VerifyTOTP(c *fiber.Ctx) error {
	var req verifyTOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.ChallengeToken == "" || req.Code == "" {
		return utils.Error(c, fiber.StatusBadRequest, "challengeToken and code are required")
	}

	claims, err := utils.ValidateChallengeToken(req.ChallengeToken)
	if err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired challenge token")
	}

	if !utils.IsJTIValid(claims.JTI) {
		return utils.Error(c, fiber.StatusUnauthorized, "challenge token already used")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", claims.UserID).Error; err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "user not found")
	}

	var cfg models.TOTPConfig
	if err := h.DB.First(&cfg, "user_id = ?", user.ID).Error; err != nil || !cfg.TOTPEnabled {
		return utils.Error(c, fiber.StatusBadRequest, "TOTP is not enabled")
	}

	totpSecret := utils.DecryptOrPlaintext(cfg.TOTPSecret)
	if !totp.Validate(req.Code, totpSecret) {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid TOTP code")
	}

	utils.ConsumeJTI(claims.JTI)

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "user.2fa_login",
		ResourceType: "user",
		ResourceID:   &user.ID,
		Details: map[string]interface{}{
			"method": "totp",
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"token": token, "user": user})
}

type verifyRecoveryRequest struct {
	ChallengeToken string `json:"challengeToken"`
	Code           string `json:"code"`
}

func (h *TOTPHandler) VerifyRecovery(c *fiber.Ctx) error {
	var req verifyRecoveryRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.ChallengeToken == "" || req.Code == "" {
		return utils.Error(c, fiber.StatusBadRequest, "challengeToken and code are required")
	}

	claims, err := utils.ValidateChallengeToken(req.ChallengeToken)
	if err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired challenge token")
	}

	if !utils.IsJTIValid(claims.JTI) {
		return utils.Error(c, fiber.StatusUnauthorized, "challenge token already used")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", claims.UserID).Error; err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "user not found")
	}

	var cfg models.TOTPConfig
	if err := h.DB.First(&cfg, "user_id = ?", user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "TOTP is not configured")
	}

	var storedCodes []string
	if err := json.Unmarshal([]byte(cfg.RecoveryCodes), &storedCodes); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load recovery codes")
	}

	matchIndex := -1
	for i, hashed := range storedCodes {
		if utils.CheckPassword(req.Code, hashed) {
			matchIndex = i
			break
		}
	}

	if matchIndex == -1 {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid recovery code")
	}

	storedCodes = append(storedCodes[:matchIndex], storedCodes[matchIndex+1:]...)
	updatedJSON, err := json.Marshal(storedCodes)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to serialize recovery codes")
	}
	if err := h.DB.Model(&cfg).Updates(map[string]interface{}{
		"recovery_codes": string(updatedJSON),
		"recovery_count": len(storedCodes),
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to update recovery codes")
	}

	utils.ConsumeJTI(claims.JTI)

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.Info("recovery_code_used", map[string]interface{}{
		"user_id":         user.ID.String(),
		"remaining_codes": len(storedCodes),
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "user.2fa_login",
		ResourceType: "user",
		ResourceID:   &user.ID,
		Details: map[string]interface{}{
			"method":          "recovery",
			"remaining_codes": len(storedCodes),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"token": token, "user": user})
}

func generateRecoveryCodes(count int) (plaintextCodes []string, hashedCodes []string, err error) {
	for i := 0; i < count; i++ {
		b := make([]byte, 8)
		if _, err := rand.Read(b); err != nil {
			return nil, nil, err
		}
		code := hex.EncodeToString(b)
		plaintextCodes = append(plaintextCodes, code)

		hashed, err := utils.HashPassword(code)
		if err != nil {
			return nil, nil, err
		}
		hashedCodes = append(hashedCodes, hashed)
	}
	return plaintextCodes, hashedCodes, nil
}
