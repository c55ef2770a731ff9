package handlers

import (
	"net/mail"
	"strings"

	"github.com/ekklesia/backend/internal/middleware"
	"github.com/ekklesia/backend/internal/models"
	"github.com/ekklesia/backend/internal/services"
	"github.com/ekklesia/backend/pkg/logger"
	"github.com/ekklesia/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// All second-factor failures collapse to this one message so a caller
// cannot probe whether a challenge is pending, expired, or mismatched.
const genericCodeError = "invalid or expired code"

type AuthHandler struct {
	DB         *gorm.DB
	Audit      *services.AuditService
	TwoFactor  *services.TwoFactorService
	Dispatcher *services.DeliveryDispatcher
}

func NewAuthHandler(db *gorm.DB, audit *services.AuditService, twoFactor *services.TwoFactorService, dispatcher *services.DeliveryDispatcher) *AuthHandler {
	return &AuthHandler{DB: db, Audit: audit, TwoFactor: twoFactor, Dispatcher: dispatcher}
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Phone = strings.TrimSpace(req.Phone)

	if _, err := mail.ParseAddress(req.Email); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid email")
	}
	if len(req.Password) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}
	if req.FirstName == "" || req.LastName == "" {
		return utils.Error(c, fiber.StatusBadRequest, "firstName and lastName are required")
	}

	var existing models.User
	if err := h.DB.First(&existing, "email = ?", req.Email).Error; err == nil {
		return utils.Error(c, fiber.StatusConflict, "email already registered")
	} else if err != gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing user")
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		Email:        req.Email,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		Role:         models.UserRoleUser,
	}

	if err := h.DB.Create(&user).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id": user.ID.String(),
		"email":   user.Email,
	})

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "user.register",
		ResourceType: "user",
		ResourceID:   &user.ID,
		Details:      map[string]interface{}{"email": user.Email},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	return utils.Success(c, fiber.StatusCreated, fiber.Map{"token": token, "user": user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.Email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	}

	var user models.User
	if err := h.DB.First(&user, "email = ?", req.Email).Error; err != nil {
		logger.Warn("login_failed_user_not_found", map[string]interface{}{
			"email": req.Email,
			"ip":    c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		logger.Warn("login_failed_invalid_password", map[string]interface{}{
			"user_id": user.ID.String(),
			"ip":      c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	methods := h.secondFactorMethods(&user)
	if len(methods) > 0 {
		return h.beginSecondFactor(c, &user, methods)
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "user.login",
		ResourceType: "user",
		ResourceID:   &user.ID,
		Details:      map[string]interface{}{"email": user.Email},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"token": token, "user": user})
}

// secondFactorMethods lists the factors the user can complete login with:
// "code" for a delivered email/SMS code, "totp" when an authenticator app
// is enrolled, "recovery" alongside totp.
func (h *AuthHandler) secondFactorMethods(user *models.User) []string {
	var methods []string
	if user.TwoFactorEnabled {
		methods = append(methods, "code")
	}

	var totpCfg models.TOTPConfig
	if err := h.DB.First(&totpCfg, "user_id = ?", user.ID).Error; err == nil && totpCfg.TOTPEnabled {
		methods = append(methods, "totp", "recovery")
	}
	return methods
}

// beginSecondFactor issues a fresh challenge (superseding any pending
// one), attempts delivery, and hands back the interim challenge token.
// The challenge is live as soon as it is persisted: a delivery failure is
// reported in the response but does not abort the login.
func (h *AuthHandler) beginSecondFactor(c *fiber.Ctx, user *models.User, methods []string) error {
	delivered := false
	channel := user.TwoFactorChannel

	if user.TwoFactorEnabled {
		code, err := h.TwoFactor.Issue(user, channel)
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed issuing login code")
		}
		delivered = h.Dispatcher.Deliver(c.Context(), user, channel, code)
	}

	challengeToken, err := utils.GenerateChallengeToken(user.ID, user.Email)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating challenge token")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "user.login_2fa_pending",
		ResourceType: "user",
		ResourceID:   &user.ID,
		Details: map[string]interface{}{
			"channel":   string(channel),
			"methods":   methods,
			"delivered": delivered,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"twoFactorRequired": true,
		"challengeToken":    challengeToken,
		"channel":           channel,
		"methods":           methods,
		"delivered":         delivered,
	})
}

type verifyCodeRequest struct {
	ChallengeToken string `json:"challengeToken"`
	Code           string `json:"code"`
}

func (h *AuthHandler) VerifyCode(c *fiber.Ctx) error {
	var req verifyCodeRequest
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

	if err := h.TwoFactor.Consume(&user, req.Code); err != nil {
		logger.WarnWithUser(user.ID.String(), "two_factor_verify_failed", map[string]interface{}{
			"reason": err.Error(),
			"ip":     c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, genericCodeError)
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
		Details:      map[string]interface{}{"method": "code"},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"token": token, "user": user})
}

type resendCodeRequest struct {
	ChallengeToken string `json:"challengeToken"`
	Channel        string `json:"channel"`
}

// ResendCode reissues the code, superseding the pending one. The channel
// may be overridden so an operator can fall back to the other medium
// when delivery fails.
func (h *AuthHandler) ResendCode(c *fiber.Ctx) error {
	var req resendCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.ChallengeToken == "" {
		return utils.Error(c, fiber.StatusBadRequest, "challengeToken is required")
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

	if !user.TwoFactorEnabled {
		return utils.Error(c, fiber.StatusBadRequest, "two-factor login is not enabled")
	}

	channel := user.TwoFactorChannel
	if req.Channel != "" {
		switch models.TwoFactorChannel(req.Channel) {
		case models.TwoFactorChannelEmail, models.TwoFactorChannelSMS:
			channel = models.TwoFactorChannel(req.Channel)
		default:
			return utils.Error(c, fiber.StatusBadRequest, "invalid channel")
		}
	}

	code, err := h.TwoFactor.Issue(&user, channel)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed issuing login code")
	}
	delivered := h.Dispatcher.Deliver(c.Context(), &user, channel, code)

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "user.2fa_resend",
		ResourceType: "user",
		ResourceID:   &user.ID,
		Details: map[string]interface{}{
			"channel":   string(channel),
			"delivered": delivered,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"channel":   channel,
		"delivered": delivered,
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"user":        user,
		"permissions": user.PermissionList(),
	})
}

type updateMeRequest struct {
	FirstName        *string `json:"firstName"`
	LastName         *string `json:"lastName"`
	Phone            *string `json:"phone"`
	TwoFactorEnabled *bool   `json:"twoFactorEnabled"`
	TwoFactorChannel *string `json:"twoFactorChannel"`
}

func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateMeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.FirstName != nil {
		value := strings.TrimSpace(*req.FirstName)
		if value == "" {
			return utils.Error(c, fiber.StatusBadRequest, "firstName cannot be empty")
		}
		updates["first_name"] = value
	}
	if req.LastName != nil {
		value := strings.TrimSpace(*req.LastName)
		if value == "" {
			return utils.Error(c, fiber.StatusBadRequest, "lastName cannot be empty")
		}
		updates["last_name"] = value
	}
	if req.Phone != nil {
		updates["phone"] = strings.TrimSpace(*req.Phone)
	}
	if req.TwoFactorChannel != nil {
		switch models.TwoFactorChannel(*req.TwoFactorChannel) {
		case models.TwoFactorChannelEmail, models.TwoFactorChannelSMS:
			updates["two_factor_channel"] = *req.TwoFactorChannel
		default:
			return utils.Error(c, fiber.StatusBadRequest, "invalid twoFactorChannel")
		}
	}
	if req.TwoFactorEnabled != nil {
		updates["two_factor_enabled"] = *req.TwoFactorEnabled
		if !*req.TwoFactorEnabled {
			// Disabling the factor also drops any pending challenge.
			updates["two_factor_code_hash"] = nil
			updates["two_factor_expires_at"] = nil
			updates["two_factor_sent_via"] = nil
		}
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating profile")
	}

	var updated models.User
	if err := h.DB.First(&updated, "id = ?", user.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching updated profile")
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if len(req.NewPassword) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}

	if !utils.CheckPassword(req.OldPassword, user.PasswordHash) {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid current password")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("password_hash", hash).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating password")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "user.password_change",
		ResourceType: "user",
		ResourceID:   &user.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Message(c, fiber.StatusOK, "password updated")
}
