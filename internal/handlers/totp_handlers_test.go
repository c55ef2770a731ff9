package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/ekklesia/backend/internal/models"
	"github.com/pquerna/otp/totp"
)

func enrollTOTP(t *testing.T, env *testEnv, token string) string {
	t.Helper()

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/totp/setup", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	setup := dataMap(t, decodeJSONMap(t, resp))
	secret, _ := setup["secret"].(string)
	if secret == "" {
		t.Fatal("setup must return the shared secret")
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("failed generating TOTP code: %v", err)
	}
	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/totp/verify-setup",
		map[string]any{"code": code}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	verified := dataMap(t, decodeJSONMap(t, resp))
	codes, _ := verified["recoveryCodes"].([]any)
	if len(codes) != 10 {
		t.Fatalf("expected 10 recovery codes, got %d", len(codes))
	}
	return secret
}

func TestTOTPLoginFlow(t *testing.T) {
	env := setupTestEnv(t)

	_, token := createTestUser(t, env.db, "totp@example.com", "password123", models.UserRoleUser)
	secret := enrollTOTP(t, env, token)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "totp@example.com",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	login := dataMap(t, decodeJSONMap(t, resp))
	if login["twoFactorRequired"] != true {
		t.Fatal("expected second factor to be required after enrollment")
	}
	methods, _ := login["methods"].([]any)
	found := false
	for _, m := range methods {
		if m == "totp" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected totp in offered methods, got %v", methods)
	}
	challengeToken, _ := login["challengeToken"].(string)

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("failed generating TOTP code: %v", err)
	}
	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login/totp", map[string]any{
		"challengeToken": challengeToken,
		"code":           code,
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	session := dataMap(t, decodeJSONMap(t, resp))
	if session["token"] == nil || session["token"] == "" {
		t.Fatal("expected a session token after TOTP verification")
	}

	// The challenge is single use.
	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login/totp", map[string]any{
		"challengeToken": challengeToken,
		"code":           code,
	}, nil)
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestTOTPRecoveryLogin(t *testing.T) {
	env := setupTestEnv(t)

	_, token := createTestUser(t, env.db, "totp@example.com", "password123", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/totp/setup", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	setup := dataMap(t, decodeJSONMap(t, resp))
	secret, _ := setup["secret"].(string)

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("failed generating TOTP code: %v", err)
	}
	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/totp/verify-setup",
		map[string]any{"code": code}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	verified := dataMap(t, decodeJSONMap(t, resp))
	codes, _ := verified["recoveryCodes"].([]any)
	recovery, _ := codes[0].(string)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "totp@example.com",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	login := dataMap(t, decodeJSONMap(t, resp))
	challengeToken, _ := login["challengeToken"].(string)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login/recovery", map[string]any{
		"challengeToken": challengeToken,
		"code":           recovery,
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	session := dataMap(t, decodeJSONMap(t, resp))
	if session["token"] == nil {
		t.Fatal("expected a session token after recovery login")
	}

	// A used recovery code is burned.
	var cfg models.TOTPConfig
	if err := env.db.First(&cfg, "totp_enabled = ?", true).Error; err != nil {
		t.Fatalf("failed loading totp config: %v", err)
	}
	if cfg.RecoveryCount != 9 {
		t.Fatalf("expected 9 remaining recovery codes, got %d", cfg.RecoveryCount)
	}
}
