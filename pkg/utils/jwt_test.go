package utils

import (
	"testing"

	"github.com/ekklesia/backend/internal/models"
	"github.com/google/uuid"
)

func TestGenerateAndValidateToken(t *testing.T) {
	ConfigureJWT("test-secret", 24)

	user := &models.User{
		Email: "test@example.com",
		Role:  models.UserRoleAdmin,
	}
	user.ID = uuid.New()

	token, err := GenerateToken(user)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}

	if claims.UserID != user.ID {
		t.Fatalf("expected userID %s, got %s", user.ID, claims.UserID)
	}
	if claims.Email != "test@example.com" {
		t.Fatalf("expected email test@example.com, got %s", claims.Email)
	}
	if claims.Role != user.Role {
		t.Fatalf("expected role admin, got %s", claims.Role)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	ConfigureJWT("test-secret", 24)

	user := &models.User{Email: "test@example.com", Role: models.UserRoleUser}
	user.ID = uuid.New()

	token, err := GenerateToken(user)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	ConfigureJWT("another-secret", 24)
	defer ConfigureJWT("test-secret", 24)

	if _, err := ValidateToken(token); err == nil {
		t.Fatal("expected validation to fail under a different secret")
	}
}

func TestValidateTokenGarbage(t *testing.T) {
	ConfigureJWT("test-secret", 24)
	if _, err := ValidateToken("not-a-jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestValidateTokenRejectsChallengeToken(t *testing.T) {
	ConfigureJWT("test-secret", 24)

	challenge, err := GenerateChallengeToken(uuid.New(), "test@example.com")
	if err != nil {
		t.Fatalf("failed to generate challenge token: %v", err)
	}

	// A challenge token carries no session issuer and must never act
	// as a bearer token.
	if _, err := ValidateToken(challenge); err == nil {
		t.Fatal("expected challenge token to fail session validation")
	}
}
