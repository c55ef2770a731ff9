package handlers

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ekklesia/backend/internal/models"
	"github.com/google/uuid"
)

func seedAuditLog(t *testing.T, env *testEnv, userID uuid.UUID, action, resourceType string) {
	t.Helper()
	entry := &models.AuditLog{
		ID:           uuid.New(),
		UserID:       &userID,
		Action:       action,
		ResourceType: resourceType,
		Details:      map[string]interface{}{"note": "fixture"},
		IPAddress:    "127.0.0.1",
		CreatedAt:    time.Now().UTC(),
	}
	if err := env.db.Create(entry).Error; err != nil {
		t.Fatalf("failed seeding audit log: %v", err)
	}
}

func TestAuditLogIsAdminOnly(t *testing.T) {
	env := setupTestEnv(t)

	_, token := createTestUser(t, env.db, "plain@example.com", "password123", models.UserRoleUser)
	resp := performRequest(t, env.app, http.MethodGet, "/api/audit/", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusForbidden)
}

func TestAuditLogListWithFilters(t *testing.T) {
	env := setupTestEnv(t)

	admin, token := createTestUser(t, env.db, "admin@example.com", "password123", models.UserRoleAdmin)
	seedAuditLog(t, env, admin.ID, "user.login", "user")
	seedAuditLog(t, env, admin.ID, "post.publish", "post")
	seedAuditLog(t, env, admin.ID, "post.publish", "post")

	resp := performRequest(t, env.app, http.MethodGet, "/api/audit/?action=post.publish", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	body := decodeJSONMap(t, resp)
	items, _ := body["data"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected 2 filtered entries, got %d", len(items))
	}

	resp = performRequest(t, env.app, http.MethodGet, "/api/audit/?userID=not-a-uuid", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestAuditLogExportCSV(t *testing.T) {
	env := setupTestEnv(t)

	admin, token := createTestUser(t, env.db, "admin@example.com", "password123", models.UserRoleAdmin)
	seedAuditLog(t, env, admin.ID, "user.login", "user")

	resp := performRequest(t, env.app, http.MethodGet, "/api/audit/export", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("expected csv content type, got %q", ct)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading export body: %v", err)
	}
	content := string(raw)
	if !strings.Contains(content, "Timestamp,Action") {
		t.Fatal("expected a csv header row")
	}
	if !strings.Contains(content, "user.login") {
		t.Fatal("expected the seeded entry in the export")
	}
}

func TestAuditLogExportJSON(t *testing.T) {
	env := setupTestEnv(t)

	admin, token := createTestUser(t, env.db, "admin@example.com", "password123", models.UserRoleAdmin)
	seedAuditLog(t, env, admin.ID, "payment.create", "payment")

	resp := performRequest(t, env.app, http.MethodGet, "/api/audit/export?format=json", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	body := decodeJSONMap(t, resp)
	items, _ := body["data"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 exported entry, got %d", len(items))
	}

	resp = performRequest(t, env.app, http.MethodGet, "/api/audit/export?format=xml", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusBadRequest)
}
