package handlers

import (
	"net/http"
	"testing"

	"github.com/ekklesia/backend/internal/models"
	"github.com/google/uuid"
)

func seedNotification(t *testing.T, env *testEnv, userID, actorID uuid.UUID, read bool) *models.Notification {
	t.Helper()
	n := &models.Notification{
		UserID:       userID,
		ActorID:      actorID,
		Action:       "post.publish",
		ResourceType: "post",
		ResourceName: "Sunday program",
		Message:      "Test User published \"Sunday program\"",
		IsRead:       read,
	}
	if err := env.db.Create(n).Error; err != nil {
		t.Fatalf("failed seeding notification: %v", err)
	}
	return n
}

func TestNotificationsListAndUnreadCount(t *testing.T) {
	env := setupTestEnv(t)

	user, token := createTestUser(t, env.db, "reader@example.com", "password123", models.UserRoleUser)
	actor, _ := createTestUser(t, env.db, "actor@example.com", "password123", models.UserRoleUser)
	other, _ := createTestUser(t, env.db, "other@example.com", "password123", models.UserRoleUser)

	seedNotification(t, env, user.ID, actor.ID, false)
	seedNotification(t, env, user.ID, actor.ID, true)
	seedNotification(t, env, other.ID, actor.ID, false)

	resp := performRequest(t, env.app, http.MethodGet, "/api/notifications/", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	body := decodeJSONMap(t, resp)
	items, _ := body["data"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected 2 own notifications, got %d", len(items))
	}

	resp = performRequest(t, env.app, http.MethodGet, "/api/notifications/?unread=true", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	body = decodeJSONMap(t, resp)
	items, _ = body["data"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 unread notification, got %d", len(items))
	}

	resp = performRequest(t, env.app, http.MethodGet, "/api/notifications/unread-count", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	count := dataMap(t, decodeJSONMap(t, resp))
	if got := count["count"].(float64); got != 1 {
		t.Fatalf("expected unread count 1, got %v", got)
	}
}

func TestNotificationMarkRead(t *testing.T) {
	env := setupTestEnv(t)

	user, token := createTestUser(t, env.db, "reader@example.com", "password123", models.UserRoleUser)
	actor, _ := createTestUser(t, env.db, "actor@example.com", "password123", models.UserRoleUser)
	_, otherToken := createTestUser(t, env.db, "other@example.com", "password123", models.UserRoleUser)

	n := seedNotification(t, env, user.ID, actor.ID, false)

	// Someone else's notification cannot be marked.
	resp := performRequest(t, env.app, http.MethodPut,
		"/api/notifications/"+n.ID.String()+"/read", nil, authHeaders(otherToken))
	assertStatus(t, resp, http.StatusNotFound)

	resp = performRequest(t, env.app, http.MethodPut,
		"/api/notifications/"+n.ID.String()+"/read", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	var reloaded models.Notification
	if err := env.db.First(&reloaded, "id = ?", n.ID).Error; err != nil {
		t.Fatalf("failed reloading notification: %v", err)
	}
	if !reloaded.IsRead {
		t.Fatal("notification should be read after marking")
	}
}

func TestNotificationMarkAllRead(t *testing.T) {
	env := setupTestEnv(t)

	user, token := createTestUser(t, env.db, "reader@example.com", "password123", models.UserRoleUser)
	actor, _ := createTestUser(t, env.db, "actor@example.com", "password123", models.UserRoleUser)

	seedNotification(t, env, user.ID, actor.ID, false)
	seedNotification(t, env, user.ID, actor.ID, false)

	resp := performRequest(t, env.app, http.MethodPut, "/api/notifications/read-all", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	var unread int64
	env.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", user.ID, false).Count(&unread)
	if unread != 0 {
		t.Fatalf("expected no unread notifications, got %d", unread)
	}
}
