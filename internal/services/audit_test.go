package services

import (
	"testing"
	"time"

	"github.com/ekklesia/backend/internal/models"
	"github.com/google/uuid"
)

func auditFixtureUser(t *testing.T, svc *AuditService, email string, role models.UserRole, permissions string) *models.User {
	t.Helper()
	user := &models.User{
		Email:        email,
		PasswordHash: "x",
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		Permissions:  permissions,
	}
	if err := svc.DB.Create(user).Error; err != nil {
		t.Fatalf("failed creating user: %v", err)
	}
	return user
}

func notificationsFor(t *testing.T, svc *AuditService, userID uuid.UUID) []models.Notification {
	t.Helper()
	var rows []models.Notification
	if err := svc.DB.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		t.Fatalf("failed loading notifications: %v", err)
	}
	return rows
}

func TestStopDrainsQueuedEntries(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewAuditService(db, nil)

	actor := auditFixtureUser(t, svc, "actor@example.com", models.UserRoleUser, "")
	for i := 0; i < 25; i++ {
		svc.LogAsync(AuditEntry{
			UserID:       &actor.ID,
			Action:       "user.login",
			ResourceType: "user",
			ResourceID:   &actor.ID,
			IPAddress:    "127.0.0.1",
		})
	}

	svc.Stop()
	// A second Stop is a no-op, not a double close.
	svc.Stop()

	var count int64
	if err := svc.DB.Model(&models.AuditLog{}).Count(&count).Error; err != nil {
		t.Fatalf("failed counting audit rows: %v", err)
	}
	if count != 25 {
		t.Fatalf("expected 25 audit rows after drain, got %d", count)
	}
}

func TestFanOutPostPublish(t *testing.T) {
	db := setupServiceDB(t)
	svc := &AuditService{DB: db}

	author := auditFixtureUser(t, svc, "author@example.com", models.UserRoleUser, "")
	reader := auditFixtureUser(t, svc, "reader@example.com", models.UserRoleUser, "")
	other := auditFixtureUser(t, svc, "other@example.com", models.UserRoleUser, "")

	postID := uuid.New()
	svc.fanOutNotifications(models.AuditLog{
		ID:           uuid.New(),
		UserID:       &author.ID,
		Action:       "post.publish",
		ResourceType: "post",
		ResourceID:   &postID,
		Details:      map[string]interface{}{"title": "Sunday program"},
		CreatedAt:    time.Now().UTC(),
	})

	if rows := notificationsFor(t, svc, author.ID); len(rows) != 0 {
		t.Fatalf("actor must not be notified, got %d rows", len(rows))
	}
	for _, u := range []*models.User{reader, other} {
		rows := notificationsFor(t, svc, u.ID)
		if len(rows) != 1 {
			t.Fatalf("expected 1 notification for %s, got %d", u.Email, len(rows))
		}
		if rows[0].ResourceName != "Sunday program" {
			t.Fatalf("unexpected resource name %q", rows[0].ResourceName)
		}
		if rows[0].IsRead {
			t.Fatal("new notifications start unread")
		}
	}
}

func TestFanOutFinanceReachesPermissionHolders(t *testing.T) {
	db := setupServiceDB(t)
	svc := &AuditService{DB: db}

	treasurer := auditFixtureUser(t, svc, "treasurer@example.com", models.UserRoleUser, `["finance.manage"]`)
	admin := auditFixtureUser(t, svc, "admin@example.com", models.UserRoleAdmin, "")
	bystander := auditFixtureUser(t, svc, "bystander@example.com", models.UserRoleUser, "")

	txID := uuid.New()
	svc.fanOutNotifications(models.AuditLog{
		ID:           uuid.New(),
		UserID:       &treasurer.ID,
		Action:       "caisse.create",
		ResourceType: "cash_transaction",
		ResourceID:   &txID,
		Details:      map[string]interface{}{"label": "Offering deposit", "amount": "150"},
		CreatedAt:    time.Now().UTC(),
	})

	if rows := notificationsFor(t, svc, admin.ID); len(rows) != 1 {
		t.Fatalf("expected the admin to be notified, got %d rows", len(rows))
	}
	if rows := notificationsFor(t, svc, bystander.ID); len(rows) != 0 {
		t.Fatalf("bystander must not be notified, got %d rows", len(rows))
	}
	// The actor is excluded even though they hold the permission.
	if rows := notificationsFor(t, svc, treasurer.ID); len(rows) != 0 {
		t.Fatalf("actor must not be notified, got %d rows", len(rows))
	}
}

func TestFanOutWorshipReportReachesAdmins(t *testing.T) {
	db := setupServiceDB(t)
	svc := &AuditService{DB: db}

	reporter := auditFixtureUser(t, svc, "reporter@example.com", models.UserRoleUser, "")
	admin := auditFixtureUser(t, svc, "admin@example.com", models.UserRoleAdmin, "")
	member := auditFixtureUser(t, svc, "member@example.com", models.UserRoleUser, "")

	reportID := uuid.New()
	svc.fanOutNotifications(models.AuditLog{
		ID:           uuid.New(),
		UserID:       &reporter.ID,
		Action:       "worship_report.create",
		ResourceType: "worship_report",
		ResourceID:   &reportID,
		Details:      map[string]interface{}{"service_date": "2025-06-01"},
		CreatedAt:    time.Now().UTC(),
	})

	if rows := notificationsFor(t, svc, admin.ID); len(rows) != 1 {
		t.Fatalf("expected the admin to be notified, got %d rows", len(rows))
	}
	if rows := notificationsFor(t, svc, member.ID); len(rows) != 0 {
		t.Fatalf("plain member must not be notified, got %d rows", len(rows))
	}
}
