package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ekklesia/backend/internal/models"
	"github.com/ekklesia/backend/internal/storage"
	"github.com/ekklesia/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditEntry struct {
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	Details      map[string]interface{}
	IPAddress    string
	RequestID    string
}

// AuditService records significant actions append-only and fans selected
// ones out as dashboard notifications. Writes happen off the request
// path through a buffered queue; when the queue is full the entry is
// dropped with a warning rather than blocking a handler.
type AuditService struct {
	DB       *gorm.DB
	Storage  *storage.MinIOClient
	queue    chan models.AuditLog
	done     chan struct{}
	stopOnce sync.Once
}

func NewAuditService(db *gorm.DB, storageClient *storage.MinIOClient) *AuditService {
	s := &AuditService{
		DB:      db,
		Storage: storageClient,
		queue:   make(chan models.AuditLog, 1000),
		done:    make(chan struct{}),
	}
	go s.processQueue()
	return s
}

// Stop closes the queue and waits until every buffered row has been
// written. Call it only after the HTTP server has stopped accepting
// requests; LogAsync on a stopped service would panic.
func (s *AuditService) Stop() {
	s.stopOnce.Do(func() {
		close(s.queue)
	})
	<-s.done
}

func (s *AuditService) LogAsync(entry AuditEntry) {
	row := models.AuditLog{
		UserID:       entry.UserID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Details:      entry.Details,
		IPAddress:    entry.IPAddress,
		RequestID:    entry.RequestID,
		CreatedAt:    time.Now().UTC(),
	}

	select {
	case s.queue <- row:
	default:
		logger.Warn("audit_queue_full", map[string]interface{}{
			"action":  entry.Action,
			"dropped": true,
		})
	}
}

func (s *AuditService) processQueue() {
	defer close(s.done)
	for row := range s.queue {
		if err := s.DB.Create(&row).Error; err != nil {
			logger.Error("audit_log_insert_failed", err, map[string]interface{}{
				"action": row.Action,
			})
			continue
		}
		s.fanOutNotifications(row)
	}
}

func (s *AuditService) fanOutNotifications(log models.AuditLog) {
	if log.UserID == nil {
		return
	}

	var notifications []models.Notification

	switch log.Action {
	case "post.publish":
		notifications = s.notificationsForPostPublish(log)
	case "payment.create", "caisse.create":
		notifications = s.notificationsForFinance(log)
	case "worship_report.create":
		notifications = s.notificationsForWorshipReport(log)
	}

	for i := range notifications {
		if notifications[i].UserID == *log.UserID {
			continue
		}
		if err := s.DB.Create(&notifications[i]).Error; err != nil {
			logger.Error("notification_insert_failed", err, map[string]interface{}{
				"action":  log.Action,
				"user_id": notifications[i].UserID.String(),
			})
		}
	}
}

// Published posts reach every user's feed.
func (s *AuditService) notificationsForPostPublish(log models.AuditLog) []models.Notification {
	title := detailString(log.Details, "title")
	actorName := s.getActorName(*log.UserID)

	var users []models.User
	s.DB.Select("id").Find(&users)

	result := make([]models.Notification, 0, len(users))
	for _, u := range users {
		result = append(result, models.Notification{
			UserID:       u.ID,
			ActorID:      *log.UserID,
			Action:       log.Action,
			ResourceType: "post",
			ResourceID:   log.ResourceID,
			ResourceName: title,
			Message:      fmt.Sprintf("%s published \"%s\"", actorName, title),
		})
	}
	return result
}

// Caisse movements and payments reach holders of finance.manage plus
// admins.
func (s *AuditService) notificationsForFinance(log models.AuditLog) []models.Notification {
	label := detailString(log.Details, "label")
	amount := detailString(log.Details, "amount")
	actorName := s.getActorName(*log.UserID)

	resourceType := "payment"
	if log.Action == "caisse.create" {
		resourceType = "cash_transaction"
	}

	recipients := s.getPermissionHolders("finance.manage")
	result := make([]models.Notification, 0, len(recipients))
	for _, uid := range recipients {
		result = append(result, models.Notification{
			UserID:       uid,
			ActorID:      *log.UserID,
			Action:       log.Action,
			ResourceType: resourceType,
			ResourceID:   log.ResourceID,
			ResourceName: label,
			Message:      fmt.Sprintf("%s recorded %s (%s)", actorName, label, amount),
		})
	}
	return result
}

func (s *AuditService) notificationsForWorshipReport(log models.AuditLog) []models.Notification {
	date := detailString(log.Details, "service_date")
	actorName := s.getActorName(*log.UserID)

	var admins []models.User
	s.DB.Select("id").Where("role = ?", models.UserRoleAdmin).Find(&admins)

	result := make([]models.Notification, 0, len(admins))
	for _, u := range admins {
		result = append(result, models.Notification{
			UserID:       u.ID,
			ActorID:      *log.UserID,
			Action:       log.Action,
			ResourceType: "worship_report",
			ResourceID:   log.ResourceID,
			ResourceName: date,
			Message:      fmt.Sprintf("%s filed the worship report for %s", actorName, date),
		})
	}
	return result
}

func (s *AuditService) getActorName(userID uuid.UUID) string {
	var user models.User
	if err := s.DB.Select("first_name", "last_name").First(&user, "id = ?", userID).Error; err != nil {
		return "Someone"
	}
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}

// getPermissionHolders returns admins plus every user whose permission
// list contains the slug. Permission lists are small JSON arrays so the
// filtering happens in memory.
func (s *AuditService) getPermissionHolders(slug string) []uuid.UUID {
	var users []models.User
	s.DB.Select("id", "role", "permissions").Find(&users)

	var result []uuid.UUID
	for i := range users {
		if users[i].HasPermission(slug) {
			result = append(result, users[i].ID)
		}
	}
	return result
}

// ExportNewRows ships audit rows created since the cursor to object
// storage as NDJSON. Called on a schedule; safe to call with nothing to
// do.
func (s *AuditService) ExportNewRows(ctx context.Context) {
	if s.Storage == nil {
		return
	}

	var cursor models.AuditExportCursor
	err := s.DB.First(&cursor).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			cursor = models.AuditExportCursor{
				LastExportAt: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
			}
			if createErr := s.DB.Create(&cursor).Error; createErr != nil {
				logger.Error("audit_export_cursor_create_failed", createErr, nil)
				return
			}
		} else {
			logger.Error("audit_export_cursor_load_failed", err, nil)
			return
		}
	}

	var logs []models.AuditLog
	if err := s.DB.Where("created_at > ?", cursor.LastExportAt).
		Order("created_at ASC").
		Limit(10000).
		Find(&logs).Error; err != nil {
		logger.Error("audit_export_query_failed", err, nil)
		return
	}

	if len(logs) == 0 {
		return
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range logs {
		if err := enc.Encode(row); err != nil {
			logger.Error("audit_export_encode_failed", err, map[string]interface{}{
				"log_id": row.ID.String(),
			})
			continue
		}
	}

	now := time.Now().UTC()
	objectName := fmt.Sprintf("audit-logs/%s/%s.ndjson",
		now.Format("2006/01/02"),
		now.Format("15-04-05"),
	)

	if err := s.Storage.Upload(ctx, objectName, &buf, int64(buf.Len()), "application/x-ndjson"); err != nil {
		logger.Error("audit_export_upload_failed", err, map[string]interface{}{
			"object_name": objectName,
			"count":       len(logs),
		})
		return
	}

	lastCreatedAt := logs[len(logs)-1].CreatedAt
	s.DB.Model(&cursor).Updates(map[string]interface{}{
		"last_export_at": lastCreatedAt,
		"exported_count": gorm.Expr("exported_count + ?", len(logs)),
	})

	logger.Info("audit_export_success", map[string]interface{}{
		"object_name": objectName,
		"count":       len(logs),
	})
}

func detailString(details map[string]interface{}, key string) string {
	if details == nil {
		return ""
	}
	v, ok := details[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	return s
}
