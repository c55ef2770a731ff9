package jobs

import (
	"context"
	"time"

	"github.com/ekklesia/backend/internal/config"
	"github.com/ekklesia/backend/internal/models"
	"github.com/ekklesia/backend/internal/services"
	"github.com/ekklesia/backend/pkg/logger"
	"github.com/ekklesia/backend/pkg/utils"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Scheduler runs the periodic maintenance jobs: shipping audit rows to
// object storage, pruning old read notifications, and sweeping consumed
// challenge-token JTIs. Pending login codes are deliberately NOT swept;
// their expiry is evaluated at verification time.
type Scheduler struct {
	cron  *cron.Cron
	db    *gorm.DB
	audit *services.AuditService
	cfg   config.JobsConfig
}

func NewScheduler(db *gorm.DB, audit *services.AuditService, cfg config.JobsConfig) *Scheduler {
	return &Scheduler{
		cron:  cron.New(),
		db:    db,
		audit: audit,
		cfg:   cfg,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.AuditExportSpec, s.exportAuditLogs); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.NotificationCleanupSpec, s.cleanupNotifications); err != nil {
		return err
	}
	// JTI bookkeeping is small; an hourly sweep keeps the map bounded.
	if _, err := s.cron.AddFunc("@hourly", utils.CleanupExpiredJTIs); err != nil {
		return err
	}

	s.cron.Start()
	logger.Info("scheduler_started", map[string]interface{}{
		"audit_export_spec":         s.cfg.AuditExportSpec,
		"notification_cleanup_spec": s.cfg.NotificationCleanupSpec,
	})
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) exportAuditLogs() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	s.audit.ExportNewRows(ctx)
}

func (s *Scheduler) cleanupNotifications() {
	cutoff := time.Now().Add(-s.cfg.NotificationMaxAge)
	result := s.db.Where("is_read = ? AND created_at < ?", true, cutoff).Delete(&models.Notification{})
	if result.Error != nil {
		logger.Error("notification_cleanup_failed", result.Error, nil)
		return
	}
	if result.RowsAffected > 0 {
		logger.Info("notification_cleanup", map[string]interface{}{
			"deleted": result.RowsAffected,
			"cutoff":  cutoff.Format(time.RFC3339),
		})
	}
}
