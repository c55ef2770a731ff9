package handlers

import (
	"fmt"
	"mime"
	"path/filepath"
	"time"

	"github.com/ekklesia/backend/internal/middleware"
	"github.com/ekklesia/backend/internal/models"
	"github.com/ekklesia/backend/internal/services"
	"github.com/ekklesia/backend/internal/storage"
	"github.com/ekklesia/backend/pkg/logger"
	"github.com/ekklesia/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxUploadSize = 50 << 20 // 50 MiB

type MediaHandler struct {
	DB      *gorm.DB
	Storage *storage.MinIOClient
	Audit   *services.AuditService
}

func NewMediaHandler(db *gorm.DB, store *storage.MinIOClient, audit *services.AuditService) *MediaHandler {
	return &MediaHandler{DB: db, Storage: store, Audit: audit}
}

func (h *MediaHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.Media{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting media")
	}

	var items []models.Media
	if err := utils.ApplyPagination(query.Preload("Uploader").Order("created_at DESC"), p).
		Find(&items).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing media")
	}

	return utils.Paginated(c, items, p.Page, p.Limit, total)
}

func (h *MediaHandler) Upload(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}
	if fileHeader.Size > maxUploadSize {
		return utils.Error(c, fiber.StatusRequestEntityTooLarge, "file exceeds upload limit")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(fileHeader.Filename))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	file, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded file")
	}
	defer file.Close()

	objectName := fmt.Sprintf("%s/%s/%s", user.ID.String(), uuid.New().String(), fileHeader.Filename)
	if err := h.Storage.Upload(c.Context(), objectName, file, fileHeader.Size, contentType); err != nil {
		logger.ErrorWithUser(user.ID.String(), "media_upload_failed", err, map[string]interface{}{
			"object": objectName,
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing file")
	}

	media := models.Media{
		Name:        fileHeader.Filename,
		MimeType:    contentType,
		Size:        fileHeader.Size,
		StoragePath: objectName,
		UploadedBy:  user.ID,
	}

	if err := h.DB.Create(&media).Error; err != nil {
		// Roll back the stored object so the bucket does not accumulate
		// orphans when the row insert fails.
		if delErr := h.Storage.Delete(c.Context(), objectName); delErr != nil {
			logger.Error("media_orphan_cleanup_failed", delErr, map[string]interface{}{
				"object": objectName,
			})
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed saving media record")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "media.upload",
		ResourceType: "media",
		ResourceID:   &media.ID,
		Details: map[string]interface{}{
			"name": media.Name,
			"size": media.Size,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, media)
}

// DownloadURL hands out a short-lived presigned link instead of proxying
// object bytes through the API.
func (h *MediaHandler) DownloadURL(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid media id")
	}

	var media models.Media
	if err := h.DB.First(&media, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "media not found")
	}

	url, err := h.Storage.PresignedGetURL(
		c.Context(),
		media.StoragePath,
		15*time.Minute,
		media.MimeType,
		fmt.Sprintf("inline; filename=%q", media.Name),
	)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating download link")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"url":       url,
		"expiresIn": int((15 * time.Minute).Seconds()),
	})
}

func (h *MediaHandler) Delete(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid media id")
	}

	var media models.Media
	if err := h.DB.First(&media, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "media not found")
	}

	user := middleware.GetCurrentUser(c)
	if user.Role != models.UserRoleAdmin && media.UploadedBy != user.ID {
		return utils.Error(c, fiber.StatusForbidden, "cannot delete media uploaded by someone else")
	}

	var coverRefs int64
	h.DB.Model(&models.Post{}).Where("cover_media_id = ?", id).Count(&coverRefs)
	if coverRefs > 0 {
		return utils.Error(c, fiber.StatusConflict, "media is used as a post cover")
	}

	if err := h.Storage.Delete(c.Context(), media.StoragePath); err != nil {
		logger.Error("media_object_delete_failed", err, map[string]interface{}{
			"object": media.StoragePath,
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting stored file")
	}

	if err := h.DB.Delete(&media).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting media record")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "media.delete",
		ResourceType: "media",
		ResourceID:   &id,
		Details:      map[string]interface{}{"name": media.Name},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Message(c, fiber.StatusOK, "media deleted")
}
