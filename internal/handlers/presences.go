package handlers

import (
	"github.com/ekklesia/backend/internal/middleware"
	"github.com/ekklesia/backend/internal/models"
	"github.com/ekklesia/backend/internal/services"
	"github.com/ekklesia/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PresenceHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewPresenceHandler(db *gorm.DB, audit *services.AuditService) *PresenceHandler {
	return &PresenceHandler{DB: db, Audit: audit}
}

type presenceMark struct {
	ChildID string `json:"childID"`
	Present *bool  `json:"present"`
}

type presenceBatchRequest struct {
	ActivityID *string        `json:"activityID"`
	Date       string         `json:"date"`
	Marks      []presenceMark `json:"marks"`
}

func (h *PresenceHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.Presence{})
	if childID := c.Query("childID"); childID != "" {
		id, err := parseUUID(childID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid childID filter")
		}
		query = query.Where("child_id = ?", id)
	}
	if activityID := c.Query("activityID"); activityID != "" {
		id, err := parseUUID(activityID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid activityID filter")
		}
		query = query.Where("activity_id = ?", id)
	}
	query, err := applyDateRange(query, c, "date")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting presences")
	}

	var presences []models.Presence
	if err := utils.ApplyPagination(query.Preload("Child").Order("date DESC"), p).
		Find(&presences).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing presences")
	}

	return utils.Paginated(c, presences, p.Page, p.Limit, total)
}

// Record upserts a batch of attendance marks for one date, optionally
// tied to an activity. Re-marking the same child and date overwrites the
// earlier mark instead of duplicating it.
func (h *PresenceHandler) Record(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req presenceBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Date == "" {
		return utils.Error(c, fiber.StatusBadRequest, "date is required")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid date")
	}
	if len(req.Marks) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "marks cannot be empty")
	}

	var activityID *uuid.UUID
	if req.ActivityID != nil && *req.ActivityID != "" {
		id, err := parseUUID(*req.ActivityID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid activityID")
		}
		var activity models.Activity
		if err := h.DB.First(&activity, "id = ?", id).Error; err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "activity not found")
		}
		activityID = &id
	}

	var recorded []models.Presence
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		for _, mark := range req.Marks {
			childID, err := parseUUID(mark.ChildID)
			if err != nil {
				return errInvalidChildMark
			}
			var child models.Child
			if err := tx.First(&child, "id = ?", childID).Error; err != nil {
				return errInvalidChildMark
			}

			present := true
			if mark.Present != nil {
				present = *mark.Present
			}

			scope := tx.Model(&models.Presence{}).Where("child_id = ? AND date = ?", childID, date)
			if activityID != nil {
				scope = scope.Where("activity_id = ?", *activityID)
			} else {
				scope = scope.Where("activity_id IS NULL")
			}

			var existing models.Presence
			if err := scope.Session(&gorm.Session{}).First(&existing).Error; err == nil {
				if err := tx.Model(&existing).Updates(map[string]interface{}{
					"present":     present,
					"noted_by_id": user.ID,
				}).Error; err != nil {
					return err
				}
				recorded = append(recorded, existing)
				continue
			}

			presence := models.Presence{
				ChildID:    childID,
				ActivityID: activityID,
				Date:       date,
				Present:    present,
				NotedByID:  user.ID,
			}
			if err := tx.Create(&presence).Error; err != nil {
				return err
			}
			recorded = append(recorded, presence)
		}
		return nil
	})
	if err != nil {
		if err == errInvalidChildMark {
			return utils.Error(c, fiber.StatusBadRequest, "one or more marks reference an unknown child")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed recording presences")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "presence.record",
		ResourceType: "presence",
		Details: map[string]interface{}{
			"date":  date.Format("2006-01-02"),
			"count": len(recorded),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, recorded)
}

func (h *PresenceHandler) Delete(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid presence id")
	}

	var presence models.Presence
	if err := h.DB.First(&presence, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "presence not found")
	}

	if err := h.DB.Delete(&presence).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting presence")
	}

	return utils.Message(c, fiber.StatusOK, "presence deleted")
}
