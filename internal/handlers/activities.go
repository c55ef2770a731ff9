package handlers

import (
	"strings"

	"github.com/ekklesia/backend/internal/middleware"
	"github.com/ekklesia/backend/internal/models"
	"github.com/ekklesia/backend/internal/services"
	"github.com/ekklesia/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ActivityHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewActivityHandler(db *gorm.DB, audit *services.AuditService) *ActivityHandler {
	return &ActivityHandler{DB: db, Audit: audit}
}

type activityRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Date        string   `json:"date"`
	Location    string   `json:"location"`
	RoomID      *string  `json:"roomID"`
	FeeAmount   *float64 `json:"feeAmount"`
}

func (h *ActivityHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.Activity{})
	if from := c.Query("from"); from != "" {
		date, err := parseDate(from)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid from date")
		}
		query = query.Where("date >= ?", date)
	}
	if to := c.Query("to"); to != "" {
		date, err := parseDate(to)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid to date")
		}
		query = query.Where("date <= ?", date)
	}
	if roomID := c.Query("roomID"); roomID != "" {
		id, err := parseUUID(roomID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid roomID filter")
		}
		query = query.Where("room_id = ?", id)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting activities")
	}

	var activities []models.Activity
	if err := utils.ApplyPagination(query.Preload("Room").Preload("CreatedBy").Order("date DESC"), p).
		Find(&activities).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing activities")
	}

	return utils.Paginated(c, activities, p.Page, p.Limit, total)
}

func (h *ActivityHandler) Get(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid activity id")
	}

	var activity models.Activity
	if err := h.DB.Preload("Room").Preload("CreatedBy").First(&activity, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "activity not found")
	}

	return utils.Success(c, fiber.StatusOK, activity)
}

// Stats aggregates attendance and payments for one activity.
func (h *ActivityHandler) Stats(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid activity id")
	}

	var activity models.Activity
	if err := h.DB.First(&activity, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "activity not found")
	}

	var presentCount, absentCount int64
	h.DB.Model(&models.Presence{}).Where("activity_id = ? AND present = ?", id, true).Count(&presentCount)
	h.DB.Model(&models.Presence{}).Where("activity_id = ? AND present = ?", id, false).Count(&absentCount)

	var paymentCount int64
	var collected float64
	h.DB.Model(&models.Payment{}).Where("activity_id = ?", id).Count(&paymentCount)
	h.DB.Model(&models.Payment{}).Where("activity_id = ?", id).
		Select("COALESCE(SUM(amount), 0)").Scan(&collected)

	expected := 0.0
	if activity.FeeAmount != nil {
		expected = *activity.FeeAmount * float64(presentCount)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"activityID":    activity.ID,
		"title":         activity.Title,
		"presentCount":  presentCount,
		"absentCount":   absentCount,
		"paymentCount":  paymentCount,
		"collected":     collected,
		"expectedTotal": expected,
	})
}

func (h *ActivityHandler) Create(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req activityRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return utils.Error(c, fiber.StatusBadRequest, "title is required")
	}
	if req.Date == "" {
		return utils.Error(c, fiber.StatusBadRequest, "date is required")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid date")
	}
	if req.FeeAmount != nil && *req.FeeAmount < 0 {
		return utils.Error(c, fiber.StatusBadRequest, "feeAmount cannot be negative")
	}

	activity := models.Activity{
		Title:       req.Title,
		Description: req.Description,
		Date:        date,
		Location:    strings.TrimSpace(req.Location),
		FeeAmount:   req.FeeAmount,
		CreatedByID: user.ID,
	}

	if req.RoomID != nil && *req.RoomID != "" {
		roomID, err := parseUUID(*req.RoomID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid roomID")
		}
		var room models.Room
		if err := h.DB.First(&room, "id = ?", roomID).Error; err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "room not found")
		}
		activity.RoomID = &roomID
	}

	if err := h.DB.Create(&activity).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating activity")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "activity.create",
		ResourceType: "activity",
		ResourceID:   &activity.ID,
		Details:      map[string]interface{}{"title": activity.Title},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, activity)
}

func (h *ActivityHandler) Update(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid activity id")
	}

	var req activityRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	var activity models.Activity
	if err := h.DB.First(&activity, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "activity not found")
	}

	updates := map[string]interface{}{}
	if title := strings.TrimSpace(req.Title); title != "" {
		updates["title"] = title
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.Location != "" {
		updates["location"] = strings.TrimSpace(req.Location)
	}
	if req.Date != "" {
		date, err := parseDate(req.Date)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid date")
		}
		updates["date"] = date
	}
	if req.FeeAmount != nil {
		if *req.FeeAmount < 0 {
			return utils.Error(c, fiber.StatusBadRequest, "feeAmount cannot be negative")
		}
		updates["fee_amount"] = *req.FeeAmount
	}
	if req.RoomID != nil {
		if *req.RoomID == "" {
			updates["room_id"] = nil
		} else {
			roomID, err := parseUUID(*req.RoomID)
			if err != nil {
				return utils.Error(c, fiber.StatusBadRequest, "invalid roomID")
			}
			var room models.Room
			if err := h.DB.First(&room, "id = ?", roomID).Error; err != nil {
				return utils.Error(c, fiber.StatusBadRequest, "room not found")
			}
			updates["room_id"] = roomID
		}
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&activity).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating activity")
	}

	user := middleware.GetCurrentUser(c)
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "activity.update",
		ResourceType: "activity",
		ResourceID:   &activity.ID,
		Details:      map[string]interface{}{"title": activity.Title},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, activity)
}

func (h *ActivityHandler) Delete(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid activity id")
	}

	var activity models.Activity
	if err := h.DB.First(&activity, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "activity not found")
	}

	var paymentCount int64
	h.DB.Model(&models.Payment{}).Where("activity_id = ?", id).Count(&paymentCount)
	if paymentCount > 0 {
		return utils.Error(c, fiber.StatusConflict, "activity has recorded payments")
	}

	if err := h.DB.Where("activity_id = ?", id).Delete(&models.Presence{}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting presences")
	}
	if err := h.DB.Delete(&activity).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting activity")
	}

	user := middleware.GetCurrentUser(c)
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "activity.delete",
		ResourceType: "activity",
		ResourceID:   &id,
		Details:      map[string]interface{}{"title": activity.Title},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Message(c, fiber.StatusOK, "activity deleted")
}
