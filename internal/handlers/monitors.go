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

type MonitorHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewMonitorHandler(db *gorm.DB, audit *services.AuditService) *MonitorHandler {
	return &MonitorHandler{DB: db, Audit: audit}
}

type monitorRequest struct {
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Phone     string  `json:"phone"`
	Email     string  `json:"email"`
	RoomID    *string `json:"roomID"`
	IsActive  *bool   `json:"isActive"`
}

func (h *MonitorHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.Monitor{})
	if roomID := c.Query("roomID"); roomID != "" {
		id, err := parseUUID(roomID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid roomID filter")
		}
		query = query.Where("room_id = ?", id)
	}
	if active := c.Query("active"); active != "" {
		query = query.Where("is_active = ?", active == "true")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting monitors")
	}

	var monitors []models.Monitor
	if err := utils.ApplyPagination(query.Preload("Room").Order("last_name ASC"), p).
		Find(&monitors).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing monitors")
	}

	return utils.Paginated(c, monitors, p.Page, p.Limit, total)
}

func (h *MonitorHandler) Get(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid monitor id")
	}

	var monitor models.Monitor
	if err := h.DB.Preload("Room").First(&monitor, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "monitor not found")
	}

	return utils.Success(c, fiber.StatusOK, monitor)
}

func (h *MonitorHandler) Create(c *fiber.Ctx) error {
	var req monitorRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.FirstName == "" || req.LastName == "" {
		return utils.Error(c, fiber.StatusBadRequest, "firstName and lastName are required")
	}

	monitor := models.Monitor{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		IsActive:  true,
	}
	if req.IsActive != nil {
		monitor.IsActive = *req.IsActive
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
		monitor.RoomID = &roomID
	}

	if err := h.DB.Create(&monitor).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating monitor")
	}

	user := middleware.GetCurrentUser(c)
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "monitor.create",
		ResourceType: "monitor",
		ResourceID:   &monitor.ID,
		Details:      map[string]interface{}{"name": monitor.FirstName + " " + monitor.LastName},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, monitor)
}

func (h *MonitorHandler) Update(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid monitor id")
	}

	var req monitorRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	var monitor models.Monitor
	if err := h.DB.First(&monitor, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "monitor not found")
	}

	updates := map[string]interface{}{}
	if name := strings.TrimSpace(req.FirstName); name != "" {
		updates["first_name"] = name
	}
	if name := strings.TrimSpace(req.LastName); name != "" {
		updates["last_name"] = name
	}
	if req.Phone != "" {
		updates["phone"] = strings.TrimSpace(req.Phone)
	}
	if req.Email != "" {
		updates["email"] = strings.ToLower(strings.TrimSpace(req.Email))
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
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

	if err := h.DB.Model(&monitor).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating monitor")
	}

	user := middleware.GetCurrentUser(c)
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "monitor.update",
		ResourceType: "monitor",
		ResourceID:   &monitor.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, monitor)
}

func (h *MonitorHandler) Delete(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid monitor id")
	}

	var monitor models.Monitor
	if err := h.DB.First(&monitor, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "monitor not found")
	}

	if err := h.DB.Delete(&monitor).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting monitor")
	}

	user := middleware.GetCurrentUser(c)
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "monitor.delete",
		ResourceType: "monitor",
		ResourceID:   &id,
		Details:      map[string]interface{}{"name": monitor.FirstName + " " + monitor.LastName},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Message(c, fiber.StatusOK, "monitor deleted")
}
