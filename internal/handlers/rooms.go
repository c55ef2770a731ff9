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

type RoomHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewRoomHandler(db *gorm.DB, audit *services.AuditService) *RoomHandler {
	return &RoomHandler{DB: db, Audit: audit}
}

type roomRequest struct {
	Name     string `json:"name"`
	AgeMin   int    `json:"ageMin"`
	AgeMax   int    `json:"ageMax"`
	Capacity int    `json:"capacity"`
}

func (r *roomRequest) validate() string {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return "name is required"
	}
	if r.AgeMin < 0 || r.AgeMax < 0 || r.AgeMax < r.AgeMin {
		return "invalid age range"
	}
	if r.Capacity < 0 {
		return "capacity cannot be negative"
	}
	return ""
}

func (h *RoomHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.Room{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting rooms")
	}

	var rooms []models.Room
	if err := utils.ApplyPagination(query.Order("age_min ASC"), p).Find(&rooms).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing rooms")
	}

	return utils.Paginated(c, rooms, p.Page, p.Limit, total)
}

func (h *RoomHandler) Get(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid room id")
	}

	var room models.Room
	if err := h.DB.First(&room, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "room not found")
	}

	return utils.Success(c, fiber.StatusOK, room)
}

// Members returns the room with its children and active monitors loaded.
func (h *RoomHandler) Members(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid room id")
	}

	var room models.Room
	if err := h.DB.
		Preload("Children").
		Preload("Monitors", "is_active = ?", true).
		First(&room, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "room not found")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"room":         room,
		"childCount":   len(room.Children),
		"monitorCount": len(room.Monitors),
	})
}

func (h *RoomHandler) Create(c *fiber.Ctx) error {
	var req roomRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if msg := req.validate(); msg != "" {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	room := models.Room{
		Name:     req.Name,
		AgeMin:   req.AgeMin,
		AgeMax:   req.AgeMax,
		Capacity: req.Capacity,
	}
	if err := h.DB.Create(&room).Error; err != nil {
		return utils.Error(c, fiber.StatusConflict, "room name already in use")
	}

	user := middleware.GetCurrentUser(c)
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "room.create",
		ResourceType: "room",
		ResourceID:   &room.ID,
		Details:      map[string]interface{}{"name": room.Name},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, room)
}

func (h *RoomHandler) Update(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid room id")
	}

	var req roomRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if msg := req.validate(); msg != "" {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	var room models.Room
	if err := h.DB.First(&room, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "room not found")
	}

	if err := h.DB.Model(&room).Updates(map[string]interface{}{
		"name":     req.Name,
		"age_min":  req.AgeMin,
		"age_max":  req.AgeMax,
		"capacity": req.Capacity,
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusConflict, "room name already in use")
	}

	user := middleware.GetCurrentUser(c)
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "room.update",
		ResourceType: "room",
		ResourceID:   &room.ID,
		Details:      map[string]interface{}{"name": room.Name},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, room)
}

func (h *RoomHandler) Delete(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid room id")
	}

	var room models.Room
	if err := h.DB.First(&room, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "room not found")
	}

	var childCount int64
	h.DB.Model(&models.Child{}).Where("room_id = ?", id).Count(&childCount)
	if childCount > 0 {
		return utils.Error(c, fiber.StatusConflict, "room still has children assigned")
	}

	// Monitors are detached, not deleted, when their room goes away.
	if err := h.DB.Model(&models.Monitor{}).Where("room_id = ?", id).Update("room_id", nil).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed detaching monitors")
	}

	if err := h.DB.Delete(&room).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting room")
	}

	user := middleware.GetCurrentUser(c)
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "room.delete",
		ResourceType: "room",
		ResourceID:   &id,
		Details:      map[string]interface{}{"name": room.Name},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Message(c, fiber.StatusOK, "room deleted")
}
