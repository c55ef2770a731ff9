package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/ekklesia/backend/internal/middleware"
	"github.com/ekklesia/backend/internal/models"
	"github.com/ekklesia/backend/internal/services"
	"github.com/ekklesia/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChildHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewChildHandler(db *gorm.DB, audit *services.AuditService) *ChildHandler {
	return &ChildHandler{DB: db, Audit: audit}
}

type childRequest struct {
	FirstName     string  `json:"firstName"`
	LastName      string  `json:"lastName"`
	BirthDate     *string `json:"birthDate"`
	Gender        string  `json:"gender"`
	GuardianName  string  `json:"guardianName"`
	GuardianPhone string  `json:"guardianPhone"`
	RoomID        *string `json:"roomID"`
}

func (h *ChildHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.Child{})
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?", pattern, pattern)
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
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting children")
	}

	var children []models.Child
	if err := utils.ApplyPagination(query.Preload("Room").Order("last_name ASC, first_name ASC"), p).
		Find(&children).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing children")
	}

	return utils.Paginated(c, children, p.Page, p.Limit, total)
}

func (h *ChildHandler) Get(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid child id")
	}

	var child models.Child
	if err := h.DB.Preload("Room").First(&child, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "child not found")
	}

	return utils.Success(c, fiber.StatusOK, child)
}

func (h *ChildHandler) Create(c *fiber.Ctx) error {
	var req childRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.FirstName == "" || req.LastName == "" {
		return utils.Error(c, fiber.StatusBadRequest, "firstName and lastName are required")
	}

	child := models.Child{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Gender:        req.Gender,
		GuardianName:  strings.TrimSpace(req.GuardianName),
		GuardianPhone: strings.TrimSpace(req.GuardianPhone),
	}

	if req.BirthDate != nil && *req.BirthDate != "" {
		birthDate, err := parseDate(*req.BirthDate)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid birthDate")
		}
		if birthDate.After(time.Now()) {
			return utils.Error(c, fiber.StatusBadRequest, "birthDate cannot be in the future")
		}
		child.BirthDate = &birthDate
	}

	if req.RoomID != nil && *req.RoomID != "" {
		roomID, err := h.resolveRoom(*req.RoomID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, err.Error())
		}
		child.RoomID = roomID
	}

	if err := h.DB.Create(&child).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating child")
	}

	user := middleware.GetCurrentUser(c)
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "child.create",
		ResourceType: "child",
		ResourceID:   &child.ID,
		Details:      map[string]interface{}{"name": child.FirstName + " " + child.LastName},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, child)
}

func (h *ChildHandler) Update(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid child id")
	}

	var req childRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	var child models.Child
	if err := h.DB.First(&child, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "child not found")
	}

	updates := map[string]interface{}{}
	if name := strings.TrimSpace(req.FirstName); name != "" {
		updates["first_name"] = name
	}
	if name := strings.TrimSpace(req.LastName); name != "" {
		updates["last_name"] = name
	}
	if req.Gender != "" {
		updates["gender"] = req.Gender
	}
	if req.GuardianName != "" {
		updates["guardian_name"] = strings.TrimSpace(req.GuardianName)
	}
	if req.GuardianPhone != "" {
		updates["guardian_phone"] = strings.TrimSpace(req.GuardianPhone)
	}
	if req.BirthDate != nil && *req.BirthDate != "" {
		birthDate, err := parseDate(*req.BirthDate)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid birthDate")
		}
		updates["birth_date"] = birthDate
	}
	if req.RoomID != nil {
		if *req.RoomID == "" {
			updates["room_id"] = nil
		} else {
			roomID, err := h.resolveRoom(*req.RoomID)
			if err != nil {
				return utils.Error(c, fiber.StatusBadRequest, err.Error())
			}
			updates["room_id"] = roomID
		}
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&child).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating child")
	}

	user := middleware.GetCurrentUser(c)
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "child.update",
		ResourceType: "child",
		ResourceID:   &child.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, child)
}

func (h *ChildHandler) Delete(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid child id")
	}

	var child models.Child
	if err := h.DB.First(&child, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "child not found")
	}

	if err := h.DB.Delete(&child).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting child")
	}

	user := middleware.GetCurrentUser(c)
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "child.delete",
		ResourceType: "child",
		ResourceID:   &id,
		Details:      map[string]interface{}{"name": child.FirstName + " " + child.LastName},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Message(c, fiber.StatusOK, "child deleted")
}

func (h *ChildHandler) resolveRoom(raw string) (*uuid.UUID, error) {
	roomID, err := parseUUID(raw)
	if err != nil {
		return nil, errors.New("invalid roomID")
	}
	var room models.Room
	if err := h.DB.First(&room, "id = ?", roomID).Error; err != nil {
		return nil, errors.New("room not found")
	}
	return &roomID, nil
}
