package handlers

import (
	"time"

	"github.com/ekklesia/backend/internal/middleware"
	"github.com/ekklesia/backend/internal/models"
	"github.com/ekklesia/backend/internal/services"
	"github.com/ekklesia/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type PaymentHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewPaymentHandler(db *gorm.DB, audit *services.AuditService) *PaymentHandler {
	return &PaymentHandler{DB: db, Audit: audit}
}

type paymentRequest struct {
	ChildID    string  `json:"childID"`
	ActivityID string  `json:"activityID"`
	Amount     float64 `json:"amount"`
	Method     string  `json:"method"`
	PaidAt     string  `json:"paidAt"`
}

func (h *PaymentHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.Payment{})
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

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting payments")
	}

	var payments []models.Payment
	if err := utils.ApplyPagination(query.Preload("Child").Preload("Activity").Order("paid_at DESC"), p).
		Find(&payments).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing payments")
	}

	return utils.Paginated(c, payments, p.Page, p.Limit, total)
}

func (h *PaymentHandler) Create(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req paymentRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	childID, err := parseUUID(req.ChildID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid childID")
	}
	activityID, err := parseUUID(req.ActivityID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid activityID")
	}
	if req.Amount <= 0 {
		return utils.Error(c, fiber.StatusBadRequest, "amount must be positive")
	}

	method := models.PaymentMethodCash
	if req.Method != "" {
		switch models.PaymentMethod(req.Method) {
		case models.PaymentMethodCash, models.PaymentMethodMobile, models.PaymentMethodBank:
			method = models.PaymentMethod(req.Method)
		default:
			return utils.Error(c, fiber.StatusBadRequest, "invalid payment method")
		}
	}

	paidAt := time.Now()
	if req.PaidAt != "" {
		paidAt, err = parseDate(req.PaidAt)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid paidAt")
		}
	}

	var child models.Child
	if err := h.DB.First(&child, "id = ?", childID).Error; err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "child not found")
	}
	var activity models.Activity
	if err := h.DB.First(&activity, "id = ?", activityID).Error; err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "activity not found")
	}

	payment := models.Payment{
		ChildID:      childID,
		ActivityID:   activityID,
		Amount:       req.Amount,
		Method:       method,
		PaidAt:       paidAt,
		RecordedByID: user.ID,
	}

	if err := h.DB.Create(&payment).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating payment")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "payment.create",
		ResourceType: "payment",
		ResourceID:   &payment.ID,
		Details: map[string]interface{}{
			"amount":   payment.Amount,
			"child":    child.FirstName + " " + child.LastName,
			"activity": activity.Title,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, payment)
}

func (h *PaymentHandler) Delete(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid payment id")
	}

	var payment models.Payment
	if err := h.DB.First(&payment, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "payment not found")
	}

	if err := h.DB.Delete(&payment).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting payment")
	}

	user := middleware.GetCurrentUser(c)
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "payment.delete",
		ResourceType: "payment",
		ResourceID:   &id,
		Details:      map[string]interface{}{"amount": payment.Amount},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Message(c, fiber.StatusOK, "payment deleted")
}
