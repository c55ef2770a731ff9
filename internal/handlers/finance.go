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

type FinanceHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewFinanceHandler(db *gorm.DB, audit *services.AuditService) *FinanceHandler {
	return &FinanceHandler{DB: db, Audit: audit}
}

type cashTransactionRequest struct {
	Flow     string  `json:"flow"`
	Category string  `json:"category"`
	Label    string  `json:"label"`
	Amount   float64 `json:"amount"`
	Date     string  `json:"date"`
}

func (h *FinanceHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.CashTransaction{})
	if flow := c.Query("flow"); flow != "" {
		switch models.CashFlow(flow) {
		case models.CashFlowIn, models.CashFlowOut:
			query = query.Where("flow = ?", flow)
		default:
			return utils.Error(c, fiber.StatusBadRequest, "invalid flow filter")
		}
	}
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	query, err := applyDateRange(query, c, "date")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting transactions")
	}

	var transactions []models.CashTransaction
	if err := utils.ApplyPagination(query.Preload("RecordedBy").Order("date DESC, created_at DESC"), p).
		Find(&transactions).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing transactions")
	}

	return utils.Paginated(c, transactions, p.Page, p.Limit, total)
}

func (h *FinanceHandler) Create(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req cashTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	flow := models.CashFlow(req.Flow)
	if flow != models.CashFlowIn && flow != models.CashFlowOut {
		return utils.Error(c, fiber.StatusBadRequest, "flow must be inflow or outflow")
	}
	req.Category = strings.TrimSpace(req.Category)
	req.Label = strings.TrimSpace(req.Label)
	if req.Category == "" || req.Label == "" {
		return utils.Error(c, fiber.StatusBadRequest, "category and label are required")
	}
	if req.Amount <= 0 {
		return utils.Error(c, fiber.StatusBadRequest, "amount must be positive")
	}
	if req.Date == "" {
		return utils.Error(c, fiber.StatusBadRequest, "date is required")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid date")
	}

	tx := models.CashTransaction{
		Flow:         flow,
		Category:     req.Category,
		Label:        req.Label,
		Amount:       req.Amount,
		Date:         date,
		RecordedByID: user.ID,
	}

	if err := h.DB.Create(&tx).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating transaction")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "caisse.create",
		ResourceType: "cash_transaction",
		ResourceID:   &tx.ID,
		Details: map[string]interface{}{
			"flow":   string(tx.Flow),
			"amount": tx.Amount,
			"label":  tx.Label,
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, tx)
}

func (h *FinanceHandler) Delete(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid transaction id")
	}

	var tx models.CashTransaction
	if err := h.DB.First(&tx, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "transaction not found")
	}

	if err := h.DB.Delete(&tx).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting transaction")
	}

	user := middleware.GetCurrentUser(c)
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "caisse.delete",
		ResourceType: "cash_transaction",
		ResourceID:   &id,
		Details:      map[string]interface{}{"label": tx.Label, "amount": tx.Amount},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Message(c, fiber.StatusOK, "transaction deleted")
}

// Summary totals the caisse over an optional date range, with a
// per-category breakdown.
func (h *FinanceHandler) Summary(c *fiber.Ctx) error {
	base := h.DB.Model(&models.CashTransaction{})
	base, err := applyDateRange(base, c, "date")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	var inflow, outflow float64
	if err := base.Session(&gorm.Session{}).Where("flow = ?", models.CashFlowIn).
		Select("COALESCE(SUM(amount), 0)").Scan(&inflow).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed summing inflows")
	}
	if err := base.Session(&gorm.Session{}).Where("flow = ?", models.CashFlowOut).
		Select("COALESCE(SUM(amount), 0)").Scan(&outflow).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed summing outflows")
	}

	type categoryRow struct {
		Category string  `json:"category"`
		Flow     string  `json:"flow"`
		Total    float64 `json:"total"`
	}
	var byCategory []categoryRow
	if err := base.Session(&gorm.Session{}).
		Select("category, flow, COALESCE(SUM(amount), 0) AS total").
		Group("category, flow").
		Order("category ASC").
		Scan(&byCategory).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed grouping by category")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"inflow":     inflow,
		"outflow":    outflow,
		"balance":    inflow - outflow,
		"byCategory": byCategory,
	})
}
