package handlers

import (
	"strings"
	"time"

	"github.com/ekklesia/backend/internal/middleware"
	"github.com/ekklesia/backend/internal/models"
	"github.com/ekklesia/backend/internal/services"
	"github.com/ekklesia/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type WorshipHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewWorshipHandler(db *gorm.DB, audit *services.AuditService) *WorshipHandler {
	return &WorshipHandler{DB: db, Audit: audit}
}

type worshipReportRequest struct {
	ServiceDate   string  `json:"serviceDate"`
	Preacher      string  `json:"preacher"`
	Theme         string  `json:"theme"`
	MenCount      int     `json:"menCount"`
	WomenCount    int     `json:"womenCount"`
	ChildrenCount int     `json:"childrenCount"`
	Offering      float64 `json:"offering"`
	Notes         string  `json:"notes"`
}

func (r *worshipReportRequest) validate() string {
	r.Preacher = strings.TrimSpace(r.Preacher)
	if r.ServiceDate == "" {
		return "serviceDate is required"
	}
	if r.Preacher == "" {
		return "preacher is required"
	}
	if r.MenCount < 0 || r.WomenCount < 0 || r.ChildrenCount < 0 {
		return "attendance counts cannot be negative"
	}
	if r.Offering < 0 {
		return "offering cannot be negative"
	}
	return ""
}

func (h *WorshipHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.WorshipReport{})
	query, err := applyDateRange(query, c, "service_date")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting reports")
	}

	var reports []models.WorshipReport
	if err := utils.ApplyPagination(query.Preload("ReportedBy").Order("service_date DESC"), p).
		Find(&reports).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing reports")
	}

	return utils.Paginated(c, reports, p.Page, p.Limit, total)
}

func (h *WorshipHandler) Get(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid report id")
	}

	var report models.WorshipReport
	if err := h.DB.Preload("ReportedBy").First(&report, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "report not found")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"report":          report,
		"totalAttendance": report.TotalAttendance(),
	})
}

func (h *WorshipHandler) Create(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req worshipReportRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if msg := req.validate(); msg != "" {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	serviceDate, err := parseDate(req.ServiceDate)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid serviceDate")
	}

	report := models.WorshipReport{
		ServiceDate:   serviceDate,
		Preacher:      req.Preacher,
		Theme:         strings.TrimSpace(req.Theme),
		MenCount:      req.MenCount,
		WomenCount:    req.WomenCount,
		ChildrenCount: req.ChildrenCount,
		Offering:      req.Offering,
		Notes:         req.Notes,
		ReportedByID:  user.ID,
	}

	if err := h.DB.Create(&report).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating report")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "worship_report.create",
		ResourceType: "worship_report",
		ResourceID:   &report.ID,
		Details: map[string]interface{}{
			"service_date": serviceDate.Format("2006-01-02"),
			"attendance":   report.TotalAttendance(),
		},
		IPAddress: c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, report)
}

func (h *WorshipHandler) Update(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid report id")
	}

	var req worshipReportRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if msg := req.validate(); msg != "" {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	serviceDate, err := parseDate(req.ServiceDate)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid serviceDate")
	}

	var report models.WorshipReport
	if err := h.DB.First(&report, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "report not found")
	}

	if err := h.DB.Model(&report).Updates(map[string]interface{}{
		"service_date":   serviceDate,
		"preacher":       req.Preacher,
		"theme":          strings.TrimSpace(req.Theme),
		"men_count":      req.MenCount,
		"women_count":    req.WomenCount,
		"children_count": req.ChildrenCount,
		"offering":       req.Offering,
		"notes":          req.Notes,
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating report")
	}

	user := middleware.GetCurrentUser(c)
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "worship_report.update",
		ResourceType: "worship_report",
		ResourceID:   &report.ID,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, report)
}

func (h *WorshipHandler) Delete(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid report id")
	}

	var report models.WorshipReport
	if err := h.DB.First(&report, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "report not found")
	}

	if err := h.DB.Delete(&report).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting report")
	}

	user := middleware.GetCurrentUser(c)
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "worship_report.delete",
		ResourceType: "worship_report",
		ResourceID:   &id,
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Message(c, fiber.StatusOK, "report deleted")
}

// Stats aggregates attendance and offerings over an optional date range.
// Averages are computed in Go rather than SQL so a zero-report range
// returns zeros instead of NULL scans.
func (h *WorshipHandler) Stats(c *fiber.Ctx) error {
	query := h.DB.Model(&models.WorshipReport{})
	query, err := applyDateRange(query, c, "service_date")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	var reports []models.WorshipReport
	if err := query.Order("service_date ASC").Find(&reports).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading reports")
	}

	if len(reports) == 0 {
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"reportCount": 0,
		})
	}

	var totalMen, totalWomen, totalChildren, totalAttendance int
	var totalOffering float64
	best := reports[0]
	worst := reports[0]
	for _, r := range reports {
		totalMen += r.MenCount
		totalWomen += r.WomenCount
		totalChildren += r.ChildrenCount
		totalAttendance += r.TotalAttendance()
		totalOffering += r.Offering
		if r.TotalAttendance() > best.TotalAttendance() {
			best = r
		}
		if r.TotalAttendance() < worst.TotalAttendance() {
			worst = r
		}
	}

	n := float64(len(reports))
	womenPercentage := 0.0
	if totalAttendance > 0 {
		womenPercentage = float64(totalWomen) / float64(totalAttendance) * 100
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"reportCount":       len(reports),
		"totalAttendance":   totalAttendance,
		"totalMen":          totalMen,
		"totalWomen":        totalWomen,
		"totalChildren":     totalChildren,
		"totalOffering":     totalOffering,
		"averageAttendance": float64(totalAttendance) / n,
		"averageOffering":   totalOffering / n,
		"womenPercentage":   womenPercentage,
		"bestService": fiber.Map{
			"serviceDate": best.ServiceDate,
			"attendance":  best.TotalAttendance(),
		},
		"lowestService": fiber.Map{
			"serviceDate": worst.ServiceDate,
			"attendance":  worst.TotalAttendance(),
		},
	})
}

// applyDateRange narrows a query by optional from/to query params against
// the given date column.
func applyDateRange(query *gorm.DB, c *fiber.Ctx, column string) (*gorm.DB, error) {
	if from := c.Query("from"); from != "" {
		date, err := parseDate(from)
		if err != nil {
			return nil, errInvalidFromDate
		}
		query = query.Where(column+" >= ?", date)
	}
	if to := c.Query("to"); to != "" {
		date, err := parseDate(to)
		if err != nil {
			return nil, errInvalidToDate
		}
		// Inclusive upper bound for day-granular input.
		query = query.Where(column+" < ?", date.Add(24*time.Hour))
	}
	return query, nil
}
