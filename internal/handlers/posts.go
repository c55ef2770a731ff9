package handlers

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ekklesia/backend/internal/middleware"
	"github.com/ekklesia/backend/internal/models"
	"github.com/ekklesia/backend/internal/services"
	"github.com/ekklesia/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type PostHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewPostHandler(db *gorm.DB, audit *services.AuditService) *PostHandler {
	return &PostHandler{DB: db, Audit: audit}
}

type postRequest struct {
	Title        string  `json:"title"`
	Body         string  `json:"body"`
	CoverMediaID *string `json:"coverMediaID"`
}

var slugInvalidChars = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases and collapses non-alphanumerics to hyphens.
// Uniqueness is handled by appending a counter on conflict.
func slugify(title string) string {
	slug := slugInvalidChars.ReplaceAllString(strings.ToLower(title), "-")
	return strings.Trim(slug, "-")
}

func (h *PostHandler) uniqueSlug(title string) string {
	base := slugify(title)
	if base == "" {
		base = "post"
	}
	slug := base
	for i := 2; ; i++ {
		var count int64
		h.DB.Model(&models.Post{}).Where("slug = ?", slug).Count(&count)
		if count == 0 {
			return slug
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

func (h *PostHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)
	user := middleware.GetCurrentUser(c)

	query := h.DB.Model(&models.Post{})
	// Non-editors only see published posts.
	if user == nil || !user.HasPermission("blog.manage") {
		query = query.Where("published = ?", true)
	} else if published := c.Query("published"); published != "" {
		query = query.Where("published = ?", published == "true")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting posts")
	}

	var posts []models.Post
	if err := utils.ApplyPagination(query.Preload("Author").Order("created_at DESC"), p).
		Find(&posts).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing posts")
	}

	return utils.Paginated(c, posts, p.Page, p.Limit, total)
}

func (h *PostHandler) GetBySlug(c *fiber.Ctx) error {
	slug := c.Params("slug")
	if slug == "" {
		return utils.Error(c, fiber.StatusBadRequest, "slug is required")
	}

	var post models.Post
	if err := h.DB.Preload("Author").Preload("CoverMedia").First(&post, "slug = ?", slug).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "post not found")
	}

	user := middleware.GetCurrentUser(c)
	if !post.Published && (user == nil || !user.HasPermission("blog.manage")) {
		return utils.Error(c, fiber.StatusNotFound, "post not found")
	}

	return utils.Success(c, fiber.StatusOK, post)
}

func (h *PostHandler) Create(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req postRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || strings.TrimSpace(req.Body) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "title and body are required")
	}

	post := models.Post{
		Title:    req.Title,
		Slug:     h.uniqueSlug(req.Title),
		Body:     req.Body,
		AuthorID: user.ID,
	}

	if req.CoverMediaID != nil && *req.CoverMediaID != "" {
		mediaID, err := parseUUID(*req.CoverMediaID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid coverMediaID")
		}
		var media models.Media
		if err := h.DB.First(&media, "id = ?", mediaID).Error; err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "cover media not found")
		}
		post.CoverMediaID = &mediaID
	}

	if err := h.DB.Create(&post).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating post")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "post.create",
		ResourceType: "post",
		ResourceID:   &post.ID,
		Details:      map[string]interface{}{"title": post.Title},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, post)
}

func (h *PostHandler) Update(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid post id")
	}

	var req postRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	var post models.Post
	if err := h.DB.First(&post, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "post not found")
	}

	updates := map[string]interface{}{}
	if title := strings.TrimSpace(req.Title); title != "" && title != post.Title {
		updates["title"] = title
		updates["slug"] = h.uniqueSlug(title)
	}
	if strings.TrimSpace(req.Body) != "" {
		updates["body"] = req.Body
	}
	if req.CoverMediaID != nil {
		if *req.CoverMediaID == "" {
			updates["cover_media_id"] = nil
		} else {
			mediaID, err := parseUUID(*req.CoverMediaID)
			if err != nil {
				return utils.Error(c, fiber.StatusBadRequest, "invalid coverMediaID")
			}
			var media models.Media
			if err := h.DB.First(&media, "id = ?", mediaID).Error; err != nil {
				return utils.Error(c, fiber.StatusBadRequest, "cover media not found")
			}
			updates["cover_media_id"] = mediaID
		}
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&post).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating post")
	}

	user := middleware.GetCurrentUser(c)
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "post.update",
		ResourceType: "post",
		ResourceID:   &post.ID,
		Details:      map[string]interface{}{"title": post.Title},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, post)
}

// Publish makes the post visible and triggers the notification fan-out
// through the audit pipeline.
func (h *PostHandler) Publish(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid post id")
	}

	var post models.Post
	if err := h.DB.First(&post, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "post not found")
	}

	if post.Published {
		return utils.Error(c, fiber.StatusConflict, "post is already published")
	}

	now := time.Now()
	if err := h.DB.Model(&post).Updates(map[string]interface{}{
		"published":    true,
		"published_at": now,
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed publishing post")
	}

	user := middleware.GetCurrentUser(c)
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "post.publish",
		ResourceType: "post",
		ResourceID:   &post.ID,
		Details:      map[string]interface{}{"title": post.Title},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, post)
}

func (h *PostHandler) Unpublish(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid post id")
	}

	var post models.Post
	if err := h.DB.First(&post, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "post not found")
	}

	if err := h.DB.Model(&post).Updates(map[string]interface{}{
		"published":    false,
		"published_at": nil,
	}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed unpublishing post")
	}

	return utils.Success(c, fiber.StatusOK, post)
}

func (h *PostHandler) Delete(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid post id")
	}

	var post models.Post
	if err := h.DB.First(&post, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "post not found")
	}

	if err := h.DB.Delete(&post).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting post")
	}

	user := middleware.GetCurrentUser(c)
	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &user.ID,
		Action:       "post.delete",
		ResourceType: "post",
		ResourceID:   &id,
		Details:      map[string]interface{}{"title": post.Title},
		IPAddress:    c.IP(),
		RequestID:    getRequestID(c),
	})

	return utils.Message(c, fiber.StatusOK, "post deleted")
}
