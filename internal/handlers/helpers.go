package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var (
	errInvalidFromDate  = errors.New("invalid from date")
	errInvalidToDate    = errors.New("invalid to date")
	errInvalidChildMark = errors.New("invalid child in presence mark")
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

// parseDate accepts RFC 3339 or a bare YYYY-MM-DD.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

func getRequestID(c *fiber.Ctx) string {
	if v := c.Locals("requestID"); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
