package utils

import "github.com/gofiber/fiber/v2"

// Every handler answers with the same envelope: {success, data} on the
// happy path, {success, error} otherwise. Clients key off the boolean.

func Success(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// Message is for confirmation-only responses (deletes, mark-read and
// the like) where there is no resource to return.
func Message(c *fiber.Ctx, status int, message string) error {
	return Success(c, status, fiber.Map{"message": message})
}

func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

func Paginated(c *fiber.Ctx, data interface{}, page, limit int, total int64) error {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    data,
		"pagination": fiber.Map{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": totalPages,
		},
	})
}
