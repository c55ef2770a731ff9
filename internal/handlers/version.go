package handlers

import (
	"github.com/ekklesia/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func GetVersion(c *fiber.Ctx) error {
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"version": Version,
	})
}

func HealthCheck(c *fiber.Ctx) error {
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"status": "ok",
	})
}
