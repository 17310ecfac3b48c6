package http

import (
	"github.com/gofiber/fiber/v2"
)

type HealthHandler struct {
	serviceName string
}

func NewHealthHandler(serviceName string) *HealthHandler {
	return &HealthHandler{serviceName: serviceName}
}

// Register mounts the banner on the app root and the health check on the API group.
func (h *HealthHandler) Register(app *fiber.App, api fiber.Router) {
	app.Get("/", h.Root)
	api.Get("/health", h.Health)
}

func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": h.serviceName})
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "All good"})
}
