package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/oldphotos/api/internal/setup"
	"github.com/oldphotos/api/pkg/response"
)

type StatusHandler struct {
	probe *setup.Probe
}

func NewStatusHandler(probe *setup.Probe) *StatusHandler {
	return &StatusHandler{probe: probe}
}

// Get handles GET /status
func (h *StatusHandler) Get(c *fiber.Ctx) error {
	return response.OK(c, h.probe.Status())
}
