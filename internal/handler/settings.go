package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/oldphotos/api/internal/model"
	"github.com/oldphotos/api/internal/scheduler"
	"github.com/oldphotos/api/pkg/response"
)

type SettingsHandler struct {
	scheduler *scheduler.Scheduler
}

func NewSettingsHandler(s *scheduler.Scheduler) *SettingsHandler {
	return &SettingsHandler{scheduler: s}
}

// Get handles GET /settings
func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	return response.OK(c, h.settings())
}

// Update handles PUT /settings. Out-of-range values are ignored; the
// response always reflects the effective setting.
func (h *SettingsHandler) Update(c *fiber.Ctx) error {
	var req model.SettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	h.scheduler.SetMaxConcurrent(req.MaxConcurrent)
	return response.OK(c, h.settings())
}

func (h *SettingsHandler) settings() model.SettingsResponse {
	current, limit := h.scheduler.Settings()
	return model.SettingsResponse{
		MaxConcurrent:      current,
		MaxConcurrentLimit: limit,
	}
}
