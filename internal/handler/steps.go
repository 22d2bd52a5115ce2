package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/oldphotos/api/internal/stage"
	"github.com/oldphotos/api/pkg/response"
)

type StepsHandler struct {
	stages *stage.Registry
}

func NewStepsHandler(stages *stage.Registry) *StepsHandler {
	return &StepsHandler{stages: stages}
}

// List handles GET /steps. The catalog is re-filtered on every call so a
// stage whose API key appeared after start shows up without a restart.
func (h *StepsHandler) List(c *fiber.Ctx) error {
	return response.OK(c, h.stages.Public())
}
