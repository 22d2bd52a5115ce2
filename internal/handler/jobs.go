package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/oldphotos/api/internal/model"
	"github.com/oldphotos/api/internal/scheduler"
	"github.com/oldphotos/api/pkg/response"
)

type JobHandler struct {
	scheduler *scheduler.Scheduler
	validator *validator.Validate
}

func NewJobHandler(s *scheduler.Scheduler, v *validator.Validate) *JobHandler {
	return &JobHandler{
		scheduler: s,
		validator: v,
	}
}

// Create handles POST /jobs
func (h *JobHandler) Create(c *fiber.Ctx) error {
	var req model.CreateJobsRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	jobs, err := h.scheduler.CreateJobs(&req)
	if err != nil {
		return mapSchedulerError(c, err)
	}

	return response.Created(c, jobs)
}

// List handles GET /jobs
func (h *JobHandler) List(c *fiber.Ctx) error {
	return response.OK(c, h.scheduler.ListJobs())
}

// Get handles GET /jobs/:id
func (h *JobHandler) Get(c *fiber.Ctx) error {
	job, err := h.scheduler.GetJob(c.Params("id"))
	if err != nil {
		return mapSchedulerError(c, err)
	}
	return response.OK(c, job)
}

// SubmitInput handles POST /jobs/:id/input
func (h *JobHandler) SubmitInput(c *fiber.Ctx) error {
	var req model.SubmitInputRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.scheduler.SubmitInput(c.Params("id"), &req); err != nil {
		return mapSchedulerError(c, err)
	}
	return okBody(c)
}

// Skip handles POST /jobs/:id/skip
func (h *JobHandler) Skip(c *fiber.Ctx) error {
	if err := h.scheduler.SkipStep(c.Params("id")); err != nil {
		return mapSchedulerError(c, err)
	}
	return okBody(c)
}

// Back handles POST /jobs/:id/back
func (h *JobHandler) Back(c *fiber.Ctx) error {
	if err := h.scheduler.Rewind(c.Params("id")); err != nil {
		return mapSchedulerError(c, err)
	}
	return okBody(c)
}

// Retry handles POST /jobs/:id/retry
func (h *JobHandler) Retry(c *fiber.Ctx) error {
	var req model.RetryRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}

	if err := h.scheduler.Retry(c.Params("id"), req.Model); err != nil {
		return mapSchedulerError(c, err)
	}
	return okBody(c)
}

// SkipFailed handles POST /jobs/:id/skip-failed
func (h *JobHandler) SkipFailed(c *fiber.Ctx) error {
	if err := h.scheduler.SkipFailed(c.Params("id")); err != nil {
		return mapSchedulerError(c, err)
	}
	return okBody(c)
}

// Cancel handles POST /jobs/:id/cancel
func (h *JobHandler) Cancel(c *fiber.Ctx) error {
	if err := h.scheduler.Cancel(c.Params("id")); err != nil {
		return mapSchedulerError(c, err)
	}
	return okBody(c)
}

// CancelAll handles POST /jobs/cancel-all
func (h *JobHandler) CancelAll(c *fiber.Ctx) error {
	n := h.scheduler.CancelAll()
	return response.OK(c, fiber.Map{"ok": true, "cancelled": n})
}

// Reorder handles PUT /jobs/reorder
func (h *JobHandler) Reorder(c *fiber.Ctx) error {
	var req model.ReorderRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	h.scheduler.Reorder(req.JobIDs)
	return okBody(c)
}

func okBody(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{"ok": true})
}

// mapSchedulerError translates scheduler errors into the response envelope.
func mapSchedulerError(c *fiber.Ctx, err error) error {
	var ve *scheduler.ValidationError
	switch {
	case errors.Is(err, scheduler.ErrNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, scheduler.ErrIllegalTransition):
		return response.IllegalState(c, "Job state does not allow this action")
	case errors.Is(err, scheduler.ErrNoPreviousManualStep):
		return response.NoPreviousManualStep(c, "No previous manual step to return to")
	case errors.As(err, &ve):
		return response.ValidationError(c, ve.Message, nil)
	}
	return response.ServiceError(c, err.Error())
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
