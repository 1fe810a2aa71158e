package handler

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/hseguard/syncd/internal/model"
	"github.com/hseguard/syncd/internal/queue"
	"github.com/hseguard/syncd/internal/service"
	"github.com/hseguard/syncd/internal/store"
	"github.com/hseguard/syncd/pkg/response"
)

// SyncHandler exposes the operational sync surface: enqueue single syncs,
// trigger batch fan-outs and inspect sync records. Enqueue endpoints
// return 202 immediately; outcomes land on sync records.
type SyncHandler struct {
	service   *service.SyncService
	records   service.SyncRecords
	queue     queue.Enqueuer
	validator *validator.Validate
}

func NewSyncHandler(svc *service.SyncService, records service.SyncRecords, q queue.Enqueuer, v *validator.Validate) *SyncHandler {
	return &SyncHandler{
		service:   svc,
		records:   records,
		queue:     q,
		validator: v,
	}
}

type enqueueRequest struct {
	ProjectID string `json:"projectId" validate:"required"`
}

type enqueueResponse struct {
	JobID string `json:"jobId"`
}

// SyncDeviation handles POST /api/sync/deviations/:id
func (h *SyncHandler) SyncDeviation(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return response.ValidationError(c, "Deviation ID is required", nil)
	}

	var req enqueueRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	payload := model.SyncDeviationPayload{DeviationID: id, ProjectID: req.ProjectID}
	jobID, err := h.queue.Enqueue(c.Context(), queue.TaskSyncDeviation, payload)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, enqueueResponse{JobID: jobID})
}

// SyncSJA handles POST /api/sync/sjas/:id
func (h *SyncHandler) SyncSJA(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return response.ValidationError(c, "SJA ID is required", nil)
	}

	var req enqueueRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	payload := model.SyncSJAPayload{SJAID: id, ProjectID: req.ProjectID}
	jobID, err := h.queue.Enqueue(c.Context(), queue.TaskSyncSJA, payload)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, enqueueResponse{JobID: jobID})
}

type batchRequest struct {
	CompanyID string   `json:"companyId" validate:"required"`
	ProjectID string   `json:"projectId" validate:"required"`
	Statuses  []string `json:"statuses,omitempty"`
	Since     *string  `json:"since,omitempty"`
}

// SyncBatch handles POST /api/sync/batch. The response counts enqueue
// outcomes, not sync outcomes.
func (h *SyncHandler) SyncBatch(c *fiber.Ctx) error {
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	var filters store.SyncFilters
	for _, s := range req.Statuses {
		filters.Statuses = append(filters.Statuses, model.EntityStatus(s))
	}
	if req.Since != nil {
		since, err := time.Parse(time.RFC3339, *req.Since)
		if err != nil {
			return response.ValidationError(c, "Invalid since timestamp", nil)
		}
		filters.Since = &since
	}

	result := h.service.SyncAll(c.Context(), req.CompanyID, req.ProjectID, filters)
	return response.OK(c, result)
}

// GetRecord handles GET /api/sync/records/:entityType/:id
func (h *SyncHandler) GetRecord(c *fiber.Ctx) error {
	entityType := model.EntityType(c.Params("entityType"))
	if entityType != model.EntityDeviation && entityType != model.EntitySJA {
		return response.ValidationError(c, "Unknown entity type", nil)
	}

	rec, err := h.records.GetBySource(c.Context(), c.Params("id"), entityType, model.ProviderDalux)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Entity has never been synced")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, rec)
}

func formatValidationErrors(err error) []string {
	var details []string
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, fe := range validationErrs {
			details = append(details, fe.Field()+" failed on "+fe.Tag())
		}
	}
	return details
}
