package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/factory-ops-api/internal/dto"
	"github.com/noah-isme/factory-ops-api/internal/models"
	appErrors "github.com/noah-isme/factory-ops-api/pkg/errors"
	"github.com/noah-isme/factory-ops-api/pkg/response"
)

type qualityInspectionService interface {
	recordService
	Create(ctx context.Context, req dto.CreateQualityInspectionRequest, actor models.Actor) (*models.QualityInspection, error)
	Update(ctx context.Context, id string, req dto.UpdateQualityInspectionRequest, actor models.Actor) (*models.QualityInspection, error)
}

// QualityInspectionHandler exposes quality inspection endpoints.
type QualityInspectionHandler struct {
	*RecordHandler
	service qualityInspectionService
}

// NewQualityInspectionHandler builds a new handler.
func NewQualityInspectionHandler(service qualityInspectionService, views detailViewer) *QualityInspectionHandler {
	return &QualityInspectionHandler{RecordHandler: NewRecordHandler(service, views), service: service}
}

// Create godoc
// @Summary Log a quality inspection
// @Tags Quality Inspections
// @Accept json
// @Produce json
// @Param payload body dto.CreateQualityInspectionRequest true "Payload"
// @Success 201 {object} response.Envelope
// @Router /quality-inspections [post]
func (h *QualityInspectionHandler) Create(c *gin.Context) {
	var req dto.CreateQualityInspectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid quality inspection payload"))
		return
	}
	created, err := h.service.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Update godoc
// @Summary Edit a quality inspection
// @Tags Quality Inspections
// @Accept json
// @Produce json
// @Param id path string true "ID"
// @Param payload body dto.UpdateQualityInspectionRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Success 204 "record no longer exists"
// @Router /quality-inspections/{id} [patch]
func (h *QualityInspectionHandler) Update(c *gin.Context) {
	var req dto.UpdateQualityInspectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid quality inspection payload"))
		return
	}
	updated, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	respondTyped(c, updated, err)
}
