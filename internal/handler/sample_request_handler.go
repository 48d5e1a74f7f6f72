package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/factory-ops-api/internal/dto"
	"github.com/noah-isme/factory-ops-api/internal/models"
	appErrors "github.com/noah-isme/factory-ops-api/pkg/errors"
	"github.com/noah-isme/factory-ops-api/pkg/response"
)

type sampleRequestService interface {
	recordService
	Create(ctx context.Context, req dto.CreateSampleRequestRequest, actor models.Actor) (*models.SampleRequest, error)
	Update(ctx context.Context, id string, req dto.UpdateSampleRequestRequest, actor models.Actor) (*models.SampleRequest, error)
}

// SampleRequestHandler exposes sample request endpoints.
type SampleRequestHandler struct {
	*RecordHandler
	service sampleRequestService
}

// NewSampleRequestHandler builds a new handler.
func NewSampleRequestHandler(service sampleRequestService, views detailViewer) *SampleRequestHandler {
	return &SampleRequestHandler{RecordHandler: NewRecordHandler(service, views), service: service}
}

// Create godoc
// @Summary Open a sample request
// @Description Allocates the next S-YYYYMMDD-nnn id.
// @Tags Sample Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateSampleRequestRequest true "Payload"
// @Success 201 {object} response.Envelope
// @Router /sample-requests [post]
func (h *SampleRequestHandler) Create(c *gin.Context) {
	var req dto.CreateSampleRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid sample request payload"))
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
// @Summary Edit a sample request
// @Tags Sample Requests
// @Accept json
// @Produce json
// @Param id path string true "ID"
// @Param payload body dto.UpdateSampleRequestRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Success 204 "record no longer exists"
// @Router /sample-requests/{id} [patch]
func (h *SampleRequestHandler) Update(c *gin.Context) {
	var req dto.UpdateSampleRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid sample request payload"))
		return
	}
	updated, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	respondTyped(c, updated, err)
}
