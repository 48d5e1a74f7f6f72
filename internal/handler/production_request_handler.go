package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/factory-ops-api/internal/dto"
	"github.com/noah-isme/factory-ops-api/internal/models"
	appErrors "github.com/noah-isme/factory-ops-api/pkg/errors"
	"github.com/noah-isme/factory-ops-api/pkg/response"
)

type productionRequestService interface {
	recordService
	Create(ctx context.Context, req dto.CreateProductionRequestRequest, actor models.Actor) (*models.ProductionRequest, error)
	Update(ctx context.Context, id string, req dto.UpdateProductionRequestRequest, actor models.Actor) (*models.ProductionRequest, error)
}

// ProductionRequestHandler exposes production request endpoints.
type ProductionRequestHandler struct {
	*RecordHandler
	service productionRequestService
}

// NewProductionRequestHandler builds a new handler.
func NewProductionRequestHandler(service productionRequestService, views detailViewer) *ProductionRequestHandler {
	return &ProductionRequestHandler{RecordHandler: NewRecordHandler(service, views), service: service}
}

// Create godoc
// @Summary Open a production request
// @Description Allocates the next P-YYMMDD-nnn id.
// @Tags Production Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateProductionRequestRequest true "Payload"
// @Success 201 {object} response.Envelope
// @Router /production-requests [post]
func (h *ProductionRequestHandler) Create(c *gin.Context) {
	var req dto.CreateProductionRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid production request payload"))
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
// @Summary Edit a production request
// @Tags Production Requests
// @Accept json
// @Produce json
// @Param id path string true "ID"
// @Param payload body dto.UpdateProductionRequestRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Success 204 "record no longer exists"
// @Router /production-requests/{id} [patch]
func (h *ProductionRequestHandler) Update(c *gin.Context) {
	var req dto.UpdateProductionRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid production request payload"))
		return
	}
	updated, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	respondTyped(c, updated, err)
}
