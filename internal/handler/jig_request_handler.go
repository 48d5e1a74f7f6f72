package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/factory-ops-api/internal/dto"
	"github.com/noah-isme/factory-ops-api/internal/models"
	appErrors "github.com/noah-isme/factory-ops-api/pkg/errors"
	"github.com/noah-isme/factory-ops-api/pkg/response"
)

type jigRequestService interface {
	recordService
	Create(ctx context.Context, req dto.CreateJigRequestRequest, actor models.Actor) (*models.JigRequest, error)
	Update(ctx context.Context, id string, req dto.UpdateJigRequestRequest, actor models.Actor) (*models.JigRequest, error)
	Receive(ctx context.Context, id string, req dto.ReceiveQuantityRequest, actor models.Actor) (*models.JigRequest, error)
}

// JigRequestHandler exposes jig request endpoints.
type JigRequestHandler struct {
	*RecordHandler
	service jigRequestService
}

// NewJigRequestHandler builds a new handler.
func NewJigRequestHandler(service jigRequestService, views detailViewer) *JigRequestHandler {
	return &JigRequestHandler{RecordHandler: NewRecordHandler(service, views), service: service}
}

// Create godoc
// @Summary Open a jig request
// @Description Allocates the next T{n} id.
// @Tags Jig Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateJigRequestRequest true "Jig request payload"
// @Success 201 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /jig-requests [post]
func (h *JigRequestHandler) Create(c *gin.Context) {
	var req dto.CreateJigRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid jig request payload"))
		return
	}
	jig, err := h.service.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, jig)
}

// Update godoc
// @Summary Edit a jig request
// @Tags Jig Requests
// @Accept json
// @Produce json
// @Param id path string true "Jig request ID"
// @Param payload body dto.UpdateJigRequestRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Success 204 "record no longer exists"
// @Router /jig-requests/{id} [patch]
func (h *JigRequestHandler) Update(c *gin.Context) {
	var req dto.UpdateJigRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid jig request payload"))
		return
	}
	jig, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	respondTyped(c, jig, err)
}

// Receive godoc
// @Summary Book received (or withdrawn) jig quantity
// @Tags Jig Requests
// @Accept json
// @Produce json
// @Param id path string true "Jig request ID"
// @Param payload body dto.ReceiveQuantityRequest true "Quantity delta"
// @Success 200 {object} response.Envelope
// @Success 204 "record no longer exists"
// @Router /jig-requests/{id}/receive [post]
func (h *JigRequestHandler) Receive(c *gin.Context) {
	var req dto.ReceiveQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid receipt payload"))
		return
	}
	jig, err := h.service.Receive(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	respondTyped(c, jig, err)
}
