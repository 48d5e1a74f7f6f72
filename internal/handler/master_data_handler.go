package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/factory-ops-api/internal/dto"
	"github.com/noah-isme/factory-ops-api/internal/models"
	appErrors "github.com/noah-isme/factory-ops-api/pkg/errors"
	"github.com/noah-isme/factory-ops-api/pkg/response"
)

type masterDataService interface {
	Get(ctx context.Context) (*models.MasterData, error)
	Replace(ctx context.Context, list string, req dto.MasterDataListRequest, actor models.Actor) (*models.MasterData, error)
	Merge(ctx context.Context, list string, req dto.MasterDataListRequest, actor models.Actor) (*models.MasterData, error)
}

// MasterDataHandler exposes the reference lists.
type MasterDataHandler struct {
	service masterDataService
}

// NewMasterDataHandler builds a new handler.
func NewMasterDataHandler(service masterDataService) *MasterDataHandler {
	return &MasterDataHandler{service: service}
}

// Get godoc
// @Summary Get all master data lists
// @Tags Master Data
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /master-data [get]
func (h *MasterDataHandler) Get(c *gin.Context) {
	data, err := h.service.Get(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, data)
}

// Replace godoc
// @Summary Replace one master data list
// @Tags Master Data
// @Accept json
// @Produce json
// @Param list path string true "requesters, destinations, approvers or requestTypes"
// @Param payload body dto.MasterDataListRequest true "Values"
// @Success 200 {object} response.Envelope
// @Router /master-data/{list} [put]
func (h *MasterDataHandler) Replace(c *gin.Context) {
	h.write(c, h.service.Replace)
}

// Merge godoc
// @Summary Add values to one master data list
// @Tags Master Data
// @Accept json
// @Produce json
// @Param list path string true "requesters, destinations, approvers or requestTypes"
// @Param payload body dto.MasterDataListRequest true "Values"
// @Success 200 {object} response.Envelope
// @Router /master-data/{list} [patch]
func (h *MasterDataHandler) Merge(c *gin.Context) {
	h.write(c, h.service.Merge)
}

func (h *MasterDataHandler) write(c *gin.Context, fn func(context.Context, string, dto.MasterDataListRequest, models.Actor) (*models.MasterData, error)) {
	var req dto.MasterDataListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid master data payload"))
		return
	}
	data, err := fn(c.Request.Context(), c.Param("list"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, data)
}
