package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/factory-ops-api/internal/dto"
	"github.com/noah-isme/factory-ops-api/internal/models"
	appErrors "github.com/noah-isme/factory-ops-api/pkg/errors"
	"github.com/noah-isme/factory-ops-api/pkg/response"
)

type notificationService interface {
	List(ctx context.Context, userID string, query dto.NotificationQuery) ([]models.NotificationView, int, error)
	Get(ctx context.Context, id, userID string) (*models.NotificationView, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string, req dto.MarkAllReadRequest) (int, error)
}

// NotificationHandler exposes the caller's notification feed.
type NotificationHandler struct {
	service notificationService
}

// NewNotificationHandler builds a new handler.
func NewNotificationHandler(service notificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List godoc
// @Summary List notifications from the active window
// @Tags Notifications
// @Produce json
// @Param type query string false "jig, quality, work or sample"
// @Param unread query bool false "Only unread notifications"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	var query dto.NotificationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid notification filter"))
		return
	}
	views, unread, err := h.service.List(c.Request.Context(), actorFromContext(c).UserID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, map[string]interface{}{"unread": unread, "total": len(views)})
}

// Get godoc
// @Summary Get a notification by id, regardless of age
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notifications/{id} [get]
func (h *NotificationHandler) Get(c *gin.Context) {
	view, err := h.service.Get(c.Request.Context(), c.Param("id"), actorFromContext(c).UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// MarkRead godoc
// @Summary Mark a notification read by the caller
// @Tags Notifications
// @Param id path string true "Notification ID"
// @Success 204
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.service.MarkRead(c.Request.Context(), c.Param("id"), actorFromContext(c).UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkAllRead godoc
// @Summary Mark every unread active notification read by the caller
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body dto.MarkAllReadRequest false "Optional type scope"
// @Success 200 {object} response.Envelope
// @Router /notifications/read-all [post]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	var req dto.MarkAllReadRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid payload"))
		return
	}
	changed, err := h.service.MarkAllRead(c.Request.Context(), actorFromContext(c).UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"marked": changed})
}
