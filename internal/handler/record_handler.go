package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/factory-ops-api/internal/dto"
	"github.com/noah-isme/factory-ops-api/internal/models"
	"github.com/noah-isme/factory-ops-api/internal/workspace"
	appErrors "github.com/noah-isme/factory-ops-api/pkg/errors"
	"github.com/noah-isme/factory-ops-api/pkg/response"
)

type recordService interface {
	Kind() models.RecordKind
	Get(ctx context.Context, id string) (models.Record, error)
	List(ctx context.Context, query dto.RecordQuery) ([]models.Record, error)
	ChangeStatus(ctx context.Context, id string, req dto.ChangeStatusRequest, actor models.Actor) (models.Record, error)
	AddComment(ctx context.Context, id string, req dto.AddCommentRequest, actor models.Actor) (models.Record, error)
	MarkCommentsRead(ctx context.Context, id string, actor models.Actor) (models.Record, error)
	Delete(ctx context.Context, id string, actor models.Actor) (bool, error)
}

type detailViewer interface {
	OpenDetail(ctx context.Context, kind models.RecordKind, id string) (*workspace.DetailView, bool, error)
}

// RecordHandler serves the endpoints every record kind shares. The typed
// handlers embed it and add create, edit and kind specific actions.
type RecordHandler struct {
	service recordService
	views   detailViewer
}

// NewRecordHandler builds the shared handler. views may be nil, which
// disables the event stream.
func NewRecordHandler(service recordService, views detailViewer) *RecordHandler {
	return &RecordHandler{service: service, views: views}
}

// List godoc
// @Summary List records newest first
// @Tags Records
// @Produce json
// @Param collection path string true "jig-requests, sample-requests, production-requests or quality-inspections"
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Router /{collection} [get]
func (h *RecordHandler) List(c *gin.Context) {
	var query dto.RecordQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid query"))
		return
	}
	records, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, map[string]interface{}{"total": len(records)})
}

// Get godoc
// @Summary Get a record
// @Tags Records
// @Produce json
// @Param collection path string true "jig-requests, sample-requests, production-requests or quality-inspections"
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /{collection}/{id} [get]
func (h *RecordHandler) Get(c *gin.Context) {
	rec, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec)
}

// ChangeStatus godoc
// @Summary Change the status of a record
// @Tags Records
// @Accept json
// @Produce json
// @Param collection path string true "jig-requests, sample-requests, production-requests or quality-inspections"
// @Param id path string true "Record ID"
// @Param payload body dto.ChangeStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Success 204 "record no longer exists"
// @Failure 409 {object} response.Envelope
// @Router /{collection}/{id}/status [post]
func (h *RecordHandler) ChangeStatus(c *gin.Context) {
	var req dto.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid status payload"))
		return
	}
	rec, err := h.service.ChangeStatus(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	respondRecord(c, rec, err)
}

// AddComment godoc
// @Summary Comment on a record
// @Tags Records
// @Accept json
// @Produce json
// @Param collection path string true "jig-requests, sample-requests, production-requests or quality-inspections"
// @Param id path string true "Record ID"
// @Param payload body dto.AddCommentRequest true "Comment payload"
// @Success 200 {object} response.Envelope
// @Router /{collection}/{id}/comments [post]
func (h *RecordHandler) AddComment(c *gin.Context) {
	var req dto.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid comment payload"))
		return
	}
	rec, err := h.service.AddComment(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	respondRecord(c, rec, err)
}

// MarkCommentsRead godoc
// @Summary Mark every comment on a record read by the caller
// @Tags Records
// @Produce json
// @Param collection path string true "jig-requests, sample-requests, production-requests or quality-inspections"
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /{collection}/{id}/comments/read [post]
func (h *RecordHandler) MarkCommentsRead(c *gin.Context) {
	rec, err := h.service.MarkCommentsRead(c.Request.Context(), c.Param("id"), actorFromContext(c))
	respondRecord(c, rec, err)
}

// Delete godoc
// @Summary Delete a record
// @Tags Records
// @Param collection path string true "jig-requests, sample-requests, production-requests or quality-inspections"
// @Param id path string true "Record ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /{collection}/{id} [delete]
func (h *RecordHandler) Delete(c *gin.Context) {
	removed, err := h.service.Delete(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !removed {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "record not found"))
		return
	}
	response.NoContent(c)
}

// Events streams the record as server-sent events until the client leaves.
// A deleted record ends the stream with a "deleted" event.
func (h *RecordHandler) Events(c *gin.Context) {
	if h.views == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrServiceUnavailable, "live updates are not enabled"))
		return
	}
	ctx := c.Request.Context()
	view, found, err := h.views.OpenDetail(ctx, h.service.Kind(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer view.Close()
	if !found {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "record not found"))
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("snapshot", view.Current())
	c.Writer.Flush()

	updates := view.Updates()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case rec, ok := <-updates:
			if !ok {
				return false
			}
			if rec == nil {
				c.SSEvent("deleted", gin.H{"id": c.Param("id")})
				return false
			}
			c.SSEvent("snapshot", rec)
			return true
		}
	})
}

// respondTyped converts a concrete record pointer for respondRecord. A nil
// pointer must become a nil interface, not a typed nil, to produce the 204.
func respondTyped[T any, P interface {
	*T
	models.Record
}](c *gin.Context, rec P, err error) {
	if rec == nil {
		respondRecord(c, nil, err)
		return
	}
	respondRecord(c, rec, err)
}

// respondRecord writes the changed record, or 204 when the record no longer
// existed and the change was skipped.
func respondRecord(c *gin.Context, rec models.Record, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	if rec == nil {
		response.NoContent(c)
		return
	}
	response.JSON(c, http.StatusOK, rec)
}
