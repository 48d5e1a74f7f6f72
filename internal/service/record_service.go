package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/factory-ops-api/internal/dto"
	"github.com/noah-isme/factory-ops-api/internal/models"
	"github.com/noah-isme/factory-ops-api/internal/workspace"
	appErrors "github.com/noah-isme/factory-ops-api/pkg/errors"
)

// RecordService implements the operations shared by every status-bearing
// record kind: reads, status changes, comments and deletion. Changes go
// through the workspace so they are applied optimistically and reverted on
// a failed write.
type RecordService struct {
	kind      models.RecordKind
	ws        *workspace.Workspace
	ledger    *Ledger
	notifier  Notifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRecordService constructs the shared service for kind.
func NewRecordService(kind models.RecordKind, ws *workspace.Workspace, ledger *Ledger, notifier Notifier, validate *validator.Validate, logger *zap.Logger) *RecordService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ledger == nil {
		ledger = NewLedger(nil, nil)
	}
	return &RecordService{kind: kind, ws: ws, ledger: ledger, notifier: notifier, validator: validate, logger: logger.With(zap.String("kind", string(kind)))}
}

// Kind returns the record kind served.
func (s *RecordService) Kind() models.RecordKind { return s.kind }

// Get returns one record.
func (s *RecordService) Get(ctx context.Context, id string) (models.Record, error) {
	rec, found, err := s.ws.Get(ctx, s.kind, id)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, fmt.Sprintf("failed to load %s", s.label()))
	}
	if !found {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s not found", s.label()))
	}
	return rec, nil
}

// List returns records newest first, optionally filtered by status.
func (s *RecordService) List(ctx context.Context, query dto.RecordQuery) ([]models.Record, error) {
	status := strings.ToUpper(strings.TrimSpace(query.Status))
	if status != "" {
		probe, _ := models.NewRecord(s.kind)
		if err := probe.SetStatus(status); err != nil {
			return nil, appErrors.WrapAs(appErrors.ErrValidation, err, err.Error())
		}
	}
	records, err := s.ws.List(ctx, s.kind, status)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, fmt.Sprintf("failed to list %s", s.label()))
	}
	return records, nil
}

// ChangeStatus appends a transition. A record that no longer exists yields (nil, nil).
func (s *RecordService) ChangeStatus(ctx context.Context, id string, req dto.ChangeStatusRequest, actor models.Actor) (models.Record, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid status change payload")
	}
	change, err := s.ledger.Transition(req.Status, actor, strings.TrimSpace(req.Reason))
	if err != nil {
		return nil, err
	}
	rec, err := s.apply(ctx, id, change)
	if err != nil || rec == nil {
		return nil, err
	}
	s.announce(ctx, rec, "%s %s status changed to %s by %s", s.kind.Label(), rec.RecordID(), rec.CurrentStatus(), actorName(actor))
	return rec, nil
}

// AddComment appends a comment to the record's thread.
func (s *RecordService) AddComment(ctx context.Context, id string, req dto.AddCommentRequest, actor models.Actor) (models.Record, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid comment payload")
	}
	_, change, err := s.ledger.Comment(actor, req.Text)
	if err != nil {
		return nil, err
	}
	rec, err := s.apply(ctx, id, change)
	if err != nil || rec == nil {
		return nil, err
	}
	s.announce(ctx, rec, "%s commented on %s %s", actorName(actor), strings.ToLower(s.kind.Label()), rec.RecordID())
	return rec, nil
}

// MarkCommentsRead adds the actor to readBy of every comment on the record.
func (s *RecordService) MarkCommentsRead(ctx context.Context, id string, actor models.Actor) (models.Record, error) {
	change, err := s.ledger.MarkCommentsRead(actor.UserID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, id, change)
}

// Delete removes the record. It reports false when it did not exist.
func (s *RecordService) Delete(ctx context.Context, id string, actor models.Actor) (bool, error) {
	removed, err := s.ws.Remove(ctx, s.kind, id)
	if err != nil {
		return false, appErrors.WrapAs(appErrors.ErrWriteFailed, err, "")
	}
	if removed {
		s.logger.Info("record deleted", zap.String("id", id), zap.String("user_id", actor.UserID))
		s.notify(ctx, id, fmt.Sprintf("%s %s was deleted by %s", s.kind.Label(), id, actorName(actor)))
	}
	return removed, nil
}

// edit applies a field change and announces it.
func (s *RecordService) edit(ctx context.Context, id string, change RecordChange, actor models.Actor) (models.Record, error) {
	if actorName(actor) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "actor is required")
	}
	rec, err := s.apply(ctx, id, change)
	if err != nil || rec == nil {
		return nil, err
	}
	s.announce(ctx, rec, "%s %s was updated by %s", s.kind.Label(), rec.RecordID(), actorName(actor))
	return rec, nil
}

func (s *RecordService) apply(ctx context.Context, id string, change RecordChange) (models.Record, error) {
	rec, err := s.ws.Mutate(ctx, s.kind, id, workspace.MutateFunc(change))
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.WrapAs(appErrors.ErrWriteFailed, err, "")
	}
	if rec == nil {
		s.logger.Debug("change skipped for missing record", zap.String("id", id))
	}
	return rec, nil
}

// created registers a freshly stored record with the workspace and announces it.
func (s *RecordService) created(ctx context.Context, rec models.Record, message string) {
	s.ws.Insert(rec)
	s.notify(ctx, rec.RecordID(), message)
}

func (s *RecordService) announce(ctx context.Context, rec models.Record, format string, args ...interface{}) {
	s.notify(ctx, rec.RecordID(), fmt.Sprintf(format, args...))
}

func (s *RecordService) notify(ctx context.Context, id, message string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, s.kind.NotificationType(), message, id)
}

func (s *RecordService) label() string {
	return strings.ToLower(s.kind.Label())
}
