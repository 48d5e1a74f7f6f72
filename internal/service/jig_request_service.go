package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/factory-ops-api/internal/dto"
	"github.com/noah-isme/factory-ops-api/internal/models"
	appErrors "github.com/noah-isme/factory-ops-api/pkg/errors"
)

// JigRequestService handles jig request use-cases.
type JigRequestService struct {
	*RecordService
	allocator *Allocator
}

// NewJigRequestService constructs the jig request service.
func NewJigRequestService(records *RecordService, allocator *Allocator) *JigRequestService {
	return &JigRequestService{RecordService: records, allocator: allocator}
}

// Create allocates the next T{n} id and stores the request in REQUEST status.
func (s *JigRequestService) Create(ctx context.Context, req dto.CreateJigRequestRequest, actor models.Actor) (*models.JigRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid jig request payload")
	}
	if actorName(actor) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "actor is required")
	}
	rec, err := s.allocator.Allocate(ctx, JigRequestSequence, func(id string, at time.Time) (models.Record, error) {
		jig := &models.JigRequest{
			ID:               id,
			Title:            strings.TrimSpace(req.Title),
			JigType:          strings.TrimSpace(req.JigType),
			Requester:        strings.TrimSpace(req.Requester),
			Destination:      strings.TrimSpace(req.Destination),
			Approver:         strings.TrimSpace(req.Approver),
			Quantity:         req.Quantity,
			ReceivedQuantity: 0,
			DueDate:          req.DueDate,
			Description:      req.Description,
			Status:           models.JigStatusRequest,
			CreatedBy:        actorName(actor),
			CreatedAt:        at,
			Tracked:          models.Tracked{History: []models.HistoryEntry{}, Comments: []models.Comment{}},
		}
		s.ledger.Seed(jig, actor)
		return jig, nil
	})
	if err != nil {
		return nil, err
	}
	jig := rec.(*models.JigRequest)
	s.created(ctx, jig, fmt.Sprintf("New jig request %s (%s) from %s", jig.ID, jig.Title, jig.Requester))
	return jig, nil
}

// Update edits the free fields of a jig request.
func (s *JigRequestService) Update(ctx context.Context, id string, req dto.UpdateJigRequestRequest, actor models.Actor) (*models.JigRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid jig request payload")
	}
	rec, err := s.edit(ctx, id, func(rec models.Record) error {
		jig := rec.(*models.JigRequest)
		assignString(&jig.Title, req.Title)
		assignString(&jig.JigType, req.JigType)
		assignString(&jig.Requester, req.Requester)
		assignString(&jig.Destination, req.Destination)
		assignString(&jig.Approver, req.Approver)
		assignString(&jig.DueDate, req.DueDate)
		assignString(&jig.Description, req.Description)
		if req.Quantity != nil {
			jig.Quantity = *req.Quantity
		}
		return nil
	}, actor)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.(*models.JigRequest), nil
}

// Receive books a quantity receipt (or withdrawal for a negative delta) and
// derives the status from the running total.
func (s *JigRequestService) Receive(ctx context.Context, id string, req dto.ReceiveQuantityRequest, actor models.Actor) (*models.JigRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid receipt payload")
	}
	change, err := s.ledger.Receive(req.Delta, actor)
	if err != nil {
		return nil, err
	}
	rec, err := s.apply(ctx, id, change)
	if err != nil || rec == nil {
		return nil, err
	}
	jig := rec.(*models.JigRequest)
	verb := "received"
	amount := req.Delta
	if amount < 0 {
		verb, amount = "withdrew", -amount
	}
	message := fmt.Sprintf("%s %s %d for jig request %s (%d/%d)", actorName(actor), verb, amount, jig.ID, jig.ReceivedQuantity, jig.Quantity)
	if jig.Status == models.JigStatusCompleted {
		message += ", completed"
	}
	s.notify(ctx, jig.ID, message)
	return jig, nil
}

func assignString(dst *string, value *string) {
	if value != nil {
		*dst = strings.TrimSpace(*value)
	}
}
