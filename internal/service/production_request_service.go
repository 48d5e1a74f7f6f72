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

// ProductionRequestService handles production request use-cases.
type ProductionRequestService struct {
	*RecordService
	allocator *Allocator
}

// NewProductionRequestService constructs the production request service.
func NewProductionRequestService(records *RecordService, allocator *Allocator) *ProductionRequestService {
	return &ProductionRequestService{RecordService: records, allocator: allocator}
}

// Create allocates the next P-YYMMDD-nnn id and stores the request.
func (s *ProductionRequestService) Create(ctx context.Context, req dto.CreateProductionRequestRequest, actor models.Actor) (*models.ProductionRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid production request payload")
	}
	if actorName(actor) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "actor is required")
	}
	rec, err := s.allocator.Allocate(ctx, ProductionRequestSequence, func(id string, at time.Time) (models.Record, error) {
		production := &models.ProductionRequest{
			ID:             id,
			ProductName:    strings.TrimSpace(req.ProductName),
			ProductionLine: strings.TrimSpace(req.ProductionLine),
			Quantity:       req.Quantity,
			Requester:      strings.TrimSpace(req.Requester),
			ScheduledDate:  req.ScheduledDate,
			Description:    req.Description,
			Status:         models.ProductionStatusRequest,
			CreatedBy:      actorName(actor),
			CreatedAt:      at,
			Tracked:        models.Tracked{History: []models.HistoryEntry{}, Comments: []models.Comment{}},
		}
		s.ledger.Seed(production, actor)
		return production, nil
	})
	if err != nil {
		return nil, err
	}
	production := rec.(*models.ProductionRequest)
	s.created(ctx, production, fmt.Sprintf("New production request %s: %d x %s on %s", production.ID, production.Quantity, production.ProductName, production.ProductionLine))
	return production, nil
}

// Update edits the free fields of a production request.
func (s *ProductionRequestService) Update(ctx context.Context, id string, req dto.UpdateProductionRequestRequest, actor models.Actor) (*models.ProductionRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid production request payload")
	}
	rec, err := s.edit(ctx, id, func(rec models.Record) error {
		production := rec.(*models.ProductionRequest)
		assignString(&production.ProductName, req.ProductName)
		assignString(&production.ProductionLine, req.ProductionLine)
		assignString(&production.Requester, req.Requester)
		assignString(&production.ScheduledDate, req.ScheduledDate)
		assignString(&production.Description, req.Description)
		if req.Quantity != nil {
			production.Quantity = *req.Quantity
		}
		return nil
	}, actor)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.(*models.ProductionRequest), nil
}
