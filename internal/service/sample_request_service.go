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

// SampleRequestService handles sample request use-cases.
type SampleRequestService struct {
	*RecordService
	allocator *Allocator
}

// NewSampleRequestService constructs the sample request service.
func NewSampleRequestService(records *RecordService, allocator *Allocator) *SampleRequestService {
	return &SampleRequestService{RecordService: records, allocator: allocator}
}

// Create allocates the next S-YYYYMMDD-nnn id and stores the request.
func (s *SampleRequestService) Create(ctx context.Context, req dto.CreateSampleRequestRequest, actor models.Actor) (*models.SampleRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid sample request payload")
	}
	if actorName(actor) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "actor is required")
	}
	rec, err := s.allocator.Allocate(ctx, SampleRequestSequence, func(id string, at time.Time) (models.Record, error) {
		sample := &models.SampleRequest{
			ID:          id,
			ProductName: strings.TrimSpace(req.ProductName),
			Customer:    strings.TrimSpace(req.Customer),
			Requester:   strings.TrimSpace(req.Requester),
			Quantity:    req.Quantity,
			DueDate:     req.DueDate,
			Description: req.Description,
			Status:      models.SampleStatusRequest,
			CreatedBy:   actorName(actor),
			CreatedAt:   at,
			Tracked:     models.Tracked{History: []models.HistoryEntry{}, Comments: []models.Comment{}},
		}
		s.ledger.Seed(sample, actor)
		return sample, nil
	})
	if err != nil {
		return nil, err
	}
	sample := rec.(*models.SampleRequest)
	s.created(ctx, sample, fmt.Sprintf("New sample request %s: %s for %s", sample.ID, sample.ProductName, sample.Customer))
	return sample, nil
}

// Update edits the free fields of a sample request.
func (s *SampleRequestService) Update(ctx context.Context, id string, req dto.UpdateSampleRequestRequest, actor models.Actor) (*models.SampleRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid sample request payload")
	}
	rec, err := s.edit(ctx, id, func(rec models.Record) error {
		sample := rec.(*models.SampleRequest)
		assignString(&sample.ProductName, req.ProductName)
		assignString(&sample.Customer, req.Customer)
		assignString(&sample.Requester, req.Requester)
		assignString(&sample.DueDate, req.DueDate)
		assignString(&sample.Description, req.Description)
		if req.Quantity != nil {
			sample.Quantity = *req.Quantity
		}
		return nil
	}, actor)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.(*models.SampleRequest), nil
}
