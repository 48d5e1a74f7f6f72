package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/factory-ops-api/internal/dto"
	"github.com/noah-isme/factory-ops-api/internal/models"
	"github.com/noah-isme/factory-ops-api/internal/repository"
	appErrors "github.com/noah-isme/factory-ops-api/pkg/errors"
)

// QualityInspectionService handles quality inspection use-cases. Inspections
// use store generated ids.
type QualityInspectionService struct {
	*RecordService
	store repository.Store
}

// NewQualityInspectionService constructs the quality inspection service.
func NewQualityInspectionService(records *RecordService, store repository.Store) *QualityInspectionService {
	return &QualityInspectionService{RecordService: records, store: store}
}

// Create stores a new inspection in PENDING status.
func (s *QualityInspectionService) Create(ctx context.Context, req dto.CreateQualityInspectionRequest, actor models.Actor) (*models.QualityInspection, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid quality inspection payload")
	}
	if actorName(actor) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "actor is required")
	}
	inspection := &models.QualityInspection{
		ProductName: strings.TrimSpace(req.ProductName),
		LotNumber:   strings.TrimSpace(req.LotNumber),
		Inspector:   strings.TrimSpace(req.Inspector),
		SampleSize:  req.SampleSize,
		DefectCount: req.DefectCount,
		InspectedAt: req.InspectedAt,
		Notes:       req.Notes,
		Status:      models.InspectionStatusPending,
		CreatedBy:   actorName(actor),
		CreatedAt:   s.ledger.Now(),
		Tracked:     models.Tracked{History: []models.HistoryEntry{}, Comments: []models.Comment{}},
	}
	s.ledger.Seed(inspection, actor)

	id, err := s.store.Add(ctx, models.CollectionQualityInspections, inspection)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrServiceUnavailable, err, "failed to create quality inspection")
	}
	inspection.ID = id
	s.created(ctx, inspection, fmt.Sprintf("New quality inspection for %s lot %s by %s", inspection.ProductName, inspection.LotNumber, inspection.Inspector))
	return inspection, nil
}

// Update edits the free fields of an inspection.
func (s *QualityInspectionService) Update(ctx context.Context, id string, req dto.UpdateQualityInspectionRequest, actor models.Actor) (*models.QualityInspection, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid quality inspection payload")
	}
	rec, err := s.edit(ctx, id, func(rec models.Record) error {
		inspection := rec.(*models.QualityInspection)
		assignString(&inspection.ProductName, req.ProductName)
		assignString(&inspection.LotNumber, req.LotNumber)
		assignString(&inspection.Inspector, req.Inspector)
		assignString(&inspection.InspectedAt, req.InspectedAt)
		assignString(&inspection.Notes, req.Notes)
		if req.SampleSize != nil {
			inspection.SampleSize = *req.SampleSize
		}
		if req.DefectCount != nil {
			inspection.DefectCount = *req.DefectCount
		}
		if inspection.DefectCount > inspection.SampleSize {
			return appErrors.Clone(appErrors.ErrValidation, "defect count cannot exceed sample size")
		}
		return nil
	}, actor)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.(*models.QualityInspection), nil
}
