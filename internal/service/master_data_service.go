package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/factory-ops-api/internal/dto"
	"github.com/noah-isme/factory-ops-api/internal/models"
	"github.com/noah-isme/factory-ops-api/internal/repository"
	appErrors "github.com/noah-isme/factory-ops-api/pkg/errors"
)

const (
	masterDataCacheKey     = "masterdata:lists"
	masterDataCachePattern = "masterdata:*"
)

// MasterDataService manages the reference lists offered as form choices.
type MasterDataService struct {
	lists     *repository.Collection[models.MasterData]
	store     repository.Store
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewMasterDataService constructs the master data service. cache may be nil.
func NewMasterDataService(store repository.Store, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *MasterDataService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MasterDataService{
		lists:     repository.NewCollection[models.MasterData](store, models.CollectionMasterData),
		store:     store,
		cache:     cache,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Get returns all lists. Missing lists are returned empty.
func (s *MasterDataService) Get(ctx context.Context) (*models.MasterData, error) {
	var cached models.MasterData
	if s.cache.Get(ctx, masterDataCacheKey, &cached) {
		return normalizeMasterData(&cached), nil
	}
	data, found, err := s.lists.Get(ctx, models.MasterDataDocumentID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load master data")
	}
	if !found {
		data = &models.MasterData{}
	}
	data = normalizeMasterData(data)
	s.cache.Set(ctx, masterDataCacheKey, data, 0)
	return data, nil
}

// Replace overwrites one list with the normalized values.
func (s *MasterDataService) Replace(ctx context.Context, list string, req dto.MasterDataListRequest, actor models.Actor) (*models.MasterData, error) {
	return s.write(ctx, list, req, actor, func(_, values []string) []string {
		return models.NormalizeList(values)
	})
}

// Merge adds values missing from one list, keeping the existing order.
func (s *MasterDataService) Merge(ctx context.Context, list string, req dto.MasterDataListRequest, actor models.Actor) (*models.MasterData, error) {
	return s.write(ctx, list, req, actor, models.MergeList)
}

func (s *MasterDataService) write(ctx context.Context, list string, req dto.MasterDataListRequest, actor models.Actor, combine func(existing, values []string) []string) (*models.MasterData, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can edit master data")
	}
	name := models.MasterDataList(list)
	if !name.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown master data list %q", list))
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid master data payload")
	}

	var updated *models.MasterData
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx repository.Tx) error {
		data, found, err := repository.GetTx[models.MasterData](ctx, tx, models.CollectionMasterData, models.MasterDataDocumentID)
		if err != nil {
			return err
		}
		if !found {
			data = &models.MasterData{}
		}
		data.SetList(name, combine(data.List(name), req.Values))
		data.UpdatedBy = actorName(actor)
		data.UpdatedAt = s.now()
		if err := tx.Set(ctx, models.CollectionMasterData, models.MasterDataDocumentID, data); err != nil {
			return err
		}
		updated = data
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrTxAborted) {
			return nil, appErrors.WrapAs(appErrors.ErrContention, err, "master data is being edited concurrently, retry later")
		}
		return nil, appErrors.WrapAs(appErrors.ErrWriteFailed, err, "failed to save master data")
	}
	s.cache.Invalidate(ctx, masterDataCachePattern)
	s.logger.Info("master data updated", zap.String("list", list), zap.Int("size", len(updated.List(name))), zap.String("user_id", actor.UserID))
	return normalizeMasterData(updated), nil
}

func normalizeMasterData(data *models.MasterData) *models.MasterData {
	for _, name := range []models.MasterDataList{models.MasterDataRequesters, models.MasterDataDestinations, models.MasterDataApprovers, models.MasterDataRequestTypes} {
		if data.List(name) == nil {
			data.SetList(name, []string{})
		}
	}
	return data
}
