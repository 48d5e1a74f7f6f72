package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/factory-ops-api/internal/dto"
	"github.com/noah-isme/factory-ops-api/internal/models"
	"github.com/noah-isme/factory-ops-api/internal/repository"
	appErrors "github.com/noah-isme/factory-ops-api/pkg/errors"
)

type memoryCacheRepo struct {
	values      map[string]interface{}
	gets        int
	invalidated []string
}

func (r *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	r.gets++
	value, ok := r.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*models.MasterData)) = *(value.(*models.MasterData))
	return nil
}

func (r *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	data := *(value.(*models.MasterData))
	r.values[key] = &data
	return nil
}

func (r *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	r.invalidated = append(r.invalidated, pattern)
	r.values = map[string]interface{}{}
	return nil
}

func TestMasterDataGetReturnsEmptyLists(t *testing.T) {
	svc := NewMasterDataService(repository.NewMemoryStore(), nil, nil, nil)

	data, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{}, data.Requesters)
	assert.Equal(t, []string{}, data.RequestTypes)
}

func TestMasterDataReplaceAndMerge(t *testing.T) {
	cacheRepo := &memoryCacheRepo{values: map[string]interface{}{}}
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	svc := NewMasterDataService(repository.NewMemoryStore(), cache, nil, nil)
	ctx := context.Background()

	_, err := svc.Replace(ctx, "destinations", dto.MasterDataListRequest{Values: []string{" Line 1", "Line 2", "", "Line 1"}}, admin)
	require.NoError(t, err)

	data, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Line 1", "Line 2"}, data.Destinations)
	assert.Contains(t, cacheRepo.values, "factoryops:masterdata:lists")

	merged, err := svc.Merge(ctx, "destinations", dto.MasterDataListRequest{Values: []string{"Line 3", "Line 2"}}, admin)
	require.NoError(t, err)
	assert.Equal(t, []string{"Line 1", "Line 2", "Line 3"}, merged.Destinations)
	assert.Equal(t, "Admin", merged.UpdatedBy)
	assert.Equal(t, []string{"factoryops:masterdata:*", "factoryops:masterdata:*"}, cacheRepo.invalidated)

	data, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Line 1", "Line 2", "Line 3"}, data.Destinations)
	assert.Equal(t, []string{}, data.Approvers)
}

func TestMasterDataWritesRequireAdmin(t *testing.T) {
	svc := NewMasterDataService(repository.NewMemoryStore(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Replace(ctx, "approvers", dto.MasterDataListRequest{Values: []string{"Sari"}}, manager)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Merge(ctx, "colours", dto.MasterDataListRequest{Values: []string{"red"}}, admin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
