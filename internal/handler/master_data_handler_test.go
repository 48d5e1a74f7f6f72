package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/factory-ops-api/internal/dto"
	"github.com/noah-isme/factory-ops-api/internal/models"
	"github.com/noah-isme/factory-ops-api/internal/repository"
	"github.com/noah-isme/factory-ops-api/internal/service"
)

type masterDataServiceMock struct {
	lastList string
	lastReq  dto.MasterDataListRequest
	merged   bool
}

func (m *masterDataServiceMock) Get(ctx context.Context) (*models.MasterData, error) {
	return &models.MasterData{Requesters: []string{"Line 1"}}, nil
}

func (m *masterDataServiceMock) Replace(ctx context.Context, list string, req dto.MasterDataListRequest, actor models.Actor) (*models.MasterData, error) {
	m.lastList, m.lastReq = list, req
	return &models.MasterData{}, nil
}

func (m *masterDataServiceMock) Merge(ctx context.Context, list string, req dto.MasterDataListRequest, actor models.Actor) (*models.MasterData, error) {
	m.lastList, m.lastReq, m.merged = list, req, true
	return &models.MasterData{}, nil
}

func TestMasterDataHandlerMerge(t *testing.T) {
	mockSvc := &masterDataServiceMock{}
	handler := NewMasterDataHandler(mockSvc)

	c, w := newTestContext(http.MethodPatch, "/master-data/approvers", `{"values":["Sari"]}`, gin.Params{{Key: "list", Value: "approvers"}})
	handler.Merge(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.merged)
	assert.Equal(t, "approvers", mockSvc.lastList)
	assert.Equal(t, []string{"Sari"}, mockSvc.lastReq.Values)
}

func TestMasterDataHandlerReplaceForbiddenForWorkers(t *testing.T) {
	svc := service.NewMasterDataService(repository.NewMemoryStore(), nil, nil, nil)
	handler := NewMasterDataHandler(svc)

	c, w := newTestContext(http.MethodPut, "/master-data/approvers", `{"values":["Sari"]}`, gin.Params{{Key: "list", Value: "approvers"}})
	handler.Replace(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
