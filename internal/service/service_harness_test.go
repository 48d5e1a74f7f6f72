package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/factory-ops-api/internal/models"
	"github.com/noah-isme/factory-ops-api/internal/repository"
	"github.com/noah-isme/factory-ops-api/internal/workspace"
)

var fixedNow = time.Date(2024, 3, 7, 9, 30, 0, 0, time.UTC)

type harness struct {
	store         *repository.MemoryStore
	ws            *workspace.Workspace
	ledger        *Ledger
	allocator     *Allocator
	notifications *NotificationService
	jigs          *JigRequestService
	samples       *SampleRequestService
	productions   *ProductionRequestService
	inspections   *QualityInspectionService
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	enforce     bool
	maxAttempts int
}

func withEnforcedTransitions() harnessOption {
	return func(c *harnessConfig) { c.enforce = true }
}

func withMaxAttempts(n int) harnessOption {
	return func(c *harnessConfig) { c.maxAttempts = n }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{maxAttempts: repository.DefaultMaxAttempts}
	for _, opt := range opts {
		opt(&cfg)
	}

	store := repository.NewMemoryStore(repository.WithMemoryMaxAttempts(cfg.maxAttempts))
	ws := workspace.New(store)
	t.Cleanup(ws.Close)

	validate := validator.New()
	clock := func() time.Time { return fixedNow }
	ledger := NewLedger(NewTransitionPolicy(cfg.enforce), clock)

	allocator := NewAllocator(store, time.UTC, zap.NewNop())
	allocator.now = clock

	notifications := NewNotificationService(store, 24*time.Hour, validate, nil, zap.NewNop())
	notifications.now = clock

	records := func(kind models.RecordKind) *RecordService {
		return NewRecordService(kind, ws, ledger, notifications, validate, zap.NewNop())
	}

	return &harness{
		store:         store,
		ws:            ws,
		ledger:        ledger,
		allocator:     allocator,
		notifications: notifications,
		jigs:          NewJigRequestService(records(models.KindJigRequest), allocator),
		samples:       NewSampleRequestService(records(models.KindSampleRequest), allocator),
		productions:   NewProductionRequestService(records(models.KindProductionRequest), allocator),
		inspections:   NewQualityInspectionService(records(models.KindQualityInspection), store),
	}
}

func (h *harness) storedNotifications(t *testing.T) []models.Notification {
	t.Helper()
	all, err := repository.NewCollection[models.Notification](h.store, models.CollectionNotifications).List(context.Background(), repository.Query{})
	require.NoError(t, err)
	return all
}

func (h *harness) storedJig(t *testing.T, id string) *models.JigRequest {
	t.Helper()
	jig, found, err := repository.NewCollection[models.JigRequest](h.store, models.CollectionJigRequests).Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	return jig
}

var (
	operator = models.Actor{UserID: "u-1", Name: "Budi", Role: models.RoleWorker}
	manager  = models.Actor{UserID: "u-2", Name: "Sari", Role: models.RoleManager}
	admin    = models.Actor{UserID: "u-3", Name: "Admin", Role: models.RoleAdmin}
)
