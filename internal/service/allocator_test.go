package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/factory-ops-api/internal/dto"
	"github.com/noah-isme/factory-ops-api/internal/models"
	"github.com/noah-isme/factory-ops-api/internal/repository"
	appErrors "github.com/noah-isme/factory-ops-api/pkg/errors"
)

func TestCreateJigRequestContinuesCounter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Set(ctx, models.CollectionCounters, models.CounterJigRequests, models.Counter{Count: 19}))

	jig, err := h.jigs.Create(ctx, dto.CreateJigRequestRequest{Title: "Drill fixture", Requester: "Line 2", Quantity: 4}, operator)
	require.NoError(t, err)

	assert.Equal(t, "T20", jig.ID)
	assert.Equal(t, models.JigStatusRequest, jig.Status)
	require.Len(t, jig.History, 1)
	assert.Equal(t, models.HistoryEntry{Status: "REQUEST", Date: fixedNow, User: "Budi"}, jig.History[0])

	count, err := h.allocator.Peek(ctx, JigRequestSequence)
	require.NoError(t, err)
	assert.Equal(t, 20, count)
	stored := h.storedJig(t, "T20")
	assert.Equal(t, "Drill fixture", stored.Title)
}

func TestDatedSequencesFormatInLocation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sample, err := h.samples.Create(ctx, dto.CreateSampleRequestRequest{ProductName: "Bracket", Customer: "ACME", Requester: "QA", Quantity: 3}, operator)
	require.NoError(t, err)
	assert.Equal(t, "S-20240307-001", sample.ID)

	production, err := h.productions.Create(ctx, dto.CreateProductionRequestRequest{ProductName: "Bracket", ProductionLine: "L1", Requester: "PPIC", Quantity: 500}, operator)
	require.NoError(t, err)
	assert.Equal(t, "P-240307-001", production.ID)

	jakarta := time.FixedZone("WIB", 7*3600)
	h.allocator.location = jakarta
	h.allocator.now = func() time.Time { return time.Date(2024, 3, 7, 20, 0, 0, 0, time.UTC) }
	second, err := h.samples.Create(ctx, dto.CreateSampleRequestRequest{ProductName: "Bracket", Customer: "ACME", Requester: "QA", Quantity: 3}, operator)
	require.NoError(t, err)
	assert.Equal(t, "S-20240308-002", second.ID)
	assert.Equal(t, time.UTC, second.CreatedAt.Location())
}

func TestConcurrentAllocationsAreUnique(t *testing.T) {
	const workers = 12
	h := newHarness(t, withMaxAttempts(workers*4))
	ctx := context.Background()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]struct{}, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			jig, err := h.jigs.Create(ctx, dto.CreateJigRequestRequest{Title: "Gauge", Requester: "Line 1", Quantity: 1}, operator)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[jig.ID] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, workers)
	for i := 1; i <= workers; i++ {
		assert.Contains(t, ids, JigRequestSequence.Format(i, fixedNow))
	}
	count, err := h.allocator.Peek(ctx, JigRequestSequence)
	require.NoError(t, err)
	assert.Equal(t, workers, count)
}

func TestAllocateRejectsExistingRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Set(ctx, models.CollectionJigRequests, "T1", models.JigRequest{ID: "T1"}))

	_, err := h.jigs.Create(ctx, dto.CreateJigRequestRequest{Title: "Gauge", Requester: "Line 1", Quantity: 1}, operator)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	count, err := h.allocator.Peek(ctx, JigRequestSequence)
	require.NoError(t, err)
	assert.Zero(t, count, "counter must not advance without the record")
}

type abortingStore struct {
	*repository.MemoryStore
}

func (s abortingStore) RunTransaction(context.Context, func(ctx context.Context, tx repository.Tx) error) error {
	return repository.ErrTxAborted
}

func TestAllocateSurfacesContention(t *testing.T) {
	allocator := NewAllocator(abortingStore{repository.NewMemoryStore()}, time.UTC, nil)

	_, err := allocator.Allocate(context.Background(), JigRequestSequence, func(id string, at time.Time) (models.Record, error) {
		return &models.JigRequest{ID: id}, nil
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrContention.Code, appErr.Code)
	assert.Equal(t, 503, appErr.Status)
}
