package workspace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/factory-ops-api/internal/models"
	"github.com/noah-isme/factory-ops-api/internal/repository"
)

type flakyStore struct {
	*repository.MemoryStore
	gate      chan struct{}
	txErr     error
	deleteErr error
}

func (s *flakyStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if s.gate != nil {
		<-s.gate
	}
	if s.txErr != nil {
		return s.txErr
	}
	return s.MemoryStore.RunTransaction(ctx, fn)
}

func (s *flakyStore) Delete(ctx context.Context, collection, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.MemoryStore.Delete(ctx, collection, id)
}

type countingObserver struct{ rollbacks int }

func (o *countingObserver) RecordRollback(string) { o.rollbacks++ }

var created = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func seedJig(t *testing.T, store repository.Store, id string, status models.JigStatus) *models.JigRequest {
	t.Helper()
	jig := &models.JigRequest{
		ID:        id,
		Title:     "tape jig",
		Quantity:  100,
		Status:    status,
		CreatedBy: "kim",
		CreatedAt: created,
		Tracked: models.Tracked{
			History:  []models.HistoryEntry{{Status: string(models.JigStatusRequest), Date: created, User: "kim"}},
			Comments: []models.Comment{{ID: "c1", User: "lee", Date: created, Text: "urgent", ReadBy: []string{"u1"}}},
		},
	}
	require.NoError(t, store.Set(context.Background(), models.CollectionJigRequests, id, jig))
	return jig
}

func openSynced(t *testing.T, store repository.Store, opts ...Option) *Workspace {
	t.Helper()
	ws := New(store, opts...)
	require.NoError(t, ws.Open(context.Background(), models.KindJigRequest))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ws.WaitSynced(ctx))
	t.Cleanup(ws.Close)
	return ws
}

func changeStatus(status models.JigStatus) MutateFunc {
	return func(rec models.Record) error {
		rec.AppendHistory(models.HistoryEntry{Status: string(status), Date: created.Add(time.Hour), User: "park"})
		return rec.SetStatus(string(status))
	}
}

func TestMutatePersistsAndUpdatesLiveCopy(t *testing.T) {
	mem := repository.NewMemoryStore()
	seedJig(t, mem, "T1", models.JigStatusRequest)
	ws := openSynced(t, mem)

	rec, err := ws.Mutate(context.Background(), models.KindJigRequest, "T1", changeStatus(models.JigStatusInProgress))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "IN_PROGRESS", rec.CurrentStatus())
	assert.Len(t, rec.HistoryLog(), 2)

	local, found, err := ws.Get(context.Background(), models.KindJigRequest, "T1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "IN_PROGRESS", local.CurrentStatus())

	doc, err := mem.Get(context.Background(), models.CollectionJigRequests, "T1")
	require.NoError(t, err)
	var stored models.JigRequest
	require.NoError(t, doc.Decode(&stored))
	assert.Equal(t, models.JigStatusInProgress, stored.Status)
	assert.Equal(t, stored.Status, models.JigStatus(stored.History[len(stored.History)-1].Status))
}

func TestMutateRollbackRestoresExactPriorValue(t *testing.T) {
	store := &flakyStore{MemoryStore: repository.NewMemoryStore(), gate: make(chan struct{}), txErr: errors.New("network unreachable")}
	seedJig(t, store, "T1", models.JigStatusInProgress)
	observer := &countingObserver{}
	ws := openSynced(t, store, WithObserver(observer))

	view, found, err := ws.OpenDetail(context.Background(), models.KindJigRequest, "T1")
	require.NoError(t, err)
	require.True(t, found)
	defer view.Close()

	listBefore, _, err := ws.Get(context.Background(), models.KindJigRequest, "T1")
	require.NoError(t, err)
	viewBefore := view.Current()
	require.Equal(t, listBefore, viewBefore)

	done := make(chan error, 1)
	go func() {
		_, err := ws.Mutate(context.Background(), models.KindJigRequest, "T1", func(rec models.Record) error {
			rec.AppendComment(models.Comment{ID: "c2", User: "park", Date: created, Text: "on it", ReadBy: []string{}})
			rec.MarkCommentsRead("u9")
			return changeStatus(models.JigStatusHold)(rec)
		})
		done <- err
	}()

	optimistic := <-view.Updates()
	require.NotNil(t, optimistic)
	assert.Equal(t, "HOLD", optimistic.CurrentStatus())
	listDuring, _, err := ws.Get(context.Background(), models.KindJigRequest, "T1")
	require.NoError(t, err)
	assert.Equal(t, "HOLD", listDuring.CurrentStatus())
	assert.Len(t, listDuring.CommentThread(), 2)

	close(store.gate)
	require.Error(t, <-done)

	listAfter, _, err := ws.Get(context.Background(), models.KindJigRequest, "T1")
	require.NoError(t, err)
	assert.Equal(t, listBefore, listAfter)
	assert.Equal(t, viewBefore, view.Current())
	assert.Equal(t, 1, observer.rollbacks)
}

func TestSnapshotSupersedesPendingValueAndRollback(t *testing.T) {
	store := &flakyStore{MemoryStore: repository.NewMemoryStore(), gate: make(chan struct{}), txErr: errors.New("timeout")}
	seedJig(t, store, "T1", models.JigStatusRequest)
	ws := openSynced(t, store)

	done := make(chan error, 1)
	go func() {
		_, err := ws.Mutate(context.Background(), models.KindJigRequest, "T1", changeStatus(models.JigStatusHold))
		done <- err
	}()
	require.Eventually(t, func() bool {
		rec, _, _ := ws.Get(context.Background(), models.KindJigRequest, "T1")
		return rec != nil && rec.CurrentStatus() == "HOLD"
	}, time.Second, 5*time.Millisecond)

	remote := seedJig(t, store.MemoryStore, "T1", models.JigStatusRejected)
	require.Eventually(t, func() bool {
		rec, _, _ := ws.Get(context.Background(), models.KindJigRequest, "T1")
		return rec != nil && rec.CurrentStatus() == string(remote.Status)
	}, time.Second, 5*time.Millisecond)

	close(store.gate)
	require.Error(t, <-done)

	rec, _, err := ws.Get(context.Background(), models.KindJigRequest, "T1")
	require.NoError(t, err)
	assert.Equal(t, "REJECTED", rec.CurrentStatus())
}

func TestOverlappingFailedWritesRestoreStoredValue(t *testing.T) {
	store := &flakyStore{MemoryStore: repository.NewMemoryStore(), gate: make(chan struct{}), txErr: errors.New("network unreachable")}
	seedJig(t, store, "T1", models.JigStatusInProgress)
	ws := openSynced(t, store)

	before, _, err := ws.Get(context.Background(), models.KindJigRequest, "T1")
	require.NoError(t, err)

	done := make(chan error, 2)
	go func() {
		_, err := ws.Mutate(context.Background(), models.KindJigRequest, "T1", changeStatus(models.JigStatusHold))
		done <- err
	}()
	require.Eventually(t, func() bool {
		rec, _, _ := ws.Get(context.Background(), models.KindJigRequest, "T1")
		return rec != nil && rec.CurrentStatus() == "HOLD"
	}, time.Second, 5*time.Millisecond)

	go func() {
		_, err := ws.Mutate(context.Background(), models.KindJigRequest, "T1", func(rec models.Record) error {
			rec.AppendComment(models.Comment{ID: "c2", User: "park", Date: created, Text: "waiting on parts", ReadBy: []string{}})
			return nil
		})
		done <- err
	}()
	require.Eventually(t, func() bool {
		rec, _, _ := ws.Get(context.Background(), models.KindJigRequest, "T1")
		return rec != nil && len(rec.CommentThread()) == 2
	}, time.Second, 5*time.Millisecond)

	close(store.gate)
	require.Error(t, <-done)
	require.Error(t, <-done)

	local, _, err := ws.Get(context.Background(), models.KindJigRequest, "T1")
	require.NoError(t, err)
	assert.Equal(t, before, local)
	assert.Equal(t, "IN_PROGRESS", local.CurrentStatus())
	assert.Len(t, local.CommentThread(), 1)
	assert.Len(t, local.HistoryLog(), 1)
}

func TestOlderWriteSettlingAfterNewerFailureIsShown(t *testing.T) {
	mem := repository.NewMemoryStore()
	seedJig(t, mem, "T1", models.JigStatusRequest)
	ws := New(mem)
	require.NoError(t, ws.Open(context.Background(), models.KindJigRequest))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ws.WaitSynced(ctx))
	defer ws.Close()

	original, _, err := ws.Get(context.Background(), models.KindJigRequest, "T1")
	require.NoError(t, err)
	older := original.Clone()
	require.NoError(t, changeStatus(models.JigStatusInProgress)(older))
	newer := older.Clone()
	require.NoError(t, changeStatus(models.JigStatusHold)(newer))

	first := ws.apply(models.KindJigRequest, "T1", older)
	second := ws.apply(models.KindJigRequest, "T1", newer)

	ws.rollback(models.KindJigRequest, "T1", second, newer)
	rec, _, err := ws.Get(context.Background(), models.KindJigRequest, "T1")
	require.NoError(t, err)
	assert.Equal(t, "REQUEST", rec.CurrentStatus())

	ws.settle(models.KindJigRequest, "T1", first, older)
	rec, _, err = ws.Get(context.Background(), models.KindJigRequest, "T1")
	require.NoError(t, err)
	assert.Equal(t, "IN_PROGRESS", rec.CurrentStatus())
}

func TestMutateMissingRecordIsNoop(t *testing.T) {
	mem := repository.NewMemoryStore()
	ws := openSynced(t, mem)

	called := false
	rec, err := ws.Mutate(context.Background(), models.KindJigRequest, "T404", func(models.Record) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.False(t, called)
}

func TestMutateValidationErrorLeavesStateUntouched(t *testing.T) {
	mem := repository.NewMemoryStore()
	seedJig(t, mem, "T1", models.JigStatusRequest)
	ws := openSynced(t, mem)
	before, _, err := ws.Get(context.Background(), models.KindJigRequest, "T1")
	require.NoError(t, err)

	_, err = ws.Mutate(context.Background(), models.KindJigRequest, "T1", func(rec models.Record) error {
		rec.AppendHistory(models.HistoryEntry{Status: "PASSED"})
		return rec.SetStatus("PASSED")
	})
	require.Error(t, err)

	after, _, err := ws.Get(context.Background(), models.KindJigRequest, "T1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRemoveRollsBackOnFailure(t *testing.T) {
	store := &flakyStore{MemoryStore: repository.NewMemoryStore(), deleteErr: errors.New("denied")}
	seedJig(t, store, "T1", models.JigStatusRequest)
	ws := openSynced(t, store)

	removed, err := ws.Remove(context.Background(), models.KindJigRequest, "T1")
	require.Error(t, err)
	assert.False(t, removed)
	list, err := ws.List(context.Background(), models.KindJigRequest, "")
	require.NoError(t, err)
	require.Len(t, list, 1)

	store.deleteErr = nil
	removed, err = ws.Remove(context.Background(), models.KindJigRequest, "T1")
	require.NoError(t, err)
	assert.True(t, removed)
	_, found, err := ws.Get(context.Background(), models.KindJigRequest, "T1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListFallsBackToStoreBeforeSync(t *testing.T) {
	mem := repository.NewMemoryStore()
	seedJig(t, mem, "T1", models.JigStatusRequest)
	seedJig(t, mem, "T2", models.JigStatusHold)
	ws := New(mem)
	defer ws.Close()

	assert.False(t, ws.Synced(models.KindJigRequest))
	list, err := ws.List(context.Background(), models.KindJigRequest, "HOLD")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "T2", list[0].RecordID())
}

func TestCloseReleasesSubscriptionsAndViews(t *testing.T) {
	mem := repository.NewMemoryStore()
	seedJig(t, mem, "T1", models.JigStatusRequest)
	ws := New(mem)
	require.NoError(t, ws.Open(context.Background(), models.KindJigRequest, models.KindSampleRequest))
	assert.Equal(t, 1, mem.Subscribers(models.CollectionJigRequests))
	assert.Equal(t, 1, mem.Subscribers(models.CollectionSampleRequests))

	view, _, err := ws.OpenDetail(context.Background(), models.KindJigRequest, "T1")
	require.NoError(t, err)

	ws.Close()
	ws.Close()
	assert.Equal(t, 0, mem.Subscribers(models.CollectionJigRequests))
	assert.Equal(t, 0, mem.Subscribers(models.CollectionSampleRequests))
	for range view.Updates() {
	}

	_, _, err = ws.Get(context.Background(), models.KindJigRequest, "T1")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, ws.Open(context.Background(), models.KindJigRequest), ErrClosed)
}

func TestDetailViewObservesDeletion(t *testing.T) {
	mem := repository.NewMemoryStore()
	seedJig(t, mem, "T1", models.JigStatusRequest)
	ws := openSynced(t, mem)

	view, _, err := ws.OpenDetail(context.Background(), models.KindJigRequest, "T1")
	require.NoError(t, err)
	defer view.Close()

	require.NoError(t, mem.Delete(context.Background(), models.CollectionJigRequests, "T1"))
	select {
	case rec := <-view.Updates():
		assert.Nil(t, rec)
	case <-time.After(time.Second):
		t.Fatal("view did not observe deletion")
	}
	assert.Nil(t, view.Current())
}
