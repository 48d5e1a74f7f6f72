package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testItem struct {
	ID     string   `json:"id,omitempty"`
	Name   string   `json:"name"`
	Count  int      `json:"count"`
	Tags   []string `json:"tags"`
	Placed string   `json:"placed,omitempty"`
}

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	id, err := store.Add(ctx, "items", testItem{Name: "alpha", Count: 1})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := store.Get(ctx, "items", id)
	require.NoError(t, err)
	var item testItem
	require.NoError(t, doc.Decode(&item))
	assert.Equal(t, id, item.ID)
	assert.Equal(t, "alpha", item.Name)

	require.NoError(t, store.Update(ctx, "items", id, Patch{"count": 7}))
	doc, err = store.Get(ctx, "items", id)
	require.NoError(t, err)
	require.NoError(t, doc.Decode(&item))
	assert.Equal(t, 7, item.Count)
	assert.Equal(t, "alpha", item.Name)

	require.NoError(t, store.Delete(ctx, "items", id))
	_, err = store.Get(ctx, "items", id)
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	require.NoError(t, store.Delete(ctx, "items", id))
	assert.ErrorIs(t, store.Update(ctx, "items", id, Patch{"count": 1}), ErrDocumentNotFound)
}

func TestMemoryStoreRejectsNonObjects(t *testing.T) {
	store := NewMemoryStore()
	err := store.Set(context.Background(), "items", "x", []string{"a"})
	require.Error(t, err)
}

func TestMemoryStoreArrayUnionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "items", "a", testItem{Name: "a", Tags: []string{}}))

	require.NoError(t, store.Update(ctx, "items", "a", Patch{"tags": Union("u1")}))
	require.NoError(t, store.Update(ctx, "items", "a", Patch{"tags": Union("u1", "u2")}))
	require.NoError(t, store.Update(ctx, "items", "a", Patch{"tags": Union("u2")}))

	doc, err := store.Get(ctx, "items", "a")
	require.NoError(t, err)
	var item testItem
	require.NoError(t, doc.Decode(&item))
	assert.Equal(t, []string{"u1", "u2"}, item.Tags)
}

func TestMemoryStoreArrayUnionConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "items", "a", testItem{Name: "a", Tags: []string{}}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Update(ctx, "items", "a", Patch{"tags": Union(fmt.Sprintf("u%d", i%5))}))
		}(i)
	}
	wg.Wait()

	doc, err := store.Get(ctx, "items", "a")
	require.NoError(t, err)
	var item testItem
	require.NoError(t, doc.Decode(&item))
	assert.ElementsMatch(t, []string{"u0", "u1", "u2", "u3", "u4"}, item.Tags)
}

func TestMemoryStoreQuery(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"c", "a", "b", "d"} {
		require.NoError(t, store.Set(ctx, "items", name, testItem{
			Name:   name,
			Count:  i,
			Tags:   []string{"t" + name},
			Placed: base.Add(time.Duration(i) * time.Hour).Format(time.RFC3339Nano),
		}))
	}

	docs, err := store.Query(ctx, "items", Query{OrderBy: "name"})
	require.NoError(t, err)
	require.Len(t, docs, 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(docs))

	docs, err = store.Query(ctx, "items", Query{Filters: []Filter{Where("count", OpGte, 2)}, OrderBy: "count", Descending: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "b"}, ids(docs))

	docs, err = store.Query(ctx, "items", Query{Filters: []Filter{Where("placed", OpGt, base.Add(90*time.Minute))}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d"}, ids(docs))

	docs, err = store.Query(ctx, "items", Query{Filters: []Filter{Where("tags", OpArrayContains, "ta")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(docs))

	docs, err = store.Query(ctx, "items", Query{OrderBy: "placed", Descending: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "b"}, ids(docs))

	_, err = store.Query(ctx, "items", Query{OrderBy: "data->>'x'"})
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestMemoryStoreTransactionRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "counters", "c", map[string]int{"count": 1}))

	attempts := 0
	err := store.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		attempts++
		doc, err := tx.Get(ctx, "counters", "c")
		if err != nil {
			return err
		}
		var c struct{ Count int }
		if err := doc.Decode(&c); err != nil {
			return err
		}
		if attempts == 1 {
			// A competing writer lands between read and commit.
			require.NoError(t, store.Set(ctx, "counters", "c", map[string]int{"count": 10}))
		}
		return tx.Set(ctx, "counters", "c", map[string]int{"count": c.Count + 1})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	doc, err := store.Get(ctx, "counters", "c")
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":11}`, string(doc.Data))
}

func TestMemoryStoreTransactionAbortsAfterBudget(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithMemoryMaxAttempts(2))

	attempts := 0
	err := store.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		attempts++
		if _, err := tx.Get(ctx, "counters", "c"); err != nil && !errors.Is(err, ErrDocumentNotFound) {
			return err
		}
		require.NoError(t, store.Set(ctx, "counters", "c", map[string]int{"count": attempts}))
		return tx.Set(ctx, "items", "x", testItem{Name: "never"})
	})
	require.ErrorIs(t, err, ErrTxAborted)
	assert.Equal(t, 2, attempts)

	_, err = store.Get(ctx, "items", "x")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestMemoryStoreTransactionFnErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	boom := errors.New("boom")

	err := store.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.Set(ctx, "items", "x", testItem{Name: "x"}))
		doc, err := tx.Get(ctx, "items", "x")
		require.NoError(t, err)
		assert.Contains(t, string(doc.Data), `"x"`)
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, err = store.Get(ctx, "items", "x")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestMemoryStoreTransactionCounterUnderContention(t *testing.T) {
	ctx := context.Background()
	const workers = 8
	store := NewMemoryStore(WithMemoryMaxAttempts(workers * 4))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
				var c struct {
					Count int `json:"count"`
				}
				doc, err := tx.Get(ctx, "counters", "c")
				switch {
				case errors.Is(err, ErrDocumentNotFound):
				case err != nil:
					return err
				default:
					if err := doc.Decode(&c); err != nil {
						return err
					}
				}
				c.Count++
				if err := tx.Set(ctx, "counters", "c", c); err != nil {
					return err
				}
				return tx.Set(ctx, "items", fmt.Sprintf("T%d", c.Count), testItem{Name: "x"})
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	docs, err := store.Query(ctx, "items", Query{})
	require.NoError(t, err)
	assert.Len(t, docs, workers)
	doc, err := store.Get(ctx, "counters", "c")
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`{"count":%d}`, workers), string(doc.Data))
}

func TestMemoryStoreBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "items", "a", testItem{Name: "a", Tags: []string{}}))

	batch := store.Batch()
	batch.Update("items", "a", Patch{"tags": Union("u1")})
	batch.Update("items", "missing", Patch{"tags": Union("u1")})
	assert.Equal(t, 2, batch.Len())
	require.ErrorIs(t, batch.Commit(ctx), ErrDocumentNotFound)

	doc, err := store.Get(ctx, "items", "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"a","count":0,"tags":[]}`, string(doc.Data))

	batch = store.Batch()
	batch.Update("items", "a", Patch{"tags": Union("u1")})
	batch.Set("items", "b", testItem{Name: "b"})
	batch.Delete("items", "b")
	require.NoError(t, batch.Commit(ctx))

	doc, err = store.Get(ctx, "items", "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"a","count":0,"tags":["u1"]}`, string(doc.Data))
	_, err = store.Get(ctx, "items", "b")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestMemoryStoreSubscribeDeliversFullResultSets(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "items", "a", testItem{Name: "a"}))

	snapshots := make(chan []string, 16)
	unsubscribe, err := store.Subscribe(ctx, "items", Query{OrderBy: "name"}, func(docs []Document) {
		snapshots <- ids(docs)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, waitSnapshot(t, snapshots))
	assert.Equal(t, 1, store.Subscribers("items"))

	require.NoError(t, store.Set(ctx, "items", "b", testItem{Name: "b"}))
	assert.Eventually(t, func() bool {
		select {
		case got := <-snapshots:
			return len(got) == 2
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, store.Subscribers("items"))
}

func TestMemoryStoreSubscribeEndsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := NewMemoryStore()

	_, err := store.Subscribe(ctx, "items", Query{}, func([]Document) {})
	require.NoError(t, err)
	cancel()
	assert.Eventually(t, func() bool { return store.Subscribers("items") == 0 }, time.Second, 5*time.Millisecond)
}

func TestCollectionDecodesTypedValues(t *testing.T) {
	ctx := context.Background()
	items := NewCollection[testItem](NewMemoryStore(), "items")

	id, err := items.Add(ctx, &testItem{Name: "typed", Count: 3})
	require.NoError(t, err)

	got, found, err := items.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "typed", got.Name)

	_, found, err = items.Get(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, found)

	list, err := items.List(ctx, Query{Filters: []Filter{Where("count", OpEq, 3)}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func waitSnapshot(t *testing.T, ch <-chan []string) []string {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
		return nil
	}
}

type stubObserver struct {
	mu     sync.Mutex
	labels []string
	aborts int
}

func (o *stubObserver) ObserveStoreOperation(label string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.labels = append(o.labels, label)
}

func (o *stubObserver) RecordTransactionAbort(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.aborts++
}

func TestInstrumentedStoreObservesOperations(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore(WithMemoryMaxAttempts(1))
	observer := &stubObserver{}
	store := NewInstrumentedStore(inner, observer)

	require.NoError(t, store.Set(ctx, "items", "a", testItem{Name: "a"}))
	_, err := store.Get(ctx, "items", "a")
	require.NoError(t, err)
	batch := store.Batch()
	batch.Delete("items", "a")
	require.NoError(t, batch.Commit(ctx))

	err = store.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Get(ctx, "items", "b"); err != nil && !errors.Is(err, ErrDocumentNotFound) {
			return err
		}
		require.NoError(t, inner.Set(ctx, "items", "b", testItem{Name: "b"}))
		return tx.Set(ctx, "items", "b", testItem{Name: "mine"})
	})
	require.ErrorIs(t, err, ErrTxAborted)

	assert.Equal(t, []string{"items.set", "items.get", "batch", "transaction"}, observer.labels)
	assert.Equal(t, 1, observer.aborts)
	assert.Same(t, inner, NewInstrumentedStore(inner, nil))
}
