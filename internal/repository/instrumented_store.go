package repository

import (
	"context"
	"errors"
	"time"
)

// StoreObserver receives the duration of every store operation.
type StoreObserver interface {
	ObserveStoreOperation(label string, duration time.Duration)
	RecordTransactionAbort(label string)
}

// InstrumentedStore decorates a Store with timing metrics.
type InstrumentedStore struct {
	Store
	observer StoreObserver
}

// NewInstrumentedStore wraps store. A nil observer returns store unchanged.
func NewInstrumentedStore(store Store, observer StoreObserver) Store {
	if observer == nil {
		return store
	}
	return &InstrumentedStore{Store: store, observer: observer}
}

func (s *InstrumentedStore) observe(label string, start time.Time) {
	s.observer.ObserveStoreOperation(label, time.Since(start))
}

func (s *InstrumentedStore) Get(ctx context.Context, collection, id string) (Document, error) {
	defer s.observe(collection+".get", time.Now())
	return s.Store.Get(ctx, collection, id)
}

func (s *InstrumentedStore) Add(ctx context.Context, collection string, data interface{}) (string, error) {
	defer s.observe(collection+".add", time.Now())
	return s.Store.Add(ctx, collection, data)
}

func (s *InstrumentedStore) Set(ctx context.Context, collection, id string, data interface{}) error {
	defer s.observe(collection+".set", time.Now())
	return s.Store.Set(ctx, collection, id, data)
}

func (s *InstrumentedStore) Update(ctx context.Context, collection, id string, patch Patch) error {
	defer s.observe(collection+".update", time.Now())
	return s.Store.Update(ctx, collection, id, patch)
}

func (s *InstrumentedStore) Delete(ctx context.Context, collection, id string) error {
	defer s.observe(collection+".delete", time.Now())
	return s.Store.Delete(ctx, collection, id)
}

func (s *InstrumentedStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	defer s.observe(collection+".query", time.Now())
	return s.Store.Query(ctx, collection, q)
}

func (s *InstrumentedStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	defer s.observe("transaction", time.Now())
	err := s.Store.RunTransaction(ctx, fn)
	if errors.Is(err, ErrTxAborted) {
		s.observer.RecordTransactionAbort("transaction")
	}
	return err
}

func (s *InstrumentedStore) Batch() Batch {
	return &instrumentedBatch{Batch: s.Store.Batch(), store: s}
}

type instrumentedBatch struct {
	Batch
	store *InstrumentedStore
}

func (b *instrumentedBatch) Commit(ctx context.Context) error {
	defer b.store.observe("batch", time.Now())
	return b.Batch.Commit(ctx)
}
