package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MemoryStore is an in-process Store. Documents carry a version; transactions
// record the versions they read and fail with ErrTxConflict at commit when any
// of them moved, then retry.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*memoryDoc
	hub         *changeHub
	maxAttempts int
	now         func() time.Time
}

type memoryDoc struct {
	data      json.RawMessage
	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryMaxAttempts sets the transaction retry budget.
func WithMemoryMaxAttempts(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithMemoryClock overrides the timestamp source.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMemoryLogger attaches a logger for live query failures.
func WithMemoryLogger(logger *zap.Logger) MemoryOption {
	return func(s *MemoryStore) {
		s.hub.logger = logger
	}
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		collections: make(map[string]map[string]*memoryDoc),
		maxAttempts: DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
	s.hub = newChangeHub(s.Query, nil)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrDocumentNotFound)
	}
	return doc.document(id), nil
}

func (s *MemoryStore) Add(ctx context.Context, collection string, data interface{}) (string, error) {
	raw, err := encodeObject(data)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if raw, err = withID(raw, id); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.put(collection, id, raw)
	s.mu.Unlock()
	s.hub.notify(collection)
	return id, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, data interface{}) error {
	raw, err := encodeObject(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.put(collection, id, raw)
	s.mu.Unlock()
	s.hub.notify(collection)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, patch Patch) error {
	s.mu.Lock()
	doc, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s/%s: %w", collection, id, ErrDocumentNotFound)
	}
	raw, err := applyPatch(doc.data, patch)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.put(collection, id, raw)
	s.mu.Unlock()
	s.hub.notify(collection)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	delete(s.collections[collection], id)
	s.mu.Unlock()
	s.hub.notify(collection)
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	s.mu.RLock()
	docs := make([]Document, 0, len(s.collections[collection]))
	for id, doc := range s.collections[collection] {
		docs = append(docs, doc.document(id))
	}
	s.mu.RUnlock()
	return runQuery(docs, q)
}

func (s *MemoryStore) Subscribe(ctx context.Context, collection string, q Query, fn SnapshotFunc) (Unsubscribe, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	return s.hub.subscribe(ctx, collection, q, fn), nil
}

func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &memoryTx{store: s, reads: make(map[docKey]int64), pending: make(map[docKey]json.RawMessage)}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		err := tx.commit()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTxConflict) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrTxAborted, lastErr)
}

func (s *MemoryStore) Batch() Batch {
	return &memoryBatch{store: s}
}

// Subscribers reports the live query count on a collection.
func (s *MemoryStore) Subscribers(collection string) int {
	return s.hub.count(collection)
}

// put writes raw under id; callers hold s.mu.
func (s *MemoryStore) put(collection, id string, raw json.RawMessage) {
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]*memoryDoc)
	}
	now := s.now()
	if doc, ok := s.collections[collection][id]; ok {
		doc.data = raw
		doc.version++
		doc.updatedAt = now
		return
	}
	s.collections[collection][id] = &memoryDoc{data: raw, version: 1, createdAt: now, updatedAt: now}
}

func (s *MemoryStore) version(key docKey) int64 {
	if doc, ok := s.collections[key.collection][key.id]; ok {
		return doc.version
	}
	return 0
}

func (d *memoryDoc) document(id string) Document {
	return Document{ID: id, Data: append(json.RawMessage(nil), d.data...), CreatedAt: d.createdAt, UpdatedAt: d.updatedAt}
}

type docKey struct {
	collection string
	id         string
}

type memoryTx struct {
	store   *MemoryStore
	reads   map[docKey]int64
	pending map[docKey]json.RawMessage
	order   []docKey
}

func (t *memoryTx) Get(ctx context.Context, collection, id string) (Document, error) {
	key := docKey{collection, id}
	if raw, ok := t.pending[key]; ok {
		return Document{ID: id, Data: append(json.RawMessage(nil), raw...)}, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = t.store.version(key)
	}
	doc, ok := t.store.collections[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrDocumentNotFound)
	}
	return doc.document(id), nil
}

func (t *memoryTx) Set(ctx context.Context, collection, id string, data interface{}) error {
	raw, err := encodeObject(data)
	if err != nil {
		return err
	}
	t.stage(docKey{collection, id}, raw)
	return nil
}

func (t *memoryTx) Update(ctx context.Context, collection, id string, patch Patch) error {
	doc, err := t.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	raw, err := applyPatch(doc.Data, patch)
	if err != nil {
		return err
	}
	t.stage(docKey{collection, id}, raw)
	return nil
}

func (t *memoryTx) stage(key docKey, raw json.RawMessage) {
	if _, ok := t.pending[key]; !ok {
		t.order = append(t.order, key)
	}
	t.pending[key] = raw
}

func (t *memoryTx) commit() error {
	s := t.store
	s.mu.Lock()
	for key, seen := range t.reads {
		if s.version(key) != seen {
			s.mu.Unlock()
			return fmt.Errorf("%s/%s: %w", key.collection, key.id, ErrTxConflict)
		}
	}
	touched := make(map[string]struct{})
	for _, key := range t.order {
		s.put(key.collection, key.id, t.pending[key])
		touched[key.collection] = struct{}{}
	}
	s.mu.Unlock()
	for _, c := range sortedKeys(touched) {
		s.hub.notify(c)
	}
	return nil
}

type batchOp struct {
	kind       string
	collection string
	id         string
	data       interface{}
	patch      Patch
}

type memoryBatch struct {
	store *MemoryStore
	ops   []batchOp
}

func (b *memoryBatch) Set(collection, id string, data interface{}) {
	b.ops = append(b.ops, batchOp{kind: "set", collection: collection, id: id, data: data})
}

func (b *memoryBatch) Update(collection, id string, patch Patch) {
	b.ops = append(b.ops, batchOp{kind: "update", collection: collection, id: id, patch: patch})
}

func (b *memoryBatch) Delete(collection, id string) {
	b.ops = append(b.ops, batchOp{kind: "delete", collection: collection, id: id})
}

func (b *memoryBatch) Len() int { return len(b.ops) }

// Commit applies every operation or none of them.
func (b *memoryBatch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	s := b.store
	s.mu.Lock()
	staged := make(map[docKey]json.RawMessage)
	deleted := make(map[docKey]bool)
	current := func(key docKey) (json.RawMessage, bool) {
		if deleted[key] {
			return nil, false
		}
		if raw, ok := staged[key]; ok {
			return raw, true
		}
		if doc, ok := s.collections[key.collection][key.id]; ok {
			return doc.data, true
		}
		return nil, false
	}
	order := make([]docKey, 0, len(b.ops))
	for _, op := range b.ops {
		key := docKey{op.collection, op.id}
		switch op.kind {
		case "set":
			raw, err := encodeObject(op.data)
			if err != nil {
				s.mu.Unlock()
				return err
			}
			staged[key] = raw
			delete(deleted, key)
		case "update":
			raw, ok := current(key)
			if !ok {
				s.mu.Unlock()
				return fmt.Errorf("%s/%s: %w", op.collection, op.id, ErrDocumentNotFound)
			}
			patched, err := applyPatch(raw, op.patch)
			if err != nil {
				s.mu.Unlock()
				return err
			}
			staged[key] = patched
		case "delete":
			delete(staged, key)
			deleted[key] = true
		}
		order = append(order, key)
	}
	touched := make(map[string]struct{})
	for _, key := range order {
		touched[key.collection] = struct{}{}
		if deleted[key] {
			delete(s.collections[key.collection], key.id)
			continue
		}
		if raw, ok := staged[key]; ok {
			s.put(key.collection, key.id, raw)
			delete(staged, key)
		}
	}
	s.mu.Unlock()
	for _, c := range sortedKeys(touched) {
		s.hub.notify(c)
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
