// Package workspace keeps a process-wide, live copy of the record
// collections and applies mutations optimistically: the local copy changes
// first, the store write follows, and a failed write restores the exact
// prior value. Live snapshots from the store always win over pending values.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/factory-ops-api/internal/models"
	"github.com/noah-isme/factory-ops-api/internal/repository"
)

// ErrClosed is returned by operations on a closed workspace.
var ErrClosed = errors.New("workspace closed")

// errGone marks a record deleted between the optimistic apply and the write.
var errGone = errors.New("record no longer exists")

// MutateFunc changes a record in place. It may run more than once: against
// the local copy and against the freshly read stored copy on every
// transaction attempt.
type MutateFunc func(rec models.Record) error

// Observer is notified about optimistic writes that had to be rolled back.
type Observer interface {
	RecordRollback(kind string)
}

// Workspace is the live cache. Create with New, start collections with Open
// and release every subscription with Close.
type Workspace struct {
	store    repository.Store
	logger   *zap.Logger
	observer Observer

	mu           sync.RWMutex
	collections  map[models.RecordKind]*collectionState
	views        map[viewKey]map[*DetailView]struct{}
	unsubscribes []repository.Unsubscribe
	seq          uint64
	closed       bool
}

type viewKey struct {
	kind models.RecordKind
	id   string
}

type collectionState struct {
	synced  bool
	records map[string]models.Record
	order   []string
	// pending tracks records with optimistic writes in flight.
	pending map[string]*pendingWrites
	ready   chan struct{}
}

// pendingWrites holds the outstanding optimistic writes of one record.
// confirmed is the last value known to be stored, nil when absent.
type pendingWrites struct {
	confirmed  models.Record
	tokens     map[uint64]struct{}
	latest     uint64
	latestDone bool
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Workspace) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithObserver sets the rollback observer.
func WithObserver(observer Observer) Option {
	return func(w *Workspace) { w.observer = observer }
}

// New constructs an empty workspace over store.
func New(store repository.Store, opts ...Option) *Workspace {
	w := &Workspace{
		store:       store,
		logger:      zap.NewNop(),
		collections: make(map[models.RecordKind]*collectionState),
		views:       make(map[viewKey]map[*DetailView]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Open subscribes to the collections of kinds. Reads of a kind are served
// from the store until its first snapshot arrives.
func (w *Workspace) Open(ctx context.Context, kinds ...models.RecordKind) error {
	for _, kind := range kinds {
		if kind.Collection() == "" {
			return fmt.Errorf("unknown record kind %q", kind)
		}
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return ErrClosed
		}
		if _, ok := w.collections[kind]; ok {
			w.mu.Unlock()
			continue
		}
		w.collections[kind] = &collectionState{
			records: make(map[string]models.Record),
			pending: make(map[string]*pendingWrites),
			ready:   make(chan struct{}),
		}
		w.mu.Unlock()

		kind := kind
		unsubscribe, err := w.store.Subscribe(ctx, kind.Collection(), listQuery(), func(docs []repository.Document) {
			w.applySnapshot(kind, docs)
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", kind.Collection(), err)
		}
		w.mu.Lock()
		w.unsubscribes = append(w.unsubscribes, unsubscribe)
		w.mu.Unlock()
	}
	return nil
}

// WaitSynced blocks until every opened collection received its first snapshot.
func (w *Workspace) WaitSynced(ctx context.Context) error {
	w.mu.RLock()
	readies := make([]chan struct{}, 0, len(w.collections))
	for _, state := range w.collections {
		readies = append(readies, state.ready)
	}
	w.mu.RUnlock()
	for _, ready := range readies {
		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close releases every subscription and detail view. It is safe to call twice.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	unsubscribes := w.unsubscribes
	w.unsubscribes = nil
	var views []*DetailView
	for _, set := range w.views {
		for v := range set {
			views = append(views, v)
		}
	}
	w.mu.Unlock()

	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}
	for _, v := range views {
		v.Close()
	}
}

// Get returns a copy of the record, from the live copy when the collection is
// synced and from the store otherwise.
func (w *Workspace) Get(ctx context.Context, kind models.RecordKind, id string) (models.Record, bool, error) {
	rec, found, err := w.current(ctx, kind, id)
	if err != nil || !found {
		return nil, found, err
	}
	return rec.Clone(), true, nil
}

// List returns records newest first, optionally restricted to one status.
func (w *Workspace) List(ctx context.Context, kind models.RecordKind, status string) ([]models.Record, error) {
	w.mu.RLock()
	state, ok := w.collections[kind]
	if ok && state.synced {
		out := make([]models.Record, 0, len(state.order))
		for _, id := range state.order {
			rec := state.records[id]
			if status == "" || rec.CurrentStatus() == status {
				out = append(out, rec.Clone())
			}
		}
		w.mu.RUnlock()
		return out, nil
	}
	w.mu.RUnlock()

	q := listQuery()
	if status != "" {
		q.Filters = append(q.Filters, repository.Where("status", repository.OpEq, status))
	}
	docs, err := w.store.Query(ctx, kind.Collection(), q)
	if err != nil {
		return nil, err
	}
	out := make([]models.Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := decode(kind, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Insert places a freshly created record into the live copy ahead of the
// snapshot that will confirm it.
func (w *Workspace) Insert(rec models.Record) {
	w.mu.Lock()
	defer w.mu.Unlock()
	state, ok := w.collections[rec.Kind()]
	if ok && state.synced {
		if _, exists := state.records[rec.RecordID()]; !exists {
			state.order = append([]string{rec.RecordID()}, state.order...)
		}
		state.records[rec.RecordID()] = rec.Clone()
	}
	w.publishLocked(rec.Kind(), rec.RecordID(), rec)
}

// Mutate applies fn optimistically and persists it. A record that does not
// exist makes Mutate a no-op returning (nil, nil). On a failed write the list
// copy and any open detail view are restored to the last stored value, unless
// a snapshot superseded the optimistic value in the meantime.
func (w *Workspace) Mutate(ctx context.Context, kind models.RecordKind, id string, fn MutateFunc) (models.Record, error) {
	original, found, err := w.current(ctx, kind, id)
	if err != nil || !found {
		return nil, err
	}
	updated := original.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}

	token := w.apply(kind, id, updated)
	committed, err := w.persist(ctx, kind, id, fn)
	if err != nil {
		w.rollback(kind, id, token, original)
		if errors.Is(err, errGone) {
			return nil, nil
		}
		w.logger.Warn("optimistic write rolled back",
			zap.String("kind", string(kind)), zap.String("id", id), zap.Error(err))
		if w.observer != nil {
			w.observer.RecordRollback(string(kind))
		}
		return nil, err
	}
	w.settle(kind, id, token, committed)
	return committed.Clone(), nil
}

// Remove deletes the record optimistically. It reports false when the
// record did not exist.
func (w *Workspace) Remove(ctx context.Context, kind models.RecordKind, id string) (bool, error) {
	original, found, err := w.current(ctx, kind, id)
	if err != nil || !found {
		return false, err
	}
	token := w.apply(kind, id, nil)
	if err := w.store.Delete(ctx, kind.Collection(), id); err != nil {
		w.rollback(kind, id, token, original)
		w.logger.Warn("optimistic delete rolled back",
			zap.String("kind", string(kind)), zap.String("id", id), zap.Error(err))
		if w.observer != nil {
			w.observer.RecordRollback(string(kind))
		}
		return false, err
	}
	w.settle(kind, id, token, nil)
	return true, nil
}

func (w *Workspace) current(ctx context.Context, kind models.RecordKind, id string) (models.Record, bool, error) {
	if kind.Collection() == "" {
		return nil, false, fmt.Errorf("unknown record kind %q", kind)
	}
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return nil, false, ErrClosed
	}
	if state, ok := w.collections[kind]; ok && state.synced {
		rec, found := state.records[id]
		w.mu.RUnlock()
		return rec, found, nil
	}
	w.mu.RUnlock()

	doc, err := w.store.Get(ctx, kind.Collection(), id)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	rec, err := decode(kind, doc)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// persist re-applies fn to the stored copy inside a transaction so concurrent
// appends to history or comments are never lost.
func (w *Workspace) persist(ctx context.Context, kind models.RecordKind, id string, fn MutateFunc) (models.Record, error) {
	var committed models.Record
	err := w.store.RunTransaction(ctx, func(ctx context.Context, tx repository.Tx) error {
		doc, err := tx.Get(ctx, kind.Collection(), id)
		if err != nil {
			if errors.Is(err, repository.ErrDocumentNotFound) {
				return errGone
			}
			return err
		}
		rec, err := decode(kind, doc)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		if err := tx.Set(ctx, kind.Collection(), id, rec); err != nil {
			return err
		}
		committed = rec
		return nil
	})
	return committed, err
}

// apply writes value (nil removes) into the live copy and open views and
// returns the token identifying this optimistic write.
func (w *Workspace) apply(kind models.RecordKind, id string, value models.Record) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	token := w.seq
	if state, ok := w.collections[kind]; ok && state.synced {
		p := state.pending[id]
		if p == nil {
			p = &pendingWrites{confirmed: state.records[id], tokens: make(map[uint64]struct{})}
			state.pending[id] = p
		}
		p.tokens[token] = struct{}{}
		p.latest = token
		p.latestDone = false
		state.put(id, value)
	}
	w.publishLocked(kind, id, value)
	return token
}

// rollback restores the last confirmed value once the newest write for id
// has failed. Older writes resolving before that leave the newer optimistic
// value in place. A snapshot received since the write discards it.
func (w *Workspace) rollback(kind models.RecordKind, id string, token uint64, original models.Record) {
	w.resolve(kind, id, token, original, false)
}

// settle records committed as stored and shows it once no newer write is
// still pending.
func (w *Workspace) settle(kind models.RecordKind, id string, token uint64, committed models.Record) {
	w.resolve(kind, id, token, committed, true)
}

func (w *Workspace) resolve(kind models.RecordKind, id string, token uint64, value models.Record, stored bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	state, ok := w.collections[kind]
	if ok && state.synced {
		p := state.pending[id]
		if p == nil {
			return
		}
		if _, mine := p.tokens[token]; !mine {
			return
		}
		delete(p.tokens, token)
		if stored {
			p.confirmed = value
		} else {
			value = p.confirmed
		}
		if token == p.latest {
			p.latestDone = true
		} else if !p.latestDone {
			return
		}
		if len(p.tokens) == 0 {
			delete(state.pending, id)
		}
		state.put(id, value)
	}
	w.publishLocked(kind, id, value)
}

func (w *Workspace) applySnapshot(kind models.RecordKind, docs []repository.Document) {
	records := make(map[string]models.Record, len(docs))
	order := make([]string, 0, len(docs))
	for _, doc := range docs {
		rec, err := decode(kind, doc)
		if err != nil {
			w.logger.Warn("skipping undecodable record", zap.String("kind", string(kind)), zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		records[doc.ID] = rec
		order = append(order, doc.ID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	state, ok := w.collections[kind]
	if !ok || w.closed {
		return
	}
	previous := state.records
	state.records = records
	state.order = order
	state.pending = make(map[string]*pendingWrites)
	if !state.synced {
		state.synced = true
		close(state.ready)
	}

	for key := range w.views {
		if key.kind != kind {
			continue
		}
		rec, found := records[key.id]
		if !found {
			if _, existed := previous[key.id]; !existed {
				continue
			}
			rec = nil
		}
		w.publishLocked(kind, key.id, rec)
	}
}

func (s *collectionState) put(id string, value models.Record) {
	if value == nil {
		if _, ok := s.records[id]; !ok {
			return
		}
		delete(s.records, id)
		for i, existing := range s.order {
			if existing == id {
				s.order = append(s.order[:i:i], s.order[i+1:]...)
				break
			}
		}
		return
	}
	if _, ok := s.records[id]; !ok {
		s.order = append([]string{id}, s.order...)
	}
	s.records[id] = value.Clone()
}

// Synced reports whether kind's live copy has received a snapshot.
func (w *Workspace) Synced(kind models.RecordKind) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	state, ok := w.collections[kind]
	return ok && state.synced
}

func listQuery() repository.Query {
	return repository.Query{OrderBy: "createdAt", Descending: true}
}

func decode(kind models.RecordKind, doc repository.Document) (models.Record, error) {
	rec, ok := models.NewRecord(kind)
	if !ok {
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
	if err := doc.Decode(rec); err != nil {
		return nil, err
	}
	return rec, nil
}
