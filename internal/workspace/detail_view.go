package workspace

import (
	"context"
	"sync"

	"github.com/noah-isme/factory-ops-api/internal/models"
)

// DetailView holds its own copy of one record, kept current by optimistic
// writes, rollbacks and snapshots. A nil value means the record is absent.
type DetailView struct {
	ws      *Workspace
	key     viewKey
	mu      sync.Mutex
	current models.Record
	updates chan models.Record
	closed  bool
}

// OpenDetail opens a view on a record. found is false when it does not exist;
// the view is still returned and will observe the record if it appears.
func (w *Workspace) OpenDetail(ctx context.Context, kind models.RecordKind, id string) (*DetailView, bool, error) {
	rec, found, err := w.current(ctx, kind, id)
	if err != nil {
		return nil, false, err
	}
	v := &DetailView{ws: w, key: viewKey{kind: kind, id: id}, updates: make(chan models.Record, 1)}
	if found {
		v.current = rec.Clone()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, false, ErrClosed
	}
	if w.views[v.key] == nil {
		w.views[v.key] = make(map[*DetailView]struct{})
	}
	w.views[v.key][v] = struct{}{}
	return v, found, nil
}

// Current returns a copy of the view's record, or nil.
func (v *DetailView) Current() models.Record {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return nil
	}
	return v.current.Clone()
}

// Updates delivers the latest value after every change. Intermediate values
// may be skipped; the channel is closed by Close.
func (v *DetailView) Updates() <-chan models.Record {
	return v.updates
}

// Close detaches the view. It is safe to call twice.
func (v *DetailView) Close() {
	v.ws.mu.Lock()
	if set := v.ws.views[v.key]; set != nil {
		delete(set, v)
		if len(set) == 0 {
			delete(v.ws.views, v.key)
		}
	}
	v.ws.mu.Unlock()

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	close(v.updates)
}

func (v *DetailView) set(rec models.Record) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if rec != nil {
		rec = rec.Clone()
	}
	v.current = rec
	select {
	case <-v.updates:
	default:
	}
	var out models.Record
	if rec != nil {
		out = rec.Clone()
	}
	v.updates <- out
}

// publishLocked pushes value to every open view of the record; callers hold w.mu.
func (w *Workspace) publishLocked(kind models.RecordKind, id string, value models.Record) {
	for v := range w.views[viewKey{kind: kind, id: id}] {
		v.set(value)
	}
}
