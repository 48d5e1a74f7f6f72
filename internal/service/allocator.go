package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/factory-ops-api/internal/models"
	"github.com/noah-isme/factory-ops-api/internal/repository"
	appErrors "github.com/noah-isme/factory-ops-api/pkg/errors"
)

// Sequence names a counter document and how its values become record ids.
type Sequence struct {
	CounterKey string
	Format     func(n int, at time.Time) string
}

// Record id sequences.
var (
	JigRequestSequence = Sequence{
		CounterKey: models.CounterJigRequests,
		Format:     func(n int, _ time.Time) string { return fmt.Sprintf("T%d", n) },
	}
	SampleRequestSequence = Sequence{
		CounterKey: models.CounterSampleRequests,
		Format:     func(n int, at time.Time) string { return fmt.Sprintf("S-%s-%03d", at.Format("20060102"), n) },
	}
	ProductionRequestSequence = Sequence{
		CounterKey: models.CounterProductionRequests,
		Format:     func(n int, at time.Time) string { return fmt.Sprintf("P-%s-%03d", at.Format("060102"), n) },
	}
)

// BuildFunc constructs the record stored under a freshly allocated id.
type BuildFunc func(id string, at time.Time) (models.Record, error)

// Allocator hands out sequential ids. The counter increment and the new
// record are written in the same transaction, so neither exists without the other.
type Allocator struct {
	store    repository.Store
	location *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

// NewAllocator constructs an allocator. Date parts of ids use location.
func NewAllocator(store repository.Store, location *time.Location, logger *zap.Logger) *Allocator {
	if location == nil {
		location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allocator{store: store, location: location, now: time.Now, logger: logger}
}

// Allocate increments seq's counter, builds the record for the resulting id
// and stores both atomically. Exhausted retries surface as ErrContention.
func (a *Allocator) Allocate(ctx context.Context, seq Sequence, build BuildFunc) (models.Record, error) {
	var created models.Record
	err := a.store.RunTransaction(ctx, func(ctx context.Context, tx repository.Tx) error {
		counter, found, err := repository.GetTx[models.Counter](ctx, tx, models.CollectionCounters, seq.CounterKey)
		if err != nil {
			return err
		}
		if !found {
			counter = &models.Counter{}
		}
		next := counter.Count + 1
		at := a.now()
		id := seq.Format(next, at.In(a.location))

		rec, err := build(id, at.UTC())
		if err != nil {
			return err
		}
		collection := rec.Kind().Collection()
		if _, err := tx.Get(ctx, collection, id); err == nil {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("%s %s already exists; counter %s is behind", rec.Kind().Label(), id, seq.CounterKey))
		} else if !errors.Is(err, repository.ErrDocumentNotFound) {
			return err
		}

		if err := tx.Set(ctx, models.CollectionCounters, seq.CounterKey, models.Counter{Count: next}); err != nil {
			return err
		}
		if err := tx.Set(ctx, collection, id, rec); err != nil {
			return err
		}
		created = rec
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrTxAborted) {
			a.logger.Warn("id allocation contended", zap.String("counter", seq.CounterKey), zap.Error(err))
			return nil, appErrors.WrapAs(appErrors.ErrContention, err, "")
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.WrapAs(appErrors.ErrServiceUnavailable, err, "failed to allocate id")
	}
	return created, nil
}

// Peek returns the current counter value without incrementing it.
func (a *Allocator) Peek(ctx context.Context, seq Sequence) (int, error) {
	counter, found, err := repository.NewCollection[models.Counter](a.store, models.CollectionCounters).Get(ctx, seq.CounterKey)
	if err != nil || !found {
		return 0, err
	}
	return counter.Count, nil
}
