package repository

import (
	"context"
	"errors"
)

// Collection is a typed view over one store collection. Documents are
// decoded into T with encoding/json.
type Collection[T any] struct {
	store Store
	name  string
}

// NewCollection binds name in store to T.
func NewCollection[T any](store Store, name string) *Collection[T] {
	return &Collection[T]{store: store, name: name}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Store returns the underlying store.
func (c *Collection[T]) Store() Store { return c.store }

// Get decodes one document. found is false when the document does not exist.
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, bool, error) {
	doc, err := c.store.Get(ctx, c.name, id)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	item, err := decodeAs[T](doc)
	if err != nil {
		return nil, false, err
	}
	return item, true, nil
}

// Add stores value under a generated id and returns the id.
func (c *Collection[T]) Add(ctx context.Context, value *T) (string, error) {
	return c.store.Add(ctx, c.name, value)
}

// Set overwrites the document at id.
func (c *Collection[T]) Set(ctx context.Context, id string, value *T) error {
	return c.store.Set(ctx, c.name, id, value)
}

// Update merges patch into the document at id.
func (c *Collection[T]) Update(ctx context.Context, id string, patch Patch) error {
	return c.store.Update(ctx, c.name, id, patch)
}

// Delete removes the document at id.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.store.Delete(ctx, c.name, id)
}

// List runs q and decodes every result.
func (c *Collection[T]) List(ctx context.Context, q Query) ([]T, error) {
	docs, err := c.store.Query(ctx, c.name, q)
	if err != nil {
		return nil, err
	}
	return DecodeAll[T](docs)
}

// Watch subscribes to q and delivers decoded snapshots. Undecodable
// documents are skipped and reported through onError when it is non-nil.
func (c *Collection[T]) Watch(ctx context.Context, q Query, fn func([]T), onError func(error)) (Unsubscribe, error) {
	return c.store.Subscribe(ctx, c.name, q, func(docs []Document) {
		items := make([]T, 0, len(docs))
		for _, doc := range docs {
			item, err := decodeAs[T](doc)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			items = append(items, *item)
		}
		fn(items)
	})
}

// GetTx decodes a document read inside a transaction.
func GetTx[T any](ctx context.Context, tx Tx, collection, id string) (*T, bool, error) {
	doc, err := tx.Get(ctx, collection, id)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	item, err := decodeAs[T](doc)
	if err != nil {
		return nil, false, err
	}
	return item, true, nil
}

// DecodeAll decodes docs in order.
func DecodeAll[T any](docs []Document) ([]T, error) {
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := decodeAs[T](doc)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

func decodeAs[T any](doc Document) (*T, error) {
	var item T
	if err := doc.Decode(&item); err != nil {
		return nil, err
	}
	return &item, nil
}
