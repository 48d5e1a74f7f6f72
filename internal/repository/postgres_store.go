package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ChangePublisher announces that a collection changed after a commit.
type ChangePublisher interface {
	Publish(ctx context.Context, collection string) error
}

// PostgresStore keeps documents as JSONB rows in the documents table.
type PostgresStore struct {
	db          *sqlx.DB
	hub         *changeHub
	publisher   ChangePublisher
	maxAttempts int
	logger      *zap.Logger
}

// PostgresStoreConfig configures a PostgresStore.
type PostgresStoreConfig struct {
	MaxAttempts int
	// Publisher distributes change signals to other processes. When nil,
	// changes are only delivered to live queries in this process.
	Publisher ChangePublisher
	Logger    *zap.Logger
}

// NewPostgresStore constructs the store.
func NewPostgresStore(db *sqlx.DB, cfg PostgresStoreConfig) *PostgresStore {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &PostgresStore{db: db, publisher: cfg.Publisher, maxAttempts: cfg.MaxAttempts, logger: cfg.Logger}
	s.hub = newChangeHub(s.Query, cfg.Logger)
	return s
}

// Notify wakes live queries on collection. Change feeds call it for remote commits.
func (s *PostgresStore) Notify(collection string) {
	s.hub.notify(collection)
}

const selectDocument = `SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1 AND id = $2`

const upsertDocument = `INSERT INTO documents (collection, id, data, created_at, updated_at)
VALUES ($1, $2, $3, NOW(), NOW())
ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`

const updateDocument = `UPDATE documents SET data = $3, updated_at = NOW() WHERE collection = $1 AND id = $2`

const deleteDocument = `DELETE FROM documents WHERE collection = $1 AND id = $2`

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var doc Document
	if err := s.db.GetContext(ctx, &doc, selectDocument, collection, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrDocumentNotFound)
		}
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *PostgresStore) Add(ctx context.Context, collection string, data interface{}) (string, error) {
	raw, err := encodeObject(data)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if raw, err = withID(raw, id); err != nil {
		return "", err
	}
	if _, err := s.db.ExecContext(ctx, upsertDocument, collection, id, []byte(raw)); err != nil {
		return "", fmt.Errorf("add %s: %w", collection, err)
	}
	s.changed(ctx, collection)
	return id, nil
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, data interface{}) error {
	raw, err := encodeObject(data)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, upsertDocument, collection, id, []byte(raw)); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	s.changed(ctx, collection)
	return nil
}

// Update applies patch under a row lock so concurrent array unions never lose elements.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, patch Patch) error {
	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Update(ctx, collection, id, patch)
	})
	return err
}

// Delete removes a document; deleting a missing document is not an error.
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx, deleteDocument, collection, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	s.changed(ctx, collection)
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	query, args, err := buildSelect(collection, q)
	if err != nil {
		return nil, err
	}
	var docs []Document
	if err := s.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return docs, nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, collection string, q Query, fn SnapshotFunc) (Unsubscribe, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	return s.hub.subscribe(ctx, collection, q, fn), nil
}

// RunTransaction executes fn at SERIALIZABLE isolation, retrying on
// serialization failures, deadlocks and insert races on the primary key.
func (s *PostgresStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		touched, err := s.runOnce(ctx, fn)
		if err == nil {
			for _, c := range sortedKeys(touched) {
				s.changed(ctx, c)
			}
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
		s.logger.Debug("transaction conflict, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
		if err := sleepContext(ctx, time.Duration(attempt+1)*10*time.Millisecond); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrTxAborted, lastErr)
}

func (s *PostgresStore) runOnce(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (map[string]struct{}, error) {
	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	tx := &postgresTx{tx: sqlTx, touched: make(map[string]struct{})}
	if err := fn(ctx, tx); err != nil {
		_ = sqlTx.Rollback()
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return tx.touched, nil
}

func (s *PostgresStore) Batch() Batch {
	return &postgresBatch{store: s}
}

func (s *PostgresStore) changed(ctx context.Context, collection string) {
	if s.publisher == nil {
		s.hub.notify(collection)
		return
	}
	if err := s.publisher.Publish(ctx, collection); err != nil {
		s.logger.Warn("publish change failed, notifying locally", zap.String("collection", collection), zap.Error(err))
		s.hub.notify(collection)
	}
}

type postgresTx struct {
	tx      *sqlx.Tx
	touched map[string]struct{}
}

func (t *postgresTx) Get(ctx context.Context, collection, id string) (Document, error) {
	var doc Document
	if err := t.tx.GetContext(ctx, &doc, selectDocument+" FOR UPDATE", collection, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrDocumentNotFound)
		}
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (t *postgresTx) Set(ctx context.Context, collection, id string, data interface{}) error {
	raw, err := encodeObject(data)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, upsertDocument, collection, id, []byte(raw)); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	t.touched[collection] = struct{}{}
	return nil
}

func (t *postgresTx) Update(ctx context.Context, collection, id string, patch Patch) error {
	doc, err := t.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	raw, err := applyPatch(doc.Data, patch)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, updateDocument, collection, id, []byte(raw)); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	t.touched[collection] = struct{}{}
	return nil
}

type postgresBatch struct {
	store *PostgresStore
	ops   []batchOp
}

func (b *postgresBatch) Set(collection, id string, data interface{}) {
	b.ops = append(b.ops, batchOp{kind: "set", collection: collection, id: id, data: data})
}

func (b *postgresBatch) Update(collection, id string, patch Patch) {
	b.ops = append(b.ops, batchOp{kind: "update", collection: collection, id: id, patch: patch})
}

func (b *postgresBatch) Delete(collection, id string) {
	b.ops = append(b.ops, batchOp{kind: "delete", collection: collection, id: id})
}

func (b *postgresBatch) Len() int { return len(b.ops) }

// Commit runs every operation in one transaction.
func (b *postgresBatch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	return b.store.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		pgTx := tx.(*postgresTx)
		for _, op := range b.ops {
			var err error
			switch op.kind {
			case "set":
				err = pgTx.Set(ctx, op.collection, op.id, op.data)
			case "update":
				err = pgTx.Update(ctx, op.collection, op.id, op.patch)
			case "delete":
				if _, err = pgTx.tx.ExecContext(ctx, deleteDocument, op.collection, op.id); err == nil {
					pgTx.touched[op.collection] = struct{}{}
				}
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// timestampFields are the record fields holding RFC 3339 timestamps.
var timestampFields = map[string]bool{
	"createdAt":   true,
	"updatedAt":   true,
	"date":        true,
	"generatedAt": true,
}

// buildSelect compiles a Query into SQL over the JSONB data column. Field
// names are passed as parameters, never interpolated.
func buildSelect(collection string, q Query) (string, []interface{}, error) {
	if err := validateQuery(q); err != nil {
		return "", nil, err
	}
	var b strings.Builder
	args := []interface{}{collection}
	b.WriteString("SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1")

	param := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, f := range q.Filters {
		field := param(f.Field)
		if f.Op == OpArrayContains {
			norm, err := normalize(f.Value)
			if err != nil {
				return "", nil, err
			}
			raw, _ := json.Marshal([]interface{}{norm})
			b.WriteString(fmt.Sprintf(" AND data->%s @> %s::jsonb", field, param(string(raw))))
			continue
		}
		op := string(f.Op)
		if f.Op == OpEq {
			op = "="
		}
		switch v := f.Value.(type) {
		case time.Time:
			b.WriteString(fmt.Sprintf(" AND (data->>%s)::timestamptz %s %s", field, op, param(v.UTC())))
		case int, int32, int64, float32, float64:
			b.WriteString(fmt.Sprintf(" AND (data->>%s)::numeric %s %s", field, op, param(v)))
		case string:
			b.WriteString(fmt.Sprintf(" AND data->>%s %s %s", field, op, param(v)))
		default:
			if f.Op != OpEq {
				return "", nil, fmt.Errorf("operator %s unsupported for %T", f.Op, v)
			}
			raw, err := json.Marshal(v)
			if err != nil {
				return "", nil, err
			}
			b.WriteString(fmt.Sprintf(" AND data->%s = %s::jsonb", field, param(string(raw))))
		}
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		key := fmt.Sprintf("data->>%s", param(q.OrderBy))
		if timestampFields[q.OrderBy] {
			// RFC 3339 text drops trailing zero fractions and does not sort lexically.
			key = "(" + key + ")::timestamptz"
		}
		b.WriteString(fmt.Sprintf(" ORDER BY %s %s, id ASC", key, dir))
	} else {
		b.WriteString(" ORDER BY id ASC")
	}
	if q.Limit > 0 {
		b.WriteString(fmt.Sprintf(" LIMIT %d", q.Limit))
	}
	return b.String(), args, nil
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "23505":
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
