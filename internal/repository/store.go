package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	// ErrDocumentNotFound is returned when a document id does not exist in its collection.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrTxConflict marks a transaction attempt that lost a write race.
	ErrTxConflict = errors.New("transaction conflict")
	// ErrTxAborted is returned once a transaction exhausted its retry budget.
	ErrTxAborted = errors.New("transaction aborted after retries")
	// ErrInvalidField is returned for field names that are not plain identifiers.
	ErrInvalidField = errors.New("invalid field name")
)

// DefaultMaxAttempts bounds transaction retries when a store is not configured otherwise.
const DefaultMaxAttempts = 5

// Document is a stored JSON object keyed by id within a collection.
type Document struct {
	ID        string          `db:"id"`
	Data      json.RawMessage `db:"data"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// Decode unmarshals the document body into dest.
func (d Document) Decode(dest interface{}) error {
	if err := json.Unmarshal(d.Data, dest); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// Patch is a partial update of top-level fields. Values are replaced unless
// they are an ArrayUnion.
type Patch map[string]interface{}

// ArrayUnion appends values missing from an array field, treating it as a set.
type ArrayUnion struct {
	Values []interface{}
}

// Union builds an ArrayUnion patch value.
func Union(values ...interface{}) ArrayUnion {
	return ArrayUnion{Values: values}
}

// Op is a query comparison operator.
type Op string

const (
	OpEq            Op = "=="
	OpGt            Op = ">"
	OpGte           Op = ">="
	OpLt            Op = "<"
	OpLte           Op = "<="
	OpArrayContains Op = "array-contains"
)

// Filter constrains one field. time.Time values compare chronologically.
type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

// Where is shorthand for constructing a Filter.
func Where(field string, op Op, value interface{}) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query selects documents within a collection.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// SnapshotFunc receives the full result set of a live query.
type SnapshotFunc func([]Document)

// Unsubscribe releases a live query.
type Unsubscribe func()

// Tx is the view of the store inside RunTransaction. Reads see the
// transaction's own writes.
type Tx interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, data interface{}) error
	Update(ctx context.Context, collection, id string, patch Patch) error
}

// Batch accumulates writes committed atomically.
type Batch interface {
	Set(collection, id string, data interface{})
	Update(collection, id string, patch Patch)
	Delete(collection, id string)
	Len() int
	Commit(ctx context.Context) error
}

// Store is a document database with live queries, transactions and batched writes.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Add(ctx context.Context, collection string, data interface{}) (string, error)
	Set(ctx context.Context, collection, id string, data interface{}) error
	Update(ctx context.Context, collection, id string, patch Patch) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	Subscribe(ctx context.Context, collection string, q Query, fn SnapshotFunc) (Unsubscribe, error)
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Batch() Batch
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func validateField(field string) error {
	if !fieldPattern.MatchString(field) {
		return fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	return nil
}

func validateQuery(q Query) error {
	for _, f := range q.Filters {
		if err := validateField(f.Field); err != nil {
			return err
		}
		switch f.Op {
		case OpEq, OpGt, OpGte, OpLt, OpLte, OpArrayContains:
		default:
			return fmt.Errorf("unsupported operator %q", f.Op)
		}
	}
	if q.OrderBy != "" {
		return validateField(q.OrderBy)
	}
	return nil
}

// encodeObject marshals data and checks that it is a JSON object.
func encodeObject(data interface{}) (json.RawMessage, error) {
	if raw, ok := data.(json.RawMessage); ok {
		var probe map[string]interface{}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("document must be a JSON object: %w", err)
		}
		return raw, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if len(raw) == 0 || raw[0] != '{' {
		return nil, errors.New("document must be a JSON object")
	}
	return raw, nil
}

// withID returns the object with its "id" field set.
func withID(raw json.RawMessage, id string) (json.RawMessage, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	obj["id"] = id
	return json.Marshal(obj)
}

// normalize converts a Go value into its generic JSON form.
func normalize(v interface{}) (interface{}, error) {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// applyPatch merges patch into the JSON object raw.
func applyPatch(raw json.RawMessage, patch Patch) (json.RawMessage, error) {
	obj := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("decode for patch: %w", err)
		}
	}
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := validateField(key); err != nil {
			return nil, err
		}
		switch v := patch[key].(type) {
		case ArrayUnion:
			current, _ := obj[key].([]interface{})
			merged := append([]interface{}{}, current...)
			for _, value := range v.Values {
				norm, err := normalize(value)
				if err != nil {
					return nil, fmt.Errorf("normalize %s: %w", key, err)
				}
				if !containsValue(merged, norm) {
					merged = append(merged, norm)
				}
			}
			obj[key] = merged
		default:
			norm, err := normalize(v)
			if err != nil {
				return nil, fmt.Errorf("normalize %s: %w", key, err)
			}
			obj[key] = norm
		}
	}
	return json.Marshal(obj)
}

func containsValue(list []interface{}, v interface{}) bool {
	for _, item := range list {
		if reflect.DeepEqual(item, v) {
			return true
		}
	}
	return false
}

// matches evaluates filters against a decoded document.
func matches(obj map[string]interface{}, filters []Filter) bool {
	for _, f := range filters {
		field, ok := obj[f.Field]
		if f.Op == OpArrayContains {
			list, isList := field.([]interface{})
			norm, err := normalize(f.Value)
			if !ok || !isList || err != nil || !containsValue(list, norm) {
				return false
			}
			continue
		}
		if !ok {
			return false
		}
		cmp, comparable := compareValues(field, f.Value)
		if !comparable {
			return false
		}
		switch f.Op {
		case OpEq:
			if cmp != 0 {
				return false
			}
		case OpGt:
			if cmp <= 0 {
				return false
			}
		case OpGte:
			if cmp < 0 {
				return false
			}
		case OpLt:
			if cmp >= 0 {
				return false
			}
		case OpLte:
			if cmp > 0 {
				return false
			}
		}
	}
	return true
}

// compareValues compares a stored generic value with a filter value.
func compareValues(stored, want interface{}) (int, bool) {
	if t, ok := want.(time.Time); ok {
		s, isString := stored.(string)
		if !isString {
			return 0, false
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return 0, false
		}
		return parsed.Compare(t), true
	}
	norm, err := normalize(want)
	if err != nil {
		return 0, false
	}
	switch w := norm.(type) {
	case float64:
		s, ok := stored.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case s < w:
			return -1, true
		case s > w:
			return 1, true
		}
		return 0, true
	case string:
		s, ok := stored.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(s, w), true
	default:
		if reflect.DeepEqual(stored, norm) {
			return 0, true
		}
		return 1, false
	}
}

// sortValues orders two stored values; times stored as RFC3339 strings sort chronologically.
func sortValues(a, b interface{}) int {
	switch av := a.(type) {
	case nil:
		if b == nil {
			return 0
		}
		return -1
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case string:
		if bv, ok := b.(string); ok {
			at, errA := time.Parse(time.RFC3339Nano, av)
			bt, errB := time.Parse(time.RFC3339Nano, bv)
			if errA == nil && errB == nil {
				return at.Compare(bt)
			}
			return strings.Compare(av, bv)
		}
	}
	if b == nil {
		return 1
	}
	ra, _ := json.Marshal(a)
	rb, _ := json.Marshal(b)
	return bytes.Compare(ra, rb)
}

// runQuery filters, orders and limits decoded documents in memory.
func runQuery(docs []Document, q Query) ([]Document, error) {
	type row struct {
		doc Document
		obj map[string]interface{}
	}
	rows := make([]row, 0, len(docs))
	for _, d := range docs {
		var obj map[string]interface{}
		if err := json.Unmarshal(d.Data, &obj); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", d.ID, err)
		}
		if matches(obj, q.Filters) {
			rows = append(rows, row{doc: d, obj: obj})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if q.OrderBy != "" {
			c := sortValues(rows[i].obj[q.OrderBy], rows[j].obj[q.OrderBy])
			if c != 0 {
				if q.Descending {
					return c > 0
				}
				return c < 0
			}
		}
		return rows[i].doc.ID < rows[j].doc.ID
	})
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	out := make([]Document, len(rows))
	for i, r := range rows {
		out[i] = r.doc
	}
	return out, nil
}
