// Package docstore is the narrow surface the room logic needs from a hosted
// document database: create, get, query, merge-update and, where the backend
// supports it, change subscriptions.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrUnsupported = errors.New("operation not supported by this store")
	ErrClosed      = errors.New("store closed")
)

// Fields is a JSON-compatible field mapping.
type Fields map[string]any

// Document is a stored record. ID is the store's own primary key.
type Document struct {
	ID     string `json:"id"`
	Fields Fields `json:"fields"`
}

// Predicate filters Query results. Only equality is needed by callers.
type Predicate struct {
	Field string
	Value any
}

// Equal matches documents whose field equals v (compared on the JSON form).
func Equal(field string, v any) Predicate { return Predicate{Field: field, Value: v} }

// Store is implemented by every backend.
//
// Create stores fields under key when the backend lets callers pick document
// keys; backends minting their own keys ignore it. Update merges fields into the
// existing document (unmentioned fields are left alone) and returns the merged
// document. Subscribe and SubscribeAll deliver full snapshots; a slow callback
// may miss intermediate states but always sees the latest one.
type Store interface {
	Create(ctx context.Context, collection, key string, fields Fields) (*Document, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, collection string, preds ...Predicate) ([]*Document, error)
	Update(ctx context.Context, collection, id string, fields Fields) (*Document, error)
	Subscribe(ctx context.Context, collection, id string, fn func(*Document)) (func(), error)
	SubscribeAll(ctx context.Context, collection string, fn func(*Document)) (func(), error)
}

// Normalize round-trips fields through JSON so that every backend hands back the
// same value shapes (float64 numbers, []any arrays, map[string]any objects).
func Normalize(f Fields) (Fields, error) {
	if f == nil {
		return Fields{}, nil
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	var out Fields
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if out == nil {
		out = Fields{}
	}
	return out, nil
}

// Merge copies patch over base in place and returns base.
func Merge(base, patch Fields) Fields {
	if base == nil {
		base = Fields{}
	}
	for k, v := range patch {
		base[k] = v
	}
	return base
}

// Matches reports whether all predicates hold for f.
func Matches(f Fields, preds ...Predicate) bool {
	for _, p := range preds {
		got, ok := f[p.Field]
		if !ok {
			return false
		}
		if !sameJSON(got, p.Value) {
			return false
		}
	}
	return true
}

func sameJSON(a, b any) bool {
	ra, err := json.Marshal(a)
	if err != nil {
		return false
	}
	rb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ra) == string(rb)
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	f, err := Normalize(d.Fields)
	if err != nil {
		f = Fields{}
		for k, v := range d.Fields {
			f[k] = v
		}
	}
	return &Document{ID: d.ID, Fields: f}
}
