// Package store defines the entity store the indexers read and write
// through, plus typed helpers over its JSON records.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"wasmScope/internal/model"
)

// Record is one serialized entity.
type Record struct {
	Type string
	ID   string
	Data []byte
}

// Store is a key-value entity store with lookup by top-level JSON field.
type Store interface {
	Get(ctx context.Context, entityType, id string) ([]byte, bool, error)
	GetByField(ctx context.Context, entityType, field, value string) ([][]byte, error)
	// Set upserts records in order.
	Set(ctx context.Context, records ...Record) error
	Remove(ctx context.Context, entityType, id string) error
}

// CursorStore persists named feed positions.
type CursorStore interface {
	LoadCursor(ctx context.Context, name string) (model.Position, bool, error)
	SaveCursor(ctx context.Context, name string, pos model.Position) error
}

// RecordOf serializes an entity.
func RecordOf(e model.Entity) (Record, error) {
	if e.EntityID() == "" {
		return Record{}, fmt.Errorf("%s: empty id", e.EntityType())
	}
	data, err := json.Marshal(e)
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s %s: %w", e.EntityType(), e.EntityID(), err)
	}
	return Record{Type: e.EntityType(), ID: e.EntityID(), Data: data}, nil
}

// Save writes entities in order.
func Save(ctx context.Context, s Store, entities ...model.Entity) error {
	records := make([]Record, 0, len(entities))
	for _, e := range entities {
		rec, err := RecordOf(e)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	return s.Set(ctx, records...)
}

// Load reads the entity of type T with the given id.
func Load[T model.Entity](ctx context.Context, s Store, id string) (T, bool, error) {
	var out T
	data, ok, err := s.Get(ctx, out.EntityType(), id)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, false, fmt.Errorf("unmarshal %s %s: %w", out.EntityType(), id, err)
	}
	return out, true, nil
}

// FindBy returns every entity of type T whose field equals value.
func FindBy[T model.Entity](ctx context.Context, s Store, field, value string) ([]T, error) {
	var zero T
	rows, err := s.GetByField(ctx, zero.EntityType(), field, value)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, data := range rows {
		var item T
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", zero.EntityType(), err)
		}
		out = append(out, item)
	}
	return out, nil
}

// Count returns the number of entities of entityType whose field equals value.
func Count(ctx context.Context, s Store, entityType, field, value string) (int, error) {
	rows, err := s.GetByField(ctx, entityType, field, value)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
