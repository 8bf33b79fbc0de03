// Package memory is an in-process entity store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"wasmScope/internal/model"
	"wasmScope/internal/store"
)

// Store keeps records in maps. Top level scalar fields are indexed on write,
// so GetByField only touches matching records. They are returned in id order.
type Store struct {
	mu      sync.RWMutex
	records map[string]map[string]entry
	// index maps type, field and value to the ids holding that value.
	index   map[string]map[string]map[string]map[string]struct{}
	cursors map[string]model.Position
}

type entry struct {
	data   []byte
	fields map[string]string
}

func New() *Store {
	return &Store{
		records: make(map[string]map[string]entry),
		index:   make(map[string]map[string]map[string]map[string]struct{}),
		cursors: make(map[string]model.Position),
	}
}

func (s *Store) Get(_ context.Context, entityType, id string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[entityType][id]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), rec.data...), true, nil
}

func (s *Store) GetByField(_ context.Context, entityType, field, value string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := s.index[entityType][field][value]
	ids := make([]string, 0, len(matches))
	for id := range matches {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([][]byte, 0, len(ids))
	for _, id := range ids {
		out = append(out, append([]byte(nil), s.records[entityType][id].data...))
	}
	return out, nil
}

// indexedFields returns the top level scalar fields of a JSON object.
func indexedFields(data []byte) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		if text, ok := fieldText(value); ok {
			fields[key] = text
		}
	}
	return fields, nil
}

func fieldText(value any) (string, bool) {
	switch typed := value.(type) {
	case string:
		return typed, true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(typed), true
	default:
		return "", false
	}
}

func (s *Store) Set(_ context.Context, records ...store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		if rec.Type == "" || rec.ID == "" {
			return fmt.Errorf("record type and id are required")
		}
		fields, err := indexedFields(rec.Data)
		if err != nil {
			return fmt.Errorf("unmarshal %s %s: %w", rec.Type, rec.ID, err)
		}
		s.unindex(rec.Type, rec.ID)
		if s.records[rec.Type] == nil {
			s.records[rec.Type] = make(map[string]entry)
		}
		s.records[rec.Type][rec.ID] = entry{data: append([]byte(nil), rec.Data...), fields: fields}

		byField := s.index[rec.Type]
		if byField == nil {
			byField = make(map[string]map[string]map[string]struct{})
			s.index[rec.Type] = byField
		}
		for field, value := range fields {
			byValue := byField[field]
			if byValue == nil {
				byValue = make(map[string]map[string]struct{})
				byField[field] = byValue
			}
			if byValue[value] == nil {
				byValue[value] = make(map[string]struct{})
			}
			byValue[value][rec.ID] = struct{}{}
		}
	}
	return nil
}

func (s *Store) Remove(_ context.Context, entityType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unindex(entityType, id)
	delete(s.records[entityType], id)
	return nil
}

// unindex drops the index entries of the stored record, if any. Callers
// hold the write lock.
func (s *Store) unindex(entityType, id string) {
	old, ok := s.records[entityType][id]
	if !ok {
		return
	}
	for field, value := range old.fields {
		ids := s.index[entityType][field][value]
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.index[entityType][field], value)
		}
	}
}

// Len returns the number of records of entityType.
func (s *Store) Len(entityType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[entityType])
}

func (s *Store) LoadCursor(_ context.Context, name string) (model.Position, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.cursors[name]
	return pos, ok, nil
}

func (s *Store) SaveCursor(_ context.Context, name string, pos model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[name] = pos
	return nil
}
