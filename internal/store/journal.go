package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JournalEntry is one entity write as recorded in the journal file.
type JournalEntry struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Op        string          `json:"op"`
	Data      json.RawMessage `json:"data,omitempty"`
	WrittenAt string          `json:"written_at"`
}

// Journal wraps a Store and appends every successful write to a JSONL file.
type Journal struct {
	Store
	path string
	mu   sync.Mutex
}

func NewJournal(inner Store, path string) *Journal {
	return &Journal{Store: inner, path: path}
}

func (j *Journal) Set(ctx context.Context, records ...Record) error {
	if err := j.Store.Set(ctx, records...); err != nil {
		return err
	}
	entries := make([]JournalEntry, 0, len(records))
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, rec := range records {
		entries = append(entries, JournalEntry{Type: rec.Type, ID: rec.ID, Op: "set", Data: rec.Data, WrittenAt: now})
	}
	return j.append(entries)
}

func (j *Journal) Remove(ctx context.Context, entityType, id string) error {
	if err := j.Store.Remove(ctx, entityType, id); err != nil {
		return err
	}
	return j.append([]JournalEntry{{Type: entityType, ID: id, Op: "remove", WrittenAt: time.Now().UTC().Format(time.RFC3339Nano)}})
}

func (j *Journal) append(entries []JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	dir := filepath.Dir(j.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal journal entry: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write journal entry: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return nil
}
