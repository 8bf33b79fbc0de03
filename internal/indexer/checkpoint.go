package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"wasmScope/internal/model"
	"wasmScope/internal/store"
)

// Checkpointer persists the position of the last processed message.
type Checkpointer interface {
	Load(ctx context.Context) (model.Position, bool, error)
	Save(ctx context.Context, pos model.Position) error
}

// Checkpoint tracks the last processed feed position.
type Checkpoint struct {
	LastProcessed model.Position `json:"last_processed"`
	UpdatedAt     string         `json:"updated_at"`
}

// CheckpointStore persists checkpoints to disk.
type CheckpointStore struct {
	path    string
	enabled bool
}

func NewCheckpointStore(path string, enabled bool) *CheckpointStore {
	return &CheckpointStore{path: path, enabled: enabled}
}

func (c *CheckpointStore) Load(context.Context) (model.Position, bool, error) {
	if !c.enabled {
		return model.Position{}, false, nil
	}

	stat, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Position{}, false, nil
		}
		return model.Position{}, false, fmt.Errorf("stat checkpoint: %w", err)
	}
	if stat.IsDir() {
		return model.Position{}, false, fmt.Errorf("checkpoint path is a directory")
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return model.Position{}, false, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return model.Position{}, false, fmt.Errorf("parse checkpoint: %w", err)
	}

	return cp.LastProcessed, true, nil
}

func (c *CheckpointStore) Save(_ context.Context, pos model.Position) error {
	if !c.enabled {
		return nil
	}

	dir := filepath.Dir(c.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	cp := Checkpoint{
		LastProcessed: pos,
		UpdatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}

	return nil
}

// CursorCheckpoint keeps the checkpoint in the entity store's cursor table,
// next to the entities it describes.
type CursorCheckpoint struct {
	cursors store.CursorStore
	name    string
}

func NewCursorCheckpoint(cursors store.CursorStore, name string) *CursorCheckpoint {
	return &CursorCheckpoint{cursors: cursors, name: name}
}

func (c *CursorCheckpoint) Load(ctx context.Context) (model.Position, bool, error) {
	pos, ok, err := c.cursors.LoadCursor(ctx, c.name)
	if err != nil {
		return model.Position{}, false, fmt.Errorf("load cursor %s: %w", c.name, err)
	}
	return pos, ok, nil
}

func (c *CursorCheckpoint) Save(ctx context.Context, pos model.Position) error {
	if err := c.cursors.SaveCursor(ctx, c.name, pos); err != nil {
		return fmt.Errorf("save cursor %s: %w", c.name, err)
	}
	return nil
}
