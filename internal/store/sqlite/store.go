// Package sqlite is an embedded entity store backed by gorm and a pure Go
// sqlite driver.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"wasmScope/internal/model"
	"wasmScope/internal/store"
)

type entityRow struct {
	EntityType string `gorm:"primaryKey"`
	ID         string `gorm:"primaryKey"`
	Data       string `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (entityRow) TableName() string { return "entities" }

type cursorRow struct {
	Name      string `gorm:"primaryKey"`
	Height    uint64
	TxIndex   uint32
	TxHash    string
	MsgIndex  int
	UpdatedAt time.Time
}

func (cursorRow) TableName() string { return "indexer_state" }

// Store keeps entities in a single sqlite file.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at path. An empty path or
// ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := "file::memory:"
	if path != "" && path != ":memory:" {
		dir := filepath.Dir(path)
		if _, err := os.Stat(dir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read data dir: %w", err)
			}
			if err := os.MkdirAll(dir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, err
	}
	if path == "" || path == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&entityRow{}, &cursorRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Get(ctx context.Context, entityType, id string) ([]byte, bool, error) {
	var row entityRow
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND id = ?", entityType, id).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(row.Data), true, nil
}

func (s *Store) GetByField(ctx context.Context, entityType, field, value string) ([][]byte, error) {
	var rows []entityRow
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND json_extract(data, ?) = ?", entityType, "$."+field, value).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(rows))
	for _, row := range rows {
		out = append(out, []byte(row.Data))
	}
	return out, nil
}

// Set upserts records inside one transaction.
func (s *Store) Set(ctx context.Context, records ...store.Record) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]entityRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, entityRow{EntityType: rec.Type, ID: rec.ID, Data: string(rec.Data), CreatedAt: now, UpdatedAt: now})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "entity_type"}, {Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
			}).Create(&rows[i]).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Remove(ctx context.Context, entityType, id string) error {
	return s.db.WithContext(ctx).
		Where("entity_type = ? AND id = ?", entityType, id).
		Delete(&entityRow{}).Error
}

func (s *Store) LoadCursor(ctx context.Context, name string) (model.Position, bool, error) {
	var row cursorRow
	err := s.db.WithContext(ctx).Where("name = ?", name).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Position{}, false, nil
		}
		return model.Position{}, false, err
	}
	return model.Position{Height: row.Height, TxIndex: row.TxIndex, TxHash: row.TxHash, MsgIndex: row.MsgIndex}, true, nil
}

func (s *Store) SaveCursor(ctx context.Context, name string, pos model.Position) error {
	row := cursorRow{
		Name:      name,
		Height:    pos.Height,
		TxIndex:   pos.TxIndex,
		TxHash:    pos.TxHash,
		MsgIndex:  pos.MsgIndex,
		UpdatedAt: time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"height", "tx_index", "tx_hash", "msg_index", "updated_at"}),
	}).Create(&row).Error
}
