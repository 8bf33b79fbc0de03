package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wasmScope/internal/model"
	"wasmScope/internal/store"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS entities (
		entity_type TEXT NOT NULL,
		id TEXT NOT NULL,
		data JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (entity_type, id)
	)`,
	`CREATE INDEX IF NOT EXISTS entities_secondary_id_idx ON entities (entity_type, (data->>'secondary_id'))`,
	`CREATE INDEX IF NOT EXISTS entities_contract_address_idx ON entities (entity_type, (data->>'contract_address'))`,
	`CREATE TABLE IF NOT EXISTS indexer_state (
		name TEXT PRIMARY KEY,
		height BIGINT NOT NULL,
		tx_index BIGINT NOT NULL,
		msg_index BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`ALTER TABLE indexer_state ADD COLUMN IF NOT EXISTS tx_hash TEXT NOT NULL DEFAULT ''`,
}

// Store provides Postgres persistence for entities and feed cursors.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables the store needs.
func (s *Store) Migrate(ctx context.Context) error {
	batch := &pgx.Batch{}
	for _, stmt := range schemaStatements {
		batch.Queue(stmt)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range schemaStatements {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, entityType, id string) ([]byte, bool, error) {
	var data []byte
	row := s.pool.QueryRow(ctx, `SELECT data FROM entities WHERE entity_type=$1 AND id=$2`, entityType, id)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *Store) GetByField(ctx context.Context, entityType, field, value string) ([][]byte, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data FROM entities
		WHERE entity_type=$1 AND data->>$2 = $3
		ORDER BY id
	`, entityType, field, value)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) ([]byte, error) {
		var data []byte
		err := row.Scan(&data)
		return data, err
	})
}

// Set upserts records. Multiple records are sent as one batch.
func (s *Store) Set(ctx context.Context, records ...store.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO entities (entity_type, id, data, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
			ON CONFLICT (entity_type, id)
			DO UPDATE SET data = EXCLUDED.data, updated_at = now()
		`, rec.Type, rec.ID, string(rec.Data))
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, entityType, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM entities WHERE entity_type=$1 AND id=$2`, entityType, id)
	return err
}

// LoadCursor returns the last processed position for a name.
func (s *Store) LoadCursor(ctx context.Context, name string) (model.Position, bool, error) {
	if name == "" {
		return model.Position{}, false, fmt.Errorf("state name required")
	}
	var (
		height, txIndex, msgIndex int64
		txHash                    string
	)
	row := s.pool.QueryRow(ctx, `SELECT height, tx_index, tx_hash, msg_index FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&height, &txIndex, &txHash, &msgIndex); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Position{}, false, nil
		}
		return model.Position{}, false, err
	}
	return model.Position{Height: uint64(height), TxIndex: uint32(txIndex), TxHash: txHash, MsgIndex: int(msgIndex)}, true, nil
}

// SaveCursor upserts the last processed position for a name.
func (s *Store) SaveCursor(ctx context.Context, name string, pos model.Position) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, height, tx_index, tx_hash, msg_index, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (name) DO UPDATE
		SET height = EXCLUDED.height, tx_index = EXCLUDED.tx_index, tx_hash = EXCLUDED.tx_hash,
			msg_index = EXCLUDED.msg_index, updated_at = now()
	`, name, int64(pos.Height), int64(pos.TxIndex), pos.TxHash, int64(pos.MsgIndex))
	return err
}
