package chain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when the chain has no record of a contract.
var ErrNotFound = errors.New("not found")

// Operation is the kind of a contract code history entry.
type Operation int

const (
	OperationUnspecified Operation = 0
	OperationInit        Operation = 1
	OperationMigrate     Operation = 2
	OperationGenesis     Operation = 3
)

func (o Operation) String() string {
	switch o {
	case OperationInit:
		return "Init"
	case OperationMigrate:
		return "Migrate"
	case OperationGenesis:
		return "Genesis"
	default:
		return "Unspecified"
	}
}

// Contract is the metadata of an instantiated contract.
type Contract struct {
	Address string `json:"address"`
	CodeID  uint64 `json:"code_id"`
	Creator string `json:"creator"`
	Admin   string `json:"admin"`
	Label   string `json:"label"`
}

// CodeHistoryEntry is one instantiate or migrate step of a contract.
type CodeHistoryEntry struct {
	Operation Operation       `json:"operation"`
	CodeID    uint64          `json:"code_id"`
	Msg       json.RawMessage `json:"msg"`
}

// Block is the subset of a block header the indexers use.
type Block struct {
	Height uint64    `json:"height"`
	Time   time.Time `json:"time"`
}

// Querier fetches authoritative contract state from the chain.
type Querier interface {
	// QueryContractSmart runs a smart query against contract's latest state.
	QueryContractSmart(ctx context.Context, contract string, query any) (json.RawMessage, error)
	GetContract(ctx context.Context, address string) (Contract, error)
	GetContractCodeHistory(ctx context.Context, address string) ([]CodeHistoryEntry, error)
	// GetBlock returns the block at height, or the latest block for zero.
	GetBlock(ctx context.Context, height uint64) (Block, error)
}
