package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

const historyPageLimit = 100

// Client queries a CometBFT node over JSON-RPC. wasm queries are sent as
// abci_query calls carrying protobuf encoded requests.
type Client struct {
	rpcClient *rpc.Client

	mu         sync.RWMutex
	blockCache map[uint64]Block
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient:  rpcClient,
		blockCache: make(map[uint64]Block),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

type abciQueryResult struct {
	Response struct {
		Code      uint32 `json:"code"`
		Log       string `json:"log"`
		Codespace string `json:"codespace"`
		Value     []byte `json:"value"`
		Height    string `json:"height"`
	} `json:"response"`
}

func (c *Client) abciQuery(ctx context.Context, path string, data []byte) ([]byte, error) {
	var result abciQueryResult
	if err := c.rpcClient.CallContext(ctx, &result, "abci_query", path, hex.EncodeToString(data), "0", false); err != nil {
		return nil, fmt.Errorf("abci_query %s: %w", path, err)
	}
	if result.Response.Code != 0 {
		return nil, fmt.Errorf("abci_query %s: code %d (%s): %s", path, result.Response.Code, result.Response.Codespace, result.Response.Log)
	}
	return result.Response.Value, nil
}

// QueryContractSmart runs a smart query against the contract's latest state.
func (c *Client) QueryContractSmart(ctx context.Context, contract string, query any) (json.RawMessage, error) {
	queryData, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	value, err := c.abciQuery(ctx, pathSmartContractState, encodeSmartQueryRequest(contract, queryData))
	if err != nil {
		return nil, err
	}
	data, err := decodeSmartQueryResponse(value)
	if err != nil {
		return nil, fmt.Errorf("decode smart query response: %w", err)
	}
	return json.RawMessage(data), nil
}

// GetContract returns the contract's metadata.
func (c *Client) GetContract(ctx context.Context, address string) (Contract, error) {
	value, err := c.abciQuery(ctx, pathContractInfo, encodeContractInfoRequest(address))
	if err != nil {
		return Contract{}, err
	}
	contract, err := decodeContractInfoResponse(value)
	if err != nil {
		return Contract{}, fmt.Errorf("contract %s: %w", address, err)
	}
	if contract.Address == "" {
		contract.Address = address
	}
	return contract, nil
}

// GetContractCodeHistory returns every code history entry, following
// pagination until the node reports no next key.
func (c *Client) GetContractCodeHistory(ctx context.Context, address string) ([]CodeHistoryEntry, error) {
	var all []CodeHistoryEntry
	var pageKey []byte
	for {
		value, err := c.abciQuery(ctx, pathContractHistory, encodeContractHistoryRequest(address, pageKey, historyPageLimit))
		if err != nil {
			return nil, err
		}
		entries, nextKey, err := decodeContractHistoryResponse(value)
		if err != nil {
			return nil, fmt.Errorf("decode contract history: %w", err)
		}
		all = append(all, entries...)
		if len(nextKey) == 0 {
			return all, nil
		}
		pageKey = nextKey
	}
}

type blockResult struct {
	Block struct {
		Header struct {
			Height string    `json:"height"`
			Time   time.Time `json:"time"`
		} `json:"header"`
	} `json:"block"`
}

// GetBlock returns the block header at height, using an in-memory cache.
// Zero means the latest block and is never cached.
func (c *Client) GetBlock(ctx context.Context, height uint64) (Block, error) {
	if height > 0 {
		c.mu.RLock()
		block, ok := c.blockCache[height]
		c.mu.RUnlock()
		if ok {
			return block, nil
		}
	}

	var result blockResult
	var err error
	if height == 0 {
		err = c.rpcClient.CallContext(ctx, &result, "block")
	} else {
		err = c.rpcClient.CallContext(ctx, &result, "block", strconv.FormatUint(height, 10))
	}
	if err != nil {
		return Block{}, fmt.Errorf("get block %d: %w", height, err)
	}

	parsed, err := strconv.ParseUint(result.Block.Header.Height, 10, 64)
	if err != nil {
		return Block{}, fmt.Errorf("parse block height %q: %w", result.Block.Header.Height, err)
	}
	block := Block{Height: parsed, Time: result.Block.Header.Time}

	c.mu.Lock()
	c.blockCache[block.Height] = block
	c.mu.Unlock()

	return block, nil
}
