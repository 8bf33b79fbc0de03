package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Fake is an in-memory Querier. Smart query responses are keyed by contract
// and the query's top-level key.
type Fake struct {
	mu        sync.Mutex
	contracts map[string]Contract
	histories map[string][]CodeHistoryEntry
	smart     map[string]map[string]json.RawMessage
	errs      map[string]error
	latest    Block
	calls     map[string]int
}

func NewFake() *Fake {
	return &Fake{
		contracts: make(map[string]Contract),
		histories: make(map[string][]CodeHistoryEntry),
		smart:     make(map[string]map[string]json.RawMessage),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

// SetContract registers contract metadata.
func (f *Fake) SetContract(contract Contract) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contracts[contract.Address] = contract
}

// SetHistory registers the code history of address.
func (f *Fake) SetHistory(address string, entries ...CodeHistoryEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histories[address] = entries
}

// SetSmart registers the response to smart queries named queryKey.
func (f *Fake) SetSmart(contract, queryKey string, response any) error {
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.smart[contract] == nil {
		f.smart[contract] = make(map[string]json.RawMessage)
	}
	f.smart[contract][queryKey] = data
	return nil
}

// SetLatestBlock sets the block GetBlock returns for height zero.
func (f *Fake) SetLatestBlock(block Block) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = block
}

// FailOn makes every call of method fail with err.
func (f *Fake) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = err
}

// Calls returns how often method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *Fake) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.errs[method]
}

func (f *Fake) QueryContractSmart(_ context.Context, contract string, query any) (json.RawMessage, error) {
	if err := f.record("QueryContractSmart"); err != nil {
		return nil, err
	}
	data, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(data, &keyed); err != nil || len(keyed) != 1 {
		return nil, fmt.Errorf("query must have exactly one key: %s", data)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range keyed {
		if response, ok := f.smart[contract][key]; ok {
			return response, nil
		}
	}
	return nil, fmt.Errorf("query %s on %s: %w", data, contract, ErrNotFound)
}

func (f *Fake) GetContract(_ context.Context, address string) (Contract, error) {
	if err := f.record("GetContract"); err != nil {
		return Contract{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	contract, ok := f.contracts[address]
	if !ok {
		return Contract{}, fmt.Errorf("contract %s: %w", address, ErrNotFound)
	}
	return contract, nil
}

func (f *Fake) GetContractCodeHistory(_ context.Context, address string) ([]CodeHistoryEntry, error) {
	if err := f.record("GetContractCodeHistory"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, ok := f.histories[address]
	if !ok {
		return nil, fmt.Errorf("history %s: %w", address, ErrNotFound)
	}
	return entries, nil
}

func (f *Fake) GetBlock(_ context.Context, height uint64) (Block, error) {
	if err := f.record("GetBlock"); err != nil {
		return Block{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if height == 0 {
		return f.latest, nil
	}
	return Block{Height: height, Time: f.latest.Time}, nil
}
