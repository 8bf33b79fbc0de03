package chain

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCodeIDCacheSize is the number of contract code ids kept in memory.
const DefaultCodeIDCacheSize = 4096

// CodeIDCache resolves and memoises contract code ids.
type CodeIDCache struct {
	querier Querier
	cache   *lru.Cache[string, uint64]
}

func NewCodeIDCache(querier Querier, size int) (*CodeIDCache, error) {
	if querier == nil {
		return nil, fmt.Errorf("querier is nil")
	}
	if size <= 0 {
		size = DefaultCodeIDCacheSize
	}
	cache, err := lru.New[string, uint64](size)
	if err != nil {
		return nil, err
	}
	return &CodeIDCache{querier: querier, cache: cache}, nil
}

// CodeID returns the code id of the contract at address.
func (c *CodeIDCache) CodeID(ctx context.Context, address string) (uint64, error) {
	if codeID, ok := c.cache.Get(address); ok {
		return codeID, nil
	}
	contract, err := c.querier.GetContract(ctx, address)
	if err != nil {
		return 0, err
	}
	c.cache.Add(address, contract.CodeID)
	return contract.CodeID, nil
}

// Set records a known code id, e.g. from an instantiate message.
func (c *CodeIDCache) Set(address string, codeID uint64) {
	c.cache.Add(address, codeID)
}
