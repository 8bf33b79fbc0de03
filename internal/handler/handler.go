// Package handler holds the indexer variants. Each one routes host messages
// of interest through decode, classify, correlate and reconcile steps for
// its own action vocabulary and entities.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"wasmScope/internal/chain"
	"wasmScope/internal/model"
	"wasmScope/internal/store"
)

// Handler is one indexer variant.
type Handler interface {
	Name() string
	CanHandle(msg model.Message) bool
	Handle(ctx context.Context, msg model.Message) error
}

// Env provides shared dependencies for handlers.
type Env struct {
	Chain  chain.Querier
	Store  store.Store
	Logger *zap.Logger
}

func (e Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Variant names accepted by New.
const (
	NameCW20      = "cw20"
	NameStake     = "stake"
	NameDaos      = "daos"
	NameProposals = "proposals"
	NameWasmswap  = "wasmswap"
)

// Names lists every variant in a stable order.
var Names = []string{NameCW20, NameStake, NameDaos, NameProposals, NameWasmswap}

// Options configures the variants built by New.
type Options struct {
	AllowedCodeIDs   []uint64
	DaoCodeIDs       []uint64
	StakingContracts []string
	PoolContracts    []string
	CodeIDCacheSize  int
}

// New builds the named variants in the given order.
func New(env Env, names []string, opts Options) ([]Handler, error) {
	var codeIDs *chain.CodeIDCache
	resolver := func() (*chain.CodeIDCache, error) {
		if codeIDs != nil {
			return codeIDs, nil
		}
		size := opts.CodeIDCacheSize
		if size <= 0 {
			size = chain.DefaultCodeIDCacheSize
		}
		cache, err := chain.NewCodeIDCache(env.Chain, size)
		if err != nil {
			return nil, err
		}
		codeIDs = cache
		return codeIDs, nil
	}

	handlers := make([]Handler, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case NameCW20:
			cache, err := resolver()
			if err != nil {
				return nil, err
			}
			handlers = append(handlers, NewCW20(env, opts.AllowedCodeIDs, cache))
		case NameStake:
			handlers = append(handlers, NewStake(env, opts.StakingContracts))
		case NameDaos:
			cache, err := resolver()
			if err != nil {
				return nil, err
			}
			handlers = append(handlers, NewDaos(env, opts.DaoCodeIDs, cache))
		case NameProposals:
			handlers = append(handlers, NewProposals(env))
		case NameWasmswap:
			handlers = append(handlers, NewWasmswap(env, opts.PoolContracts))
		default:
			return nil, fmt.Errorf("unknown indexer %q (known: %s)", name, strings.Join(Names, ", "))
		}
	}
	if len(handlers) == 0 {
		return nil, errors.New("no indexers selected")
	}
	return handlers, nil
}

// executeAction returns the single top-level key of an execute payload and
// its value when that value is an object.
func executeAction(msg model.Message) (string, map[string]any, bool) {
	if msg.Type != model.MsgExecuteContract {
		return "", nil, false
	}
	payload, err := msg.Payload()
	if err != nil || len(payload) != 1 {
		return "", nil, false
	}
	for key, value := range payload {
		inner, _ := value.(map[string]any)
		return key, inner, true
	}
	return "", nil, false
}

func isInstantiate(msg model.Message) bool {
	return msg.Type == model.MsgInstantiateContract || msg.Type == model.MsgInstantiateContract2
}

func stringSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]bool, len(values))
	for _, value := range values {
		out[value] = true
	}
	return out
}

func codeIDSet(values []uint64) map[uint64]bool {
	out := make(map[uint64]bool, len(values))
	for _, value := range values {
		out[value] = true
	}
	return out
}

// stringField renders a JSON scalar as text.
func stringField(value any) (string, bool) {
	switch typed := value.(type) {
	case string:
		return typed, typed != ""
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	default:
		return "", false
	}
}

// uintField reads a JSON number or numeric string.
func uintField(value any) (uint64, bool) {
	text, ok := stringField(value)
	if !ok {
		return 0, false
	}
	parsed, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}
