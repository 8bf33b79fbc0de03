package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"wasmScope/internal/chain"
	"wasmScope/internal/metrics"
	"wasmScope/internal/model"
	"wasmScope/internal/schema"
	"wasmScope/internal/store"
)

// cw20InstantiateSchema is the instantiate message layout the history
// bootstrapper can read initial balances from.
var cw20InstantiateSchema = schema.Keys{"decimals", "initial_balances"}

type initialBalance struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type cw20InstantiateMsg struct {
	InitialBalances []initialBalance `json:"initial_balances"`
}

// HistoryBootstrapper seeds cw20 holder balances from the initial_balances of
// the contract's instantiate message. The TotalBalance entity guards it so the
// chain is asked at most once per contract.
type HistoryBootstrapper struct {
	Chain  chain.Querier
	Store  store.Store
	Logger *zap.Logger
}

func (b *HistoryBootstrapper) EnsureBaseline(ctx context.Context, rec Recorder, contract, _ string, height uint64) error {
	_, ok, err := store.Load[model.TotalBalance](ctx, b.Store, contract)
	if err != nil {
		return fmt.Errorf("load total balance %s: %w", contract, err)
	}
	if ok {
		return nil
	}

	logger := b.logger().With(zap.String("contract", contract), zap.Uint64("height", height))
	history, err := b.Chain.GetContractCodeHistory(ctx, contract)
	metrics.RecordBootstrapQuery("code_history", err)
	if err != nil {
		return fmt.Errorf("code history %s: %w", contract, err)
	}

	var (
		seeds   []Delta
		matched bool
	)
	total := new(big.Int)
	for _, entry := range history {
		if entry.Operation != chain.OperationInit {
			break
		}
		if !schema.MatchesJSON(entry.Msg, cw20InstantiateSchema) {
			continue
		}
		var msg cw20InstantiateMsg
		if err := json.Unmarshal(entry.Msg, &msg); err != nil {
			logger.Warn("instantiate message not decodable", zap.Error(err))
			continue
		}
		for _, initial := range msg.InitialBalances {
			amount, err := model.ParseAmount(initial.Amount)
			if err != nil {
				return fmt.Errorf("initial balance of %s: %w", initial.Address, err)
			}
			seeds = append(seeds, Delta{Contract: contract, Address: initial.Address, Height: height, Amount: amount})
			total.Add(total, amount)
		}
		matched = true
		break
	}

	if !matched {
		logger.Info("no readable instantiate message, starting from zero")
	}

	// The guard is saved first; a seed that fails is not retried.
	if err := store.Save(ctx, b.Store, model.TotalBalance{
		ID:             contract,
		Amount:         total.String(),
		Initialized:    true,
		BaselineHeight: height,
	}); err != nil {
		return err
	}
	for i, seed := range seeds {
		if _, err := rec.Record(ctx, seed); err != nil {
			logger.Error("initial balances only partly seeded",
				zap.Int("seeded", i),
				zap.Int("total", len(seeds)),
				zap.Error(err),
			)
			return fmt.Errorf("seed %s: %w", seed.Address, err)
		}
	}
	return nil
}

func (b *HistoryBootstrapper) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

type stakedBalanceResponse struct {
	Balance string `json:"balance"`
	Height  uint64 `json:"height"`
}

// StakedBalanceBootstrapper seeds a holder's staked amount from the staking
// contract the first time the holder appears.
type StakedBalanceBootstrapper struct {
	Chain  chain.Querier
	Store  store.Store
	Logger *zap.Logger
}

func (b *StakedBalanceBootstrapper) EnsureBaseline(ctx context.Context, rec Recorder, contract, address string, height uint64) error {
	_, ok, err := store.Load[model.Balance](ctx, b.Store, model.BalanceID(contract, address))
	if err != nil {
		return fmt.Errorf("load balance: %w", err)
	}
	if ok {
		return nil
	}

	query := map[string]any{
		"staked_balance_at_height": map[string]any{
			"address": address,
			"height":  height,
		},
	}
	raw, err := b.Chain.QueryContractSmart(ctx, contract, query)
	metrics.RecordBootstrapQuery("staked_balance", err)
	if err != nil {
		return fmt.Errorf("staked balance of %s on %s: %w", address, contract, err)
	}

	var resp stakedBalanceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("decode staked balance: %w", err)
	}
	staked, err := model.ParseAmount(resp.Balance)
	if err != nil {
		return err
	}
	if staked.Sign() <= 0 {
		return nil
	}
	_, err = rec.Record(ctx, Delta{Contract: contract, Address: address, Height: height, Staked: staked})
	return err
}
