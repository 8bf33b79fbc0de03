package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"wasmScope/internal/metrics"
	"wasmScope/internal/model"
	"wasmScope/internal/store"
	"wasmScope/internal/wasm"
)

const (
	actionSwap            = "swap"
	actionSwapAndSendTo   = "swap_and_send_to"
	actionPassThroughSwap = "pass_through_swap"

	token1 = "Token1"
	token2 = "Token2"
)

type poolInfo struct {
	Token1Reserve string `json:"token1_reserve"`
	Token2Reserve string `json:"token2_reserve"`
}

// Wasmswap tracks AMM pool reserves and per-block pool snapshots.
type Wasmswap struct {
	env       Env
	contracts map[string]bool
}

// NewWasmswap builds the pool variant. An empty contracts list tracks every
// pool.
func NewWasmswap(env Env, contracts []string) *Wasmswap {
	return &Wasmswap{env: env, contracts: stringSet(contracts)}
}

func (h *Wasmswap) Name() string { return NameWasmswap }

func (h *Wasmswap) CanHandle(msg model.Message) bool {
	action, _, ok := executeAction(msg)
	if !ok {
		return false
	}
	if h.contracts != nil && !h.contracts[msg.Contract] {
		return false
	}
	switch action {
	case actionSwap, actionSwapAndSendTo, actionPassThroughSwap:
		return true
	}
	return false
}

func (h *Wasmswap) Handle(ctx context.Context, msg model.Message) error {
	logger := h.env.logger().With(
		zap.String("indexer", NameWasmswap),
		zap.String("pool", msg.Contract),
		zap.String("tx", msg.TxHash),
	)
	action, inner, _ := executeAction(msg)
	if inner == nil {
		return nil
	}

	inputToken, _ := inner["input_token"].(string)
	inputKey, outputKey := "input_amount", "native_transferred"
	switch action {
	case actionSwap:
		outputKey = "token_bought"
	case actionPassThroughSwap:
		inputKey = "input_token_amount"
	}
	if inputToken != token1 && inputToken != token2 {
		logger.Warn("unknown input token", zap.String("input_token", inputToken))
		return nil
	}
	inputText, _ := stringField(inner[inputKey])
	input, err := model.ParseAmount(inputText)
	if err != nil {
		logger.Warn("invalid input amount", zap.String("amount", inputText))
		return nil
	}

	outputText, err := wasm.MessageAttribute(msg, wasm.EventTypeWasm, outputKey)
	if err != nil || outputText == "" {
		logger.Warn("output amount not found", zap.String("key", outputKey), zap.Error(err))
		return nil
	}
	output, err := model.ParseAmount(outputText)
	if err != nil {
		logger.Warn("invalid output amount", zap.String("amount", outputText))
		return nil
	}

	pool, ok, err := store.Load[model.Pool](ctx, h.env.Store, msg.Contract)
	if err != nil {
		return err
	}
	if !ok {
		// Unknown pool: take the current reserves from chain.
		info, err := h.queryInfo(ctx, msg.Contract)
		if err != nil {
			logger.Error("failed to initialize pool state", zap.Error(err))
			return nil
		}
		pool = model.Pool{
			ID:           msg.Contract,
			Contract:     msg.Contract,
			Token1Amount: info.Token1Reserve,
			Token2Amount: info.Token2Reserve,
		}
	} else {
		delta1, delta2 := new(big.Int).Set(input), new(big.Int).Neg(output)
		if inputToken == token2 {
			delta1, delta2 = new(big.Int).Neg(output), new(big.Int).Set(input)
		}
		if pool.Token1Amount, err = model.AddAmount(pool.Token1Amount, delta1); err != nil {
			return err
		}
		if pool.Token2Amount, err = model.AddAmount(pool.Token2Amount, delta2); err != nil {
			return err
		}
	}
	pool.UpdatedHeight = msg.BlockHeight
	if err := store.Save(ctx, h.env.Store, pool); err != nil {
		return fmt.Errorf("save pool %s: %w", pool.ID, err)
	}

	secondaryID := model.JoinID(msg.Contract, model.HeightID(msg.BlockHeight))
	existing, err := store.Count(ctx, h.env.Store, model.PoolSnapshot{}.EntityType(), "secondary_id", secondaryID)
	if err != nil {
		return err
	}
	snapshot := model.PoolSnapshot{
		ID:           model.JoinID(secondaryID, fmt.Sprint(existing+1)),
		SecondaryID:  secondaryID,
		Contract:     msg.Contract,
		BlockHeight:  msg.BlockHeight,
		Sequence:     existing + 1,
		TxHash:       msg.TxHash,
		Token1Amount: pool.Token1Amount,
		Token2Amount: pool.Token2Amount,
	}
	if err := store.Save(ctx, h.env.Store, snapshot); err != nil {
		return fmt.Errorf("save pool snapshot %s: %w", snapshot.ID, err)
	}
	logger.Info("processed swap",
		zap.String("action", action),
		zap.String("token1", pool.Token1Amount),
		zap.String("token2", pool.Token2Amount),
	)
	return nil
}

func (h *Wasmswap) queryInfo(ctx context.Context, contract string) (poolInfo, error) {
	raw, err := h.env.Chain.QueryContractSmart(ctx, contract, map[string]any{"info": map[string]any{}})
	metrics.RecordBootstrapQuery("pool_info", err)
	if err != nil {
		return poolInfo{}, err
	}
	var info poolInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return poolInfo{}, fmt.Errorf("decode pool info: %w", err)
	}
	for _, reserve := range []string{info.Token1Reserve, info.Token2Reserve} {
		if _, err := model.ParseAmount(reserve); err != nil {
			return poolInfo{}, err
		}
	}
	return info, nil
}
