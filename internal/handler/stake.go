package handler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"wasmScope/internal/classify"
	"wasmScope/internal/model"
	"wasmScope/internal/reconcile"
)

// StakeDelay is the number of blocks before a stake counts towards the
// staked balance.
const StakeDelay = 1

// Stake tracks staked balances of cw20-stake contracts from the body
// messages that move them: a cw20 send carrying the stake hook, and unstake.
type Stake struct {
	env        Env
	classifier classify.Classifier
	reconciler *reconcile.Reconciler
	contracts  map[string]bool
}

// NewStake builds the stake variant. An empty contracts list tracks every
// staking contract.
func NewStake(env Env, contracts []string) *Stake {
	logger := env.logger().With(zap.String("indexer", NameStake))
	vocab := classify.NewVocabulary(
		[]string{model.ActionSend, model.ActionStake, model.ActionUnstake},
		map[string]string{`{"stake":{}}`: model.ActionStake},
	)
	return &Stake{
		env:        env,
		classifier: classify.New(vocab),
		reconciler: reconcile.New(env.Store, &reconcile.StakedBalanceBootstrapper{
			Chain:  env.Chain,
			Store:  env.Store,
			Logger: logger,
		}, logger),
		contracts: stringSet(contracts),
	}
}

func (h *Stake) Name() string { return NameStake }

func (h *Stake) CanHandle(msg model.Message) bool {
	action, _, ok := executeAction(msg)
	return ok && (action == model.ActionSend || action == model.ActionUnstake)
}

func (h *Stake) Handle(ctx context.Context, msg model.Message) error {
	logger := h.env.logger().With(
		zap.String("indexer", NameStake),
		zap.String("tx", msg.TxHash),
		zap.String("sender", msg.Sender),
	)

	payload, err := msg.Payload()
	if err != nil {
		logger.Warn("skip message with undecodable payload", zap.Error(err))
		return nil
	}
	classified := h.classifier.Classify(payload)

	var t model.Transition
	switch classified.Action {
	case model.ActionStake:
		// Only a stake hook wrapped in a send reaches here with a target.
		if classified.TargetContract == "" {
			return nil
		}
		t = model.Transition{
			Action:   model.ActionStake,
			Contract: classified.TargetContract,
			From:     msg.Sender,
			Height:   msg.BlockHeight + StakeDelay,
			TxHash:   msg.TxHash,
		}
	case model.ActionUnstake:
		t = model.Transition{
			Action:   model.ActionUnstake,
			Contract: msg.Contract,
			From:     msg.Sender,
			Height:   msg.BlockHeight,
			TxHash:   msg.TxHash,
		}
	default:
		return nil
	}

	if h.contracts != nil && !h.contracts[t.Contract] {
		logger.Debug("skip untracked staking contract", zap.String("contract", t.Contract))
		return nil
	}
	if classified.Amount == "" {
		logger.Warn("skip stake message without amount", zap.String("action", t.Action))
		return nil
	}
	amount, err := model.ParseAmount(classified.Amount)
	if err != nil || amount.Sign() < 0 {
		logger.Warn("skip stake message with invalid amount", zap.String("amount", classified.Amount))
		return nil
	}
	t.StakedAmount = amount

	if err := h.reconciler.Apply(ctx, t); err != nil {
		return fmt.Errorf("apply %s on %s: %w", t.Action, t.Contract, err)
	}
	logger.Info("staked balance updated",
		zap.String("action", t.Action),
		zap.String("contract", t.Contract),
		zap.String("amount", amount.String()),
		zap.Uint64("height", t.Height),
	)
	return nil
}
