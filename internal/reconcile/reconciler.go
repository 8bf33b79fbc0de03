// Package reconcile applies canonical token transitions to durable balances
// and snapshots, seeding first-seen entities from chain state.
package reconcile

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"wasmScope/internal/metrics"
	"wasmScope/internal/model"
	"wasmScope/internal/store"
)

// Delta is a signed change to one holder's balance.
type Delta struct {
	Contract string
	Address  string
	Height   uint64
	TxHash   string
	Amount   *big.Int
	Staked   *big.Int
}

// Recorder applies a delta without bootstrapping.
type Recorder interface {
	Record(ctx context.Context, d Delta) (model.Balance, error)
}

// Bootstrapper seeds the state of a contract (or one of its holders) the
// first time it is referenced. height is the block before the action.
type Bootstrapper interface {
	EnsureBaseline(ctx context.Context, rec Recorder, contract, address string, height uint64) error
}

// Reconciler turns transitions into snapshot and balance writes. It is not
// safe for concurrent use; the runner feeds it one message at a time.
type Reconciler struct {
	store     store.Store
	bootstrap Bootstrapper
	logger    *zap.Logger
}

// New returns a reconciler. bootstrap may be nil.
func New(s store.Store, bootstrap Bootstrapper, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: s, bootstrap: bootstrap, logger: logger}
}

// Deltas returns the signed deltas t implies, in application order. unstake
// is left unclamped here; Apply clamps it against the stored staked balance.
func Deltas(t model.Transition) ([]Delta, *big.Int, error) {
	amount := orZero(t.Amount)
	staked := orZero(t.StakedAmount)
	if amount.Sign() < 0 || staked.Sign() < 0 {
		return nil, nil, fmt.Errorf("%s: negative amount", t.Action)
	}
	neg := func(v *big.Int) *big.Int { return new(big.Int).Neg(v) }
	delta := func(address string, a, s *big.Int) Delta {
		return Delta{Contract: t.Contract, Address: address, Height: t.Height, TxHash: t.TxHash, Amount: a, Staked: s}
	}

	switch t.Action {
	case model.ActionTransfer, model.ActionTransferFrom, model.ActionSend, model.ActionSendFrom:
		if t.From == "" || t.To == "" {
			return nil, nil, fmt.Errorf("%s: missing participant", t.Action)
		}
		return []Delta{
			delta(t.From, neg(amount), new(big.Int)),
			delta(t.To, new(big.Int).Set(amount), new(big.Int)),
		}, nil, nil
	case model.ActionMint:
		if t.To == "" {
			return nil, nil, fmt.Errorf("%s: missing recipient", t.Action)
		}
		return []Delta{delta(t.To, new(big.Int).Set(amount), new(big.Int))}, new(big.Int).Set(amount), nil
	case model.ActionBurn, model.ActionBurnFrom:
		if t.From == "" {
			return nil, nil, fmt.Errorf("%s: missing holder", t.Action)
		}
		return []Delta{delta(t.From, neg(amount), new(big.Int))}, neg(amount), nil
	case model.ActionStake:
		if t.From == "" {
			return nil, nil, fmt.Errorf("%s: missing staker", t.Action)
		}
		return []Delta{delta(t.From, new(big.Int).Set(amount), new(big.Int).Set(staked))}, nil, nil
	case model.ActionUnstake:
		if t.From == "" {
			return nil, nil, fmt.Errorf("%s: missing staker", t.Action)
		}
		return []Delta{delta(t.From, new(big.Int), neg(staked))}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported action %q", t.Action)
	}
}

// Apply reconciles one transition: baseline, then a snapshot and balance
// write per participant.
func (r *Reconciler) Apply(ctx context.Context, t model.Transition) error {
	deltas, supply, err := Deltas(t)
	if err != nil {
		return err
	}

	baseline := t.Height
	if baseline > 0 {
		baseline--
	}
	if r.bootstrap != nil {
		for _, d := range deltas {
			if err := r.bootstrap.EnsureBaseline(ctx, r, d.Contract, d.Address, baseline); err != nil {
				r.logger.Warn("bootstrap failed, continuing from zero baseline",
					zap.String("contract", d.Contract),
					zap.String("address", d.Address),
					zap.Uint64("height", baseline),
					zap.Error(err),
				)
			}
		}
	}

	for _, d := range deltas {
		if t.Action == model.ActionUnstake {
			if d, err = r.clampUnstake(ctx, d); err != nil {
				return err
			}
		}
		if _, err := r.Record(ctx, d); err != nil {
			return err
		}
	}

	if supply != nil {
		if err := r.adjustSupply(ctx, t.Contract, supply); err != nil {
			return err
		}
	}
	metrics.RecordTransition(t.Action)
	return nil
}

func (r *Reconciler) clampUnstake(ctx context.Context, d Delta) (Delta, error) {
	bal, _, err := store.Load[model.Balance](ctx, r.store, model.BalanceID(d.Contract, d.Address))
	if err != nil {
		return d, err
	}
	current, err := model.ParseAmount(bal.StakedAmount)
	if err != nil {
		return d, err
	}
	if current.Sign() < 0 {
		current.SetInt64(0)
	}
	requested := new(big.Int).Neg(d.Staked)
	if requested.Cmp(current) > 0 {
		r.logger.Warn("unstake exceeds staked balance, clamping",
			zap.String("contract", d.Contract),
			zap.String("address", d.Address),
			zap.String("requested", requested.String()),
			zap.String("staked", current.String()),
		)
		d.Staked = new(big.Int).Neg(current)
	}
	return d, nil
}

// Record appends a snapshot for d and then upserts the holder's balance.
func (r *Reconciler) Record(ctx context.Context, d Delta) (model.Balance, error) {
	amountDelta := orZero(d.Amount)
	stakedDelta := orZero(d.Staked)

	id := model.BalanceID(d.Contract, d.Address)
	bal, ok, err := store.Load[model.Balance](ctx, r.store, id)
	if err != nil {
		return model.Balance{}, fmt.Errorf("load balance %s: %w", id, err)
	}
	if !ok {
		bal = model.Balance{ID: id, ContractAddress: d.Contract, Address: d.Address, Amount: "0", StakedAmount: "0"}
	}

	amount, err := model.AddAmount(bal.Amount, amountDelta)
	if err != nil {
		return model.Balance{}, fmt.Errorf("balance %s: %w", id, err)
	}
	staked, err := model.AddAmount(bal.StakedAmount, stakedDelta)
	if err != nil {
		return model.Balance{}, fmt.Errorf("balance %s: %w", id, err)
	}

	secondaryID := model.SnapshotSecondaryID(d.Contract, d.Address, d.Height)
	existing, err := store.Count(ctx, r.store, model.Snapshot{}.EntityType(), "secondary_id", secondaryID)
	if err != nil {
		return model.Balance{}, fmt.Errorf("count snapshots %s: %w", secondaryID, err)
	}
	snapshot := model.Snapshot{
		ID:              model.SnapshotID(secondaryID, existing+1),
		SecondaryID:     secondaryID,
		HolderID:        id,
		ContractAddress: d.Contract,
		Address:         d.Address,
		BlockHeight:     d.Height,
		Sequence:        existing + 1,
		TxHash:          d.TxHash,
		Amount:          amount,
		StakedAmount:    staked,
		AmountDelta:     amountDelta.String(),
		StakedDelta:     stakedDelta.String(),
	}
	if err := store.Save(ctx, r.store, snapshot); err != nil {
		return model.Balance{}, fmt.Errorf("save snapshot %s: %w", snapshot.ID, err)
	}

	bal.Amount = amount
	bal.StakedAmount = staked
	if d.Height > bal.LastUpdatedHeight {
		bal.LastUpdatedHeight = d.Height
	}
	if err := store.Save(ctx, r.store, bal); err != nil {
		return model.Balance{}, fmt.Errorf("save balance %s: %w", id, err)
	}

	r.logger.Debug("balance updated",
		zap.String("balance", id),
		zap.Uint64("height", d.Height),
		zap.Int("sequence", snapshot.Sequence),
		zap.String("amount", amount),
		zap.String("staked", staked),
	)
	return bal, nil
}

// adjustSupply tracks mint and burn against the contract total once a
// baseline exists.
func (r *Reconciler) adjustSupply(ctx context.Context, contract string, delta *big.Int) error {
	total, ok, err := store.Load[model.TotalBalance](ctx, r.store, contract)
	if err != nil || !ok {
		return err
	}
	amount, err := model.AddAmount(total.Amount, delta)
	if err != nil {
		return fmt.Errorf("total balance %s: %w", contract, err)
	}
	total.Amount = amount
	return store.Save(ctx, r.store, total)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
