package reconcile_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"wasmScope/internal/chain"
	"wasmScope/internal/model"
	"wasmScope/internal/reconcile"
	"wasmScope/internal/store"
	"wasmScope/internal/store/memory"
)

const token = "juno1token"

func loadBalance(t *testing.T, s store.Store, contract, address string) model.Balance {
	t.Helper()
	bal, ok, err := store.Load[model.Balance](context.Background(), s, model.BalanceID(contract, address))
	require.NoError(t, err)
	require.True(t, ok, "balance %s:%s", contract, address)
	return bal
}

func transfer(height uint64, from, to string, amount int64) model.Transition {
	return model.Transition{
		Action:   model.ActionTransfer,
		Contract: token,
		From:     from,
		To:       to,
		Amount:   big.NewInt(amount),
		Height:   height,
		TxHash:   "ABCD",
	}
}

func cw20History(t *testing.T) chain.CodeHistoryEntry {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"name":     "Token",
		"symbol":   "TKN",
		"decimals": 6,
		"initial_balances": []map[string]string{
			{"address": "alice", "amount": "1000"},
			{"address": "carol", "amount": "5"},
		},
	})
	require.NoError(t, err)
	return chain.CodeHistoryEntry{Operation: chain.OperationInit, CodeID: 435, Msg: msg}
}

func TestHistoryBootstrapRunsOnce(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	fake := chain.NewFake()
	fake.SetHistory(token, cw20History(t))

	r := reconcile.New(s, &reconcile.HistoryBootstrapper{Chain: fake, Store: s}, nil)
	require.NoError(t, r.Apply(ctx, transfer(50, "alice", "bob", 100)))
	require.NoError(t, r.Apply(ctx, transfer(51, "bob", "alice", 40)))

	require.Equal(t, 1, fake.Calls("GetContractCodeHistory"))
	require.Equal(t, "940", loadBalance(t, s, token, "alice").Amount)
	require.Equal(t, "60", loadBalance(t, s, token, "bob").Amount)
	require.Equal(t, "5", loadBalance(t, s, token, "carol").Amount)

	total, ok, err := store.Load[model.TotalBalance](ctx, s, token)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, total.Initialized)
	require.Equal(t, "1005", total.Amount)
	require.Equal(t, uint64(49), total.BaselineHeight)

	seed, ok, err := store.Load[model.Snapshot](ctx, s, "juno1token:alice:49:1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1000", seed.Amount)
	require.Empty(t, seed.TxHash)
}

func TestHistoryBootstrapUnmatchedShapeIsRecorded(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	fake := chain.NewFake()
	fake.SetHistory(token, chain.CodeHistoryEntry{Operation: chain.OperationInit, Msg: json.RawMessage(`{"owner":"dao"}`)})

	r := reconcile.New(s, &reconcile.HistoryBootstrapper{Chain: fake, Store: s}, nil)
	require.NoError(t, r.Apply(ctx, transfer(10, "alice", "bob", 7)))
	require.NoError(t, r.Apply(ctx, transfer(11, "alice", "bob", 3)))

	require.Equal(t, 1, fake.Calls("GetContractCodeHistory"))
	require.Equal(t, "-10", loadBalance(t, s, token, "alice").Amount)
	total, ok, err := store.Load[model.TotalBalance](ctx, s, token)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "0", total.Amount)
}

func TestHistoryBootstrapFailureRetriesOnNextReference(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	fake := chain.NewFake()
	fake.FailOn("GetContractCodeHistory", errors.New("rpc timeout"))

	r := reconcile.New(s, &reconcile.HistoryBootstrapper{Chain: fake, Store: s}, nil)
	require.NoError(t, r.Apply(ctx, transfer(10, "alice", "bob", 7)))
	require.NoError(t, r.Apply(ctx, transfer(11, "alice", "bob", 3)))

	require.Equal(t, 4, fake.Calls("GetContractCodeHistory"))
	require.Equal(t, "10", loadBalance(t, s, token, "bob").Amount)
	_, ok, err := store.Load[model.TotalBalance](ctx, s, token)
	require.NoError(t, err)
	require.False(t, ok)
}

type failingRecorder struct {
	inner   reconcile.Recorder
	failFor string
}

func (f failingRecorder) Record(ctx context.Context, d reconcile.Delta) (model.Balance, error) {
	if d.Address == f.failFor {
		return model.Balance{}, errors.New("store unavailable")
	}
	return f.inner.Record(ctx, d)
}

func TestHistoryBootstrapNeverCreditsTwice(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	fake := chain.NewFake()
	fake.SetHistory(token, cw20History(t))
	boot := &reconcile.HistoryBootstrapper{Chain: fake, Store: s}
	r := reconcile.New(s, boot, nil)

	err := boot.EnsureBaseline(ctx, failingRecorder{inner: r, failFor: "carol"}, token, "", 49)
	require.ErrorContains(t, err, "store unavailable")
	require.Equal(t, "1000", loadBalance(t, s, token, "alice").Amount)

	require.NoError(t, boot.EnsureBaseline(ctx, r, token, "", 49))
	require.NoError(t, r.Apply(ctx, transfer(50, "alice", "bob", 100)))
	require.Equal(t, 1, fake.Calls("GetContractCodeHistory"))
	require.Equal(t, "900", loadBalance(t, s, token, "alice").Amount)
}

func TestHistoryBootstrapRejectsBadAmountBeforeWriting(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	fake := chain.NewFake()
	fake.SetHistory(token, chain.CodeHistoryEntry{
		Operation: chain.OperationInit,
		Msg: json.RawMessage(`{"decimals":6,"initial_balances":[` +
			`{"address":"alice","amount":"10"},{"address":"bob","amount":"ten"}]}`),
	})
	boot := &reconcile.HistoryBootstrapper{Chain: fake, Store: s}

	err := boot.EnsureBaseline(ctx, reconcile.New(s, boot, nil), token, "", 9)
	require.Error(t, err)
	require.Zero(t, s.Len(model.Balance{}.EntityType()))
	require.Zero(t, s.Len(model.TotalBalance{}.EntityType()))
}

func TestMintAndBurnTrackSupply(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	fake := chain.NewFake()
	fake.SetHistory(token, cw20History(t))

	r := reconcile.New(s, &reconcile.HistoryBootstrapper{Chain: fake, Store: s}, nil)
	require.NoError(t, r.Apply(ctx, model.Transition{Action: model.ActionMint, Contract: token, To: "bob", Amount: big.NewInt(20), Height: 5}))
	require.NoError(t, r.Apply(ctx, model.Transition{Action: model.ActionBurn, Contract: token, From: "alice", Amount: big.NewInt(300), Height: 6}))

	total, _, err := store.Load[model.TotalBalance](ctx, s, token)
	require.NoError(t, err)
	require.Equal(t, "725", total.Amount)
	require.Equal(t, "700", loadBalance(t, s, token, "alice").Amount)
	require.Equal(t, "20", loadBalance(t, s, token, "bob").Amount)
}

func TestUnstakeClampsAtZero(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	r := reconcile.New(s, nil, nil)

	require.NoError(t, r.Apply(ctx, model.Transition{Action: model.ActionStake, Contract: "stake", From: "alice", StakedAmount: big.NewInt(100), Height: 3}))
	require.NoError(t, r.Apply(ctx, model.Transition{Action: model.ActionUnstake, Contract: "stake", From: "alice", StakedAmount: big.NewInt(250), Height: 4}))

	bal := loadBalance(t, s, "stake", "alice")
	require.Equal(t, "0", bal.StakedAmount)
	require.Equal(t, uint64(4), bal.LastUpdatedHeight)

	snap, ok, err := store.Load[model.Snapshot](ctx, s, "stake:alice:4:1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "-100", snap.StakedDelta)
	require.Equal(t, "0", snap.StakedAmount)
}

func TestStakedBalanceBootstrap(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	fake := chain.NewFake()
	require.NoError(t, fake.SetSmart("stake", "staked_balance_at_height", map[string]any{"balance": "40", "height": 200}))

	r := reconcile.New(s, &reconcile.StakedBalanceBootstrapper{Chain: fake, Store: s}, nil)
	require.NoError(t, r.Apply(ctx, model.Transition{Action: model.ActionStake, Contract: "stake", From: "alice", StakedAmount: big.NewInt(500), Height: 201}))
	require.NoError(t, r.Apply(ctx, model.Transition{Action: model.ActionStake, Contract: "stake", From: "alice", StakedAmount: big.NewInt(1), Height: 202}))

	require.Equal(t, 1, fake.Calls("QueryContractSmart"))
	require.Equal(t, "541", loadBalance(t, s, "stake", "alice").StakedAmount)

	seed, ok, err := store.Load[model.Snapshot](ctx, s, "stake:alice:200:1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "40", seed.StakedAmount)
}

func TestDeltasRejectsUnknownAction(t *testing.T) {
	_, _, err := reconcile.Deltas(model.Transition{Action: model.ActionIncreaseAllowance, From: "a", To: "b"})
	require.Error(t, err)

	_, _, err = reconcile.Deltas(model.Transition{Action: model.ActionTransfer, From: "a"})
	require.Error(t, err)
}

func TestAuditDetectsInterruptedWrite(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	r := reconcile.New(s, nil, nil)
	require.NoError(t, r.Apply(ctx, transfer(10, "alice", "bob", 5)))

	drifts, checked, err := r.AuditContract(ctx, token)
	require.NoError(t, err)
	require.Equal(t, 2, checked)
	require.Empty(t, drifts)

	// A snapshot written without its balance update.
	require.NoError(t, store.Save(ctx, s, model.Snapshot{
		ID:              "juno1token:bob:11:1",
		SecondaryID:     "juno1token:bob:11",
		HolderID:        model.BalanceID(token, "bob"),
		ContractAddress: token,
		Address:         "bob",
		BlockHeight:     11,
		Sequence:        1,
		Amount:          "9",
		StakedAmount:    "0",
	}))

	drift, ok, err := r.Audit(ctx, token, "bob")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "5", drift.Amount)
	require.Equal(t, "9", drift.SnapshotAmount)
	require.Equal(t, "juno1token:bob:11:1", drift.SnapshotID)

	drifts, _, err = r.AuditContract(ctx, token)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
}
