package reconcile_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"wasmScope/internal/model"
	"wasmScope/internal/reconcile"
	"wasmScope/internal/store"
	"wasmScope/internal/store/memory"
)

const propertyContract = "juno1token"

var propertyHolders = []string{"alice", "bob", "carol"}

func TestReconcilerProperties(t *testing.T) {
	rapid.Check(t, rapid.Run(&ledgerModel{}))
}

// ledgerModel replays random transfer, mint and burn transitions and keeps
// the expected running totals and per-block snapshot counts alongside.
type ledgerModel struct {
	store      *memory.Store
	reconciler *reconcile.Reconciler
	height     uint64

	balances  map[string]*big.Int
	snapshots map[string]int
}

func (m *ledgerModel) Init(t *rapid.T) {
	m.store = memory.New()
	m.reconciler = reconcile.New(m.store, nil, nil)
	m.height = 1
	m.balances = make(map[string]*big.Int)
	m.snapshots = make(map[string]int)
}

func (m *ledgerModel) apply(t *rapid.T, tr model.Transition) {
	tr.Contract = propertyContract
	tr.Height = m.height
	tr.TxHash = "tx"
	require.NoError(t, m.reconciler.Apply(context.Background(), tr))
}

func (m *ledgerModel) credit(address string, amount int64) {
	if m.balances[address] == nil {
		m.balances[address] = new(big.Int)
	}
	m.balances[address].Add(m.balances[address], big.NewInt(amount))
	m.snapshots[model.SnapshotSecondaryID(propertyContract, address, m.height)]++
}

func (m *ledgerModel) drawHolder(t *rapid.T, label string) string {
	return rapid.SampledFrom(propertyHolders).Draw(t, label).(string)
}

func (m *ledgerModel) Transfer(t *rapid.T) {
	from := m.drawHolder(t, "from")
	to := m.drawHolder(t, "to")
	amount := rapid.Int64Range(0, 1_000_000).Draw(t, "amount").(int64)
	action := rapid.SampledFrom([]string{model.ActionTransfer, model.ActionSend}).Draw(t, "action").(string)
	m.apply(t, model.Transition{Action: action, From: from, To: to, Amount: big.NewInt(amount)})
	m.credit(from, -amount)
	m.credit(to, amount)
}

func (m *ledgerModel) Mint(t *rapid.T) {
	to := m.drawHolder(t, "to")
	amount := rapid.Int64Range(0, 1_000_000).Draw(t, "amount").(int64)
	m.apply(t, model.Transition{Action: model.ActionMint, To: to, Amount: big.NewInt(amount)})
	m.credit(to, amount)
}

func (m *ledgerModel) Burn(t *rapid.T) {
	from := m.drawHolder(t, "from")
	amount := rapid.Int64Range(0, 1_000_000).Draw(t, "amount").(int64)
	m.apply(t, model.Transition{Action: model.ActionBurn, From: from, Amount: big.NewInt(amount)})
	m.credit(from, -amount)
}

func (m *ledgerModel) NextBlock(t *rapid.T) {
	m.height += uint64(rapid.IntRange(1, 3).Draw(t, "blocks").(int))
}

func (m *ledgerModel) Check(t *rapid.T) {
	ctx := context.Background()
	for _, holder := range propertyHolders {
		bal, ok, err := store.Load[model.Balance](ctx, m.store, model.BalanceID(propertyContract, holder))
		require.NoError(t, err)
		expected, touched := m.balances[holder]
		require.Equal(t, touched, ok)
		if !touched {
			continue
		}
		require.Equal(t, expected.String(), bal.Amount)
	}

	for secondaryID, n := range m.snapshots {
		snapshots, err := store.FindBy[model.Snapshot](ctx, m.store, "secondary_id", secondaryID)
		require.NoError(t, err)
		require.Len(t, snapshots, n)
		seen := make(map[int]bool, n)
		for _, snap := range snapshots {
			require.False(t, seen[snap.Sequence], "duplicate sequence %d", snap.Sequence)
			require.GreaterOrEqual(t, snap.Sequence, 1)
			require.LessOrEqual(t, snap.Sequence, n)
			seen[snap.Sequence] = true
		}
	}
}

func TestSnapshotAmountsAreRunningTotals(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		s := memory.New()
		r := reconcile.New(s, nil, nil)

		deltas := rapid.SliceOfN(rapid.Int64Range(-1_000, 1_000), 1, 20).Draw(t, "deltas").([]int64)
		sum := new(big.Int)
		for i, delta := range deltas {
			sum.Add(sum, big.NewInt(delta))
			bal, err := r.Record(ctx, reconcile.Delta{
				Contract: propertyContract,
				Address:  "alice",
				Height:   10,
				Amount:   big.NewInt(delta),
			})
			require.NoError(t, err)
			require.Equal(t, sum.String(), bal.Amount)

			snap, ok, err := store.Load[model.Snapshot](ctx, s, model.SnapshotID(model.SnapshotSecondaryID(propertyContract, "alice", 10), i+1))
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, sum.String(), snap.Amount)
			require.Equal(t, big.NewInt(delta).String(), snap.AmountDelta)
		}
	})
}
