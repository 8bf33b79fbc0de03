package store_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"wasmScope/internal/model"
	"wasmScope/internal/store"
	"wasmScope/internal/store/memory"
	"wasmScope/internal/store/sqlite"
)

func backends(t *testing.T) map[string]store.Store {
	t.Helper()
	lite, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = lite.Close() })
	return map[string]store.Store{
		"memory": memory.New(),
		"sqlite": lite,
	}
}

func TestTypedHelpers(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			secondary := model.SnapshotSecondaryID("token", "alice", 10)
			for seq := 1; seq <= 3; seq++ {
				require.NoError(t, store.Save(ctx, s, model.Snapshot{
					ID:          model.SnapshotID(secondary, seq),
					SecondaryID: secondary,
					Sequence:    seq,
					Amount:      "1",
				}))
			}
			require.NoError(t, store.Save(ctx, s, model.Snapshot{
				ID:          model.SnapshotID(model.SnapshotSecondaryID("token", "alice", 11), 1),
				SecondaryID: model.SnapshotSecondaryID("token", "alice", 11),
				Sequence:    1,
			}))

			n, err := store.Count(ctx, s, model.Snapshot{}.EntityType(), "secondary_id", secondary)
			require.NoError(t, err)
			require.Equal(t, 3, n)

			found, err := store.FindBy[model.Snapshot](ctx, s, "secondary_id", secondary)
			require.NoError(t, err)
			require.Len(t, found, 3)
			require.Equal(t, "token:alice:10:1", found[0].ID)

			bal := model.Balance{ID: model.BalanceID("token", "alice"), ContractAddress: "token", Address: "alice", Amount: "42"}
			require.NoError(t, store.Save(ctx, s, bal))
			got, ok, err := store.Load[model.Balance](ctx, s, bal.ID)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, bal, got)

			bal.Amount = "43"
			require.NoError(t, store.Save(ctx, s, bal))
			got, _, err = store.Load[model.Balance](ctx, s, bal.ID)
			require.NoError(t, err)
			require.Equal(t, "43", got.Amount)

			require.NoError(t, s.Remove(ctx, bal.EntityType(), bal.ID))
			_, ok, err = store.Load[model.Balance](ctx, s, bal.ID)
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestCursorStores(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			cursors := s.(store.CursorStore)
			_, ok, err := cursors.LoadCursor(ctx, "runner")
			require.NoError(t, err)
			require.False(t, ok)

			pos := model.Position{Height: 7, TxIndex: 2, MsgIndex: 1}
			require.NoError(t, cursors.SaveCursor(ctx, "runner", pos))
			want := model.Position{Height: 8, TxHash: "ABCD", MsgIndex: 1}
			require.NoError(t, cursors.SaveCursor(ctx, "runner", want))
			got, ok, err := cursors.LoadCursor(ctx, "runner")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, want, got)
		})
	}
}

func TestFieldLookupFollowsOverwritesAndRemoves(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			bal := model.Balance{ID: "token:alice", ContractAddress: "token", Address: "alice", Amount: "1"}
			require.NoError(t, store.Save(ctx, s, bal))

			bal.ContractAddress = "other"
			require.NoError(t, store.Save(ctx, s, bal))

			found, err := store.FindBy[model.Balance](ctx, s, "contract_address", "token")
			require.NoError(t, err)
			require.Empty(t, found)
			found, err = store.FindBy[model.Balance](ctx, s, "contract_address", "other")
			require.NoError(t, err)
			require.Equal(t, []model.Balance{bal}, found)

			require.NoError(t, s.Remove(ctx, bal.EntityType(), bal.ID))
			found, err = store.FindBy[model.Balance](ctx, s, "contract_address", "other")
			require.NoError(t, err)
			require.Empty(t, found)
		})
	}
}

func TestMemoryCountsManySnapshots(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	const holders = 5000
	for i := 0; i < holders; i++ {
		secondary := model.SnapshotSecondaryID("token", fmt.Sprintf("holder%d", i), 10)
		n, err := store.Count(ctx, s, model.Snapshot{}.EntityType(), "secondary_id", secondary)
		require.NoError(t, err)
		require.Zero(t, n)
		require.NoError(t, store.Save(ctx, s, model.Snapshot{
			ID:          model.SnapshotID(secondary, n+1),
			SecondaryID: secondary,
			Sequence:    n + 1,
		}))
	}
	require.Equal(t, holders, s.Len(model.Snapshot{}.EntityType()))
}

func TestSaveRejectsEmptyID(t *testing.T) {
	err := store.Save(context.Background(), memory.New(), model.Wallet{})
	require.Error(t, err)
}

func TestJournal(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal", "entities.jsonl")
	j := store.NewJournal(memory.New(), path)

	require.NoError(t, store.Save(ctx, j, model.Wallet{ID: "alice"}, model.Wallet{ID: "bob"}))
	require.NoError(t, j.Remove(ctx, "Wallet", "bob"))

	_, ok, err := store.Load[model.Wallet](ctx, j, "alice")
	require.NoError(t, err)
	require.True(t, ok)

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var entries []store.JournalEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry store.JournalEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, entries, 3)
	require.Equal(t, "set", entries[0].Op)
	require.Equal(t, "bob", entries[2].ID)
	require.Equal(t, "remove", entries[2].Op)
}
