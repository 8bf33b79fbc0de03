package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONLReadsMessagesInOrder(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"/cosmwasm.wasm.v1.MsgExecuteContract","sender":"juno1a","contract":"juno1c","msg":{"transfer":{}},"tx_hash":"A","block_height":10}`,
		``,
		`not json`,
		`{"type":"/cosmwasm.wasm.v1.MsgExecuteContract","sender":"juno1b","msg":"eyJidXJuIjp7fX0=","tx_hash":"B","msg_index":1,"block_height":11}`,
	}, "\n")
	src := NewJSONL(strings.NewReader(input))
	ctx := context.Background()

	msg, err := src.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "A", msg.TxHash)
	require.Equal(t, uint64(10), msg.BlockHeight)

	_, err = src.Next(ctx)
	require.ErrorIs(t, err, ErrMalformed)
	require.Contains(t, err.Error(), "line 3")

	msg, err = src.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "B", msg.TxHash)
	require.Equal(t, 1, msg.MsgIndex)
	payload, err := msg.Payload()
	require.NoError(t, err)
	require.Contains(t, payload, "burn")

	_, err = src.Next(ctx)
	require.True(t, errors.Is(err, ErrExhausted))
	require.NoError(t, src.Commit(ctx))
	require.NoError(t, src.Close())
}

func TestOpenJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"tx_hash":"A","block_height":1}`+"\n"), 0o644))

	src, err := OpenJSONL(path)
	require.NoError(t, err)
	defer src.Close()

	msg, err := src.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A", msg.TxHash)

	_, err = OpenJSONL(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.Error(t, err)
}

func TestJSONLStopsOnCancelledContext(t *testing.T) {
	src := NewJSONL(strings.NewReader(`{"tx_hash":"A"}`))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
