package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wasmScope/internal/handler"
	"wasmScope/internal/model"
	"wasmScope/internal/source"
	"wasmScope/internal/store/memory"
)

type sliceSource struct {
	items   []any // model.Message or error
	commits int
}

func (s *sliceSource) Next(ctx context.Context) (model.Message, error) {
	if len(s.items) == 0 {
		return model.Message{}, source.ErrExhausted
	}
	item := s.items[0]
	s.items = s.items[1:]
	if err, ok := item.(error); ok {
		return model.Message{}, err
	}
	return item.(model.Message), nil
}

func (s *sliceSource) Commit(context.Context) error {
	s.commits++
	return nil
}

func (s *sliceSource) Close() error { return nil }

type recordingHandler struct {
	name    string
	accept  func(model.Message) bool
	fail    map[string]bool
	handled []string
}

func (h *recordingHandler) Name() string { return h.name }

func (h *recordingHandler) CanHandle(msg model.Message) bool { return h.accept(msg) }

func (h *recordingHandler) Handle(_ context.Context, msg model.Message) error {
	h.handled = append(h.handled, msg.TxHash)
	if h.fail[msg.TxHash] {
		return errors.New("store unavailable")
	}
	return nil
}

func message(height uint64, tx uint32, hash string) model.Message {
	return model.Message{Type: model.MsgExecuteContract, TxHash: hash, TxIndex: tx, BlockHeight: height}
}

func all(model.Message) bool { return true }

func TestRunnerDispatchesInOrder(t *testing.T) {
	src := &sliceSource{items: []any{
		message(1, 0, "A"),
		fmt.Errorf("line 2: %w", source.ErrMalformed),
		message(1, 1, "B"),
		message(2, 0, "C"),
	}}
	every := &recordingHandler{name: "every", accept: all, fail: map[string]bool{"B": true}}
	onlyC := &recordingHandler{name: "only-c", accept: func(m model.Message) bool { return m.TxHash == "C" }}
	cp := NewCheckpointStore(filepath.Join(t.TempDir(), "cp", "checkpoint.json"), true)

	stats, err := NewRunner(RunConfig{}, src, []handler.Handler{every, onlyC}, cp, nil).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"A", "B", "C"}, every.handled)
	require.Equal(t, []string{"C"}, onlyC.handled)
	require.Equal(t, Stats{Received: 3, Processed: 2, Malformed: 1, Failed: 1}, stats)
	require.Equal(t, 3, src.commits)

	pos, ok, err := cp.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.Position{Height: 2, TxHash: "C"}, pos)
}

func TestRunnerResumesAfterCheckpoint(t *testing.T) {
	ctx := context.Background()
	cp := NewCursorCheckpoint(memory.New(), "run")
	require.NoError(t, cp.Save(ctx, model.Position{Height: 5, TxIndex: 1}))

	src := &sliceSource{items: []any{
		message(5, 0, "old"),
		message(5, 1, "last"),
		message(5, 2, "next"),
		message(6, 0, "later"),
	}}
	h := &recordingHandler{name: "h", accept: all}

	stats, err := NewRunner(RunConfig{}, src, []handler.Handler{h}, cp, nil).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"next", "later"}, h.handled)
	require.Equal(t, 2, stats.Skipped)

	pos, _, err := cp.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, model.Position{Height: 6, TxHash: "later"}, pos)
}

func TestRunnerHandlesEveryTransactionOfABlock(t *testing.T) {
	ctx := context.Background()
	cp := NewCursorCheckpoint(memory.New(), "run")
	src := &sliceSource{items: []any{
		message(10, 0, "TX_A"),
		message(10, 0, "TX_B"),
		message(10, 0, "TX_C"),
	}}
	h := &recordingHandler{name: "h", accept: all}

	stats, err := NewRunner(RunConfig{}, src, []handler.Handler{h}, cp, nil).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"TX_A", "TX_B", "TX_C"}, h.handled)
	require.Equal(t, Stats{Received: 3, Processed: 3}, stats)

	pos, ok, err := cp.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.Position{Height: 10, TxHash: "TX_C"}, pos)
}

func TestRunnerResumesInsideBlockByTxHash(t *testing.T) {
	ctx := context.Background()
	cp := NewCursorCheckpoint(memory.New(), "run")
	require.NoError(t, cp.Save(ctx, model.Position{Height: 10, TxHash: "TX_B"}))

	src := &sliceSource{items: []any{
		message(9, 0, "TX_OLD"),
		message(10, 0, "TX_A"),
		message(10, 0, "TX_B"),
		message(10, 0, "TX_C"),
		message(11, 0, "TX_D"),
	}}
	h := &recordingHandler{name: "h", accept: all}

	stats, err := NewRunner(RunConfig{}, src, []handler.Handler{h}, cp, nil).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"TX_C", "TX_D"}, h.handled)
	require.Equal(t, 3, stats.Skipped)
}

func TestRunnerHonoursHeightRange(t *testing.T) {
	src := &sliceSource{items: []any{
		message(9, 0, "early"),
		message(10, 0, "first"),
		message(12, 0, "last"),
		message(13, 0, "beyond"),
		message(14, 0, "unread"),
	}}
	h := &recordingHandler{name: "h", accept: all}
	heights, err := NewHeightRange(10, 12)
	require.NoError(t, err)

	_, err = NewRunner(RunConfig{Heights: heights}, src, []handler.Handler{h}, nil, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"first", "last"}, h.handled)
	require.Len(t, src.items, 1)
}

func TestRunnerRetriesTransientSourceErrors(t *testing.T) {
	src := &sliceSource{items: []any{
		errors.New("broker unavailable"),
		errors.New("broker unavailable"),
		message(1, 0, "A"),
	}}
	h := &recordingHandler{name: "h", accept: all}
	cfg := RunConfig{MaxRetries: 2, RetryBackoff: time.Millisecond}

	stats, err := NewRunner(cfg, src, []handler.Handler{h}, nil, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Processed)

	src = &sliceSource{items: []any{errors.New("broker unavailable"), errors.New("broker unavailable")}}
	cfg.MaxRetries = 1
	_, err = NewRunner(cfg, src, []handler.Handler{h}, nil, nil).Run(context.Background())
	require.ErrorContains(t, err, "broker unavailable")
}

func TestRunnerRequiresHandlers(t *testing.T) {
	_, err := NewRunner(RunConfig{}, &sliceSource{}, nil, nil, nil).Run(context.Background())
	require.Error(t, err)
}

func TestCheckpointStoreDisabled(t *testing.T) {
	cp := NewCheckpointStore(filepath.Join(t.TempDir(), "checkpoint.json"), false)
	require.NoError(t, cp.Save(context.Background(), model.Position{Height: 3}))
	_, ok, err := cp.Load(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestParseCodeIDs(t *testing.T) {
	ids, err := ParseCodeIDs([]string{"435, 436", " ", "1"})
	require.NoError(t, err)
	require.Equal(t, []uint64{435, 436, 1}, ids)

	_, err = ParseCodeIDs([]string{"x"})
	require.Error(t, err)
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	flaky := errors.New("flaky")

	calls := 0
	err := withRetry(ctx, 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return flaky
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	calls = 0
	err = withRetry(ctx, 2, time.Millisecond, func(context.Context) error {
		calls++
		return flaky
	})
	require.ErrorIs(t, err, flaky)
	require.Equal(t, 3, calls)

	calls = 0
	err = withRetry(ctx, 5, time.Millisecond, func(context.Context) error {
		calls++
		return permanent(source.ErrExhausted)
	})
	require.ErrorIs(t, err, source.ErrExhausted)
	require.Equal(t, 1, calls)
}
