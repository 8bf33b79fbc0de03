package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wasmScope/internal/handler"
	"wasmScope/internal/metrics"
	"wasmScope/internal/model"
	"wasmScope/internal/source"
)

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	Heights      HeightRange
	MaxRetries   int
	RetryBackoff time.Duration
}

// Stats counts what a run did.
type Stats struct {
	Received  int
	Processed int
	Skipped   int
	Malformed int
	Failed    int
}

// Runner feeds messages from a source through the handlers, one at a time
// and in feed order.
type Runner struct {
	cfg        RunConfig
	source     source.Source
	handlers   []handler.Handler
	logger     *zap.Logger
	checkpoint Checkpointer
}

// NewRunner builds a Runner with its dependencies. A nil checkpoint disables
// resuming.
func NewRunner(cfg RunConfig, src source.Source, handlers []handler.Handler, checkpoint Checkpointer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		source:     src,
		handlers:   handlers,
		logger:     logger,
		checkpoint: checkpoint,
	}
}

// Run executes the indexing loop until the source is exhausted, the end of
// the height range is passed or ctx is cancelled.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	if r.source == nil {
		return stats, fmt.Errorf("source is nil")
	}
	if len(r.handlers) == 0 {
		return stats, fmt.Errorf("at least one handler is required")
	}

	var resume resumeFilter
	if r.checkpoint != nil {
		pos, ok, err := r.checkpoint.Load(ctx)
		if err != nil {
			return stats, err
		}
		if ok {
			resume = resumeFilter{last: pos, active: true}
			r.logger.Info("resume from checkpoint", zap.Stringer("last_processed", pos))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		msg, err := r.nextWithRetry(ctx)
		switch {
		case errors.Is(err, source.ErrExhausted):
			r.logger.Info("source exhausted",
				zap.Int("received", stats.Received),
				zap.Int("processed", stats.Processed),
				zap.Int("skipped", stats.Skipped),
				zap.Int("malformed", stats.Malformed),
				zap.Int("failed", stats.Failed),
			)
			return stats, nil
		case errors.Is(err, source.ErrMalformed):
			stats.Malformed++
			metrics.RecordProcessingError("source", "malformed")
			r.logger.Warn("skip malformed feed entry", zap.Error(err))
			continue
		case err != nil:
			return stats, fmt.Errorf("read source: %w", err)
		}
		stats.Received++

		if r.cfg.Heights.Past(msg.BlockHeight) {
			r.logger.Info("end of height range reached", zap.Uint64("to", r.cfg.Heights.To))
			return stats, nil
		}
		pos := msg.Position()
		if r.cfg.Heights.Before(msg.BlockHeight) || resume.skip(pos) {
			stats.Skipped++
			metrics.RecordSkipped()
			continue
		}

		handled, failed := r.dispatch(ctx, msg)
		switch {
		case failed:
			stats.Failed++
		case handled:
			stats.Processed++
		default:
			stats.Skipped++
			metrics.RecordSkipped()
		}

		metrics.UpdateHeight(msg.BlockHeight)
		if r.checkpoint != nil {
			if err := r.checkpoint.Save(ctx, pos); err != nil {
				return stats, err
			}
		}
		if err := r.source.Commit(ctx); err != nil {
			return stats, err
		}
	}
}

// resumeFilter skips what a previous run already processed. Transaction
// indexes may be missing from the feed, so inside the checkpoint block every
// message up to and including the checkpointed one is skipped.
type resumeFilter struct {
	last   model.Position
	active bool
}

func (f *resumeFilter) skip(pos model.Position) bool {
	if !f.active {
		return false
	}
	switch {
	case pos.Height < f.last.Height:
		return true
	case pos.Height > f.last.Height:
		f.active = false
		return false
	}
	if f.last.TxHash == "" {
		if pos.After(f.last) {
			f.active = false
			return false
		}
		return true
	}
	if pos.SameMessage(f.last) {
		f.active = false
	}
	return true
}

// dispatch hands msg to every handler that accepts it. Handler errors are
// logged and counted; they do not stop the run.
func (r *Runner) dispatch(ctx context.Context, msg model.Message) (handled, failed bool) {
	for _, h := range r.handlers {
		if !h.CanHandle(msg) {
			continue
		}
		handled = true

		start := time.Now()
		err := h.Handle(ctx, msg)
		metrics.RecordProcessingDuration(h.Name(), time.Since(start).Seconds())
		if err != nil {
			failed = true
			metrics.RecordMessage(h.Name(), "error")
			metrics.RecordProcessingError(h.Name(), "handle")
			r.logger.Error("handler failed",
				zap.String("indexer", h.Name()),
				zap.String("tx", msg.TxHash),
				zap.Int("msg_index", msg.MsgIndex),
				zap.Uint64("height", msg.BlockHeight),
				zap.Error(err),
			)
			continue
		}
		metrics.RecordMessage(h.Name(), "ok")
	}
	return handled, failed
}

func (r *Runner) nextWithRetry(ctx context.Context) (model.Message, error) {
	var msg model.Message
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		msg, err = r.source.Next(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, source.ErrExhausted), errors.Is(err, source.ErrMalformed), ctx.Err() != nil:
			return permanent(err)
		}
		r.logger.Warn("read source failed", zap.Error(err))
		return err
	})
	return msg, err
}
