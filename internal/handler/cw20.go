package handler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"wasmScope/internal/classify"
	"wasmScope/internal/correlate"
	"wasmScope/internal/metrics"
	"wasmScope/internal/model"
	"wasmScope/internal/reconcile"
	"wasmScope/internal/wasm"
)

// CW20 tracks cw20 holder balances and snapshots from the wasm events of
// every execute message.
type CW20 struct {
	env        Env
	classifier classify.Classifier
	correlator *correlate.Correlator
	reconciler *reconcile.Reconciler
}

// NewCW20 builds the cw20 balances variant. Events are trusted only from
// contracts whose code id is in allowedCodeIDs.
func NewCW20(env Env, allowedCodeIDs []uint64, codeIDs correlate.CodeIDResolver) *CW20 {
	logger := env.logger().With(zap.String("indexer", NameCW20))
	vocab := correlate.CW20Vocabulary()
	return &CW20{
		env:        env,
		classifier: classify.New(vocab),
		correlator: &correlate.Correlator{
			Vocabulary: vocab,
			AllowList:  codeIDSet(allowedCodeIDs),
			Contracts:  codeIDs,
			Logger:     logger,
		},
		reconciler: reconcile.New(env.Store, &reconcile.HistoryBootstrapper{
			Chain:  env.Chain,
			Store:  env.Store,
			Logger: logger,
		}, logger),
	}
}

func (h *CW20) Name() string { return NameCW20 }

func (h *CW20) CanHandle(msg model.Message) bool {
	return msg.Type == model.MsgExecuteContract
}

func (h *CW20) Handle(ctx context.Context, msg model.Message) error {
	logger := h.env.logger().With(
		zap.String("indexer", NameCW20),
		zap.String("tx", msg.TxHash),
		zap.Int("msg_index", msg.MsgIndex),
	)

	events, err := wasm.DecodeMessage(msg)
	if err != nil {
		metrics.RecordDecodeFailure(NameCW20)
		logger.Warn("skip message with undecodable log", zap.Error(err))
		return nil
	}
	if len(events) == 0 {
		return nil
	}

	payload, err := msg.Payload()
	if err != nil {
		logger.Warn("skip message with undecodable payload", zap.Error(err))
		return nil
	}
	classified := h.classifier.Classify(payload)

	transitions, err := h.correlator.Correlate(ctx, msg, events, classified)
	switch {
	case errors.Is(err, correlate.ErrNotAllowed):
		metrics.RecordReject("not_allowed")
		logger.Debug("skip message from unlisted contract", zap.Error(err))
		return nil
	case errors.Is(err, correlate.ErrInconsistent):
		metrics.RecordReject("inconsistent")
		logger.Error("events do not match body message",
			zap.String("classified_action", classified.Action),
			zap.String("target_contract", classified.TargetContract),
			zap.Error(err),
		)
		return nil
	case errors.Is(err, correlate.ErrMalformedEvent):
		metrics.RecordReject("malformed")
		logger.Warn("skip message with malformed event", zap.Error(err))
		return nil
	case err != nil:
		return fmt.Errorf("correlate: %w", err)
	}

	for _, t := range transitions {
		if err := h.reconciler.Apply(ctx, t); err != nil {
			return fmt.Errorf("apply %s on %s: %w", t.Action, t.Contract, err)
		}
		logger.Info("transition applied",
			zap.String("action", t.Action),
			zap.String("contract", t.Contract),
			zap.String("from", t.From),
			zap.String("to", t.To),
			zap.Uint64("height", t.Height),
		)
	}
	return nil
}
