package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"wasmScope/internal/metrics"
	"wasmScope/internal/model"
	"wasmScope/internal/schema"
	"wasmScope/internal/store"
	"wasmScope/internal/wasm"
)

const (
	actionPropose = "propose"
	actionVote    = "vote"
	actionExecute = "execute"
	actionClose   = "close"

	statusOpen = "open"
)

// Message layouts shared by cw-proposal-single and cw-proposal-multiple.
var (
	proposeSchema = schema.Keys{"title", "description"}
	voteSchema    = schema.Shape{Fields: map[string]schema.Schema{
		"proposal_id": schema.Present,
		"vote":        schema.Present,
	}, Exact: true}
	proposalIDSchema = schema.Shape{Fields: map[string]schema.Schema{
		"proposal_id": schema.Present,
	}, Exact: true}
	proposalResponseSchema = schema.Shape{Fields: map[string]schema.Schema{
		"proposal": schema.Shape{Fields: map[string]schema.Schema{
			"expiration": schema.Present,
		}},
	}}
)

// Proposals tracks governance proposals, their lifecycle and votes.
type Proposals struct {
	env Env
}

func NewProposals(env Env) *Proposals {
	return &Proposals{env: env}
}

func (h *Proposals) Name() string { return NameProposals }

func (h *Proposals) CanHandle(msg model.Message) bool {
	action, _, ok := executeAction(msg)
	if !ok {
		return false
	}
	switch action {
	case actionPropose, actionVote, actionExecute, actionClose:
		return true
	}
	return false
}

func (h *Proposals) Handle(ctx context.Context, msg model.Message) error {
	logger := h.env.logger().With(
		zap.String("indexer", NameProposals),
		zap.String("module", msg.Contract),
		zap.String("tx", msg.TxHash),
	)
	action, inner, _ := executeAction(msg)

	switch action {
	case actionPropose:
		return h.propose(ctx, msg, inner, logger)
	case actionVote:
		return h.vote(ctx, msg, inner, logger)
	case actionExecute, actionClose:
		return h.finalize(ctx, msg, action, inner, logger)
	}
	return nil
}

func (h *Proposals) propose(ctx context.Context, msg model.Message, inner map[string]any, logger *zap.Logger) error {
	if !schema.Matches(inner, proposeSchema) {
		return nil
	}
	value, err := wasm.MessageAttribute(msg, wasm.EventTypeWasm, "proposal_id")
	if err != nil {
		logger.Error("proposal_id not found in propose events", zap.Error(err))
		return nil
	}
	num, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		logger.Error("invalid proposal_id in propose events", zap.String("proposal_id", value))
		return nil
	}

	proposal, ok, err := h.updateOrCreateProposal(ctx, msg, num, true, logger)
	if err != nil || !ok {
		return err
	}
	logger.Info("proposed", zap.String("proposal", proposal.ID))
	return nil
}

func (h *Proposals) vote(ctx context.Context, msg model.Message, inner map[string]any, logger *zap.Logger) error {
	if !schema.Matches(inner, voteSchema) {
		return nil
	}
	num, ok := uintField(inner["proposal_id"])
	if !ok {
		logger.Warn("invalid proposal_id in vote", zap.Any("proposal_id", inner["proposal_id"]))
		return nil
	}

	status, err := wasm.MessageAttribute(msg, wasm.EventTypeWasm, "status")
	if err != nil || status == "" {
		logger.Error("status not found in vote events", zap.Uint64("proposal", num), zap.Error(err))
		return nil
	}

	proposal, ok, err := h.updateOrCreateProposal(ctx, msg, num, status == statusOpen, logger)
	if err != nil || !ok {
		return err
	}

	wallet := model.Wallet{ID: msg.Sender}
	if err := store.Save(ctx, h.env.Store, wallet); err != nil {
		return fmt.Errorf("save wallet %s: %w", wallet.ID, err)
	}

	vote := model.ProposalVote{
		ID:         model.JoinID(proposal.ID, msg.Sender),
		WalletID:   wallet.ID,
		ProposalID: proposal.ID,
		VotedAt:    msg.BlockTime.UTC(),
	}
	if err := store.Save(ctx, h.env.Store, vote); err != nil {
		return fmt.Errorf("save vote %s: %w", vote.ID, err)
	}
	logger.Info("voted", zap.String("proposal", proposal.ID), zap.String("voter", msg.Sender), zap.String("status", status))
	return nil
}

func (h *Proposals) finalize(ctx context.Context, msg model.Message, action string, inner map[string]any, logger *zap.Logger) error {
	if !schema.Matches(inner, proposalIDSchema) {
		return nil
	}
	num, ok := uintField(inner["proposal_id"])
	if !ok {
		return nil
	}

	id := model.ProposalID(msg.Contract, num)
	proposal, ok, err := store.Load[model.Proposal](ctx, h.env.Store, id)
	if err != nil {
		return err
	}
	if !ok {
		logger.Error("proposal not found", zap.String("proposal", id), zap.String("action", action))
		return nil
	}

	at := msg.BlockTime.UTC()
	proposal.Open = false
	if action == actionExecute {
		proposal.ExecutedAt = &at
	} else {
		proposal.ClosedAt = &at
	}
	if msg.BlockHeight > proposal.StatusUpdatedHeight {
		proposal.StatusUpdatedHeight = msg.BlockHeight
	}
	if err := store.Save(ctx, h.env.Store, proposal); err != nil {
		return fmt.Errorf("save proposal %s: %w", id, err)
	}
	logger.Info("proposal finalized", zap.String("proposal", id), zap.String("action", action))
	return nil
}

// updateOrCreateProposal returns the proposal, creating it (and its module)
// with its expiration queried from chain when first seen. An existing
// proposal takes open unless it is already executed or closed, or the
// message is older than its last status change.
func (h *Proposals) updateOrCreateProposal(ctx context.Context, msg model.Message, num uint64, open bool, logger *zap.Logger) (model.Proposal, bool, error) {
	id := model.ProposalID(msg.Contract, num)
	proposal, ok, err := store.Load[model.Proposal](ctx, h.env.Store, id)
	if err != nil {
		return model.Proposal{}, false, err
	}

	if !ok {
		expiresAtDate, expiresAtHeight, err := h.queryExpiration(ctx, msg.Contract, num)
		if err != nil {
			logger.Error("expiration unavailable", zap.String("proposal", id), zap.Error(err))
			return model.Proposal{}, false, nil
		}
		if err := h.ensureModule(ctx, msg.Contract); err != nil {
			return model.Proposal{}, false, err
		}
		proposal = model.Proposal{
			ID:                  id,
			ModuleID:            msg.Contract,
			Num:                 num,
			Open:                open,
			ExpiresAtDate:       expiresAtDate,
			ExpiresAtHeight:     expiresAtHeight,
			CreatedAt:           msg.BlockTime.UTC(),
			StatusUpdatedHeight: msg.BlockHeight,
		}
		if err := store.Save(ctx, h.env.Store, proposal); err != nil {
			return model.Proposal{}, false, fmt.Errorf("save proposal %s: %w", id, err)
		}
		return proposal, true, nil
	}

	if proposal.Open == open || proposal.Finalized() || msg.BlockHeight < proposal.StatusUpdatedHeight {
		return proposal, true, nil
	}
	proposal.Open = open
	proposal.StatusUpdatedHeight = msg.BlockHeight
	if err := store.Save(ctx, h.env.Store, proposal); err != nil {
		return model.Proposal{}, false, fmt.Errorf("save proposal %s: %w", id, err)
	}
	return proposal, true, nil
}

func (h *Proposals) ensureModule(ctx context.Context, address string) error {
	_, ok, err := store.Load[model.ProposalModule](ctx, h.env.Store, address)
	if err != nil || ok {
		return err
	}
	return store.Save(ctx, h.env.Store, model.ProposalModule{ID: address})
}

func (h *Proposals) queryExpiration(ctx context.Context, module string, num uint64) (*time.Time, uint64, error) {
	raw, err := h.env.Chain.QueryContractSmart(ctx, module, map[string]any{
		"proposal": map[string]any{"proposal_id": num},
	})
	metrics.RecordBootstrapQuery("proposal", err)
	if err != nil {
		return nil, 0, err
	}

	var response map[string]any
	if err := json.Unmarshal(raw, &response); err != nil {
		return nil, 0, fmt.Errorf("decode proposal response: %w", err)
	}
	if !schema.Matches(response, proposalResponseSchema) {
		return nil, 0, fmt.Errorf("invalid proposal response: %s", raw)
	}

	expiration, _ := response["proposal"].(map[string]any)["expiration"].(map[string]any)
	return parseExpiration(expiration)
}

// parseExpiration reads a cw-utils Expiration: at_height, at_time in
// nanoseconds, or never.
func parseExpiration(expiration map[string]any) (*time.Time, uint64, error) {
	if value, ok := expiration["at_height"]; ok {
		height, ok := uintField(value)
		if !ok {
			return nil, 0, fmt.Errorf("invalid at_height %v", value)
		}
		return nil, height, nil
	}
	if value, ok := expiration["at_time"]; ok {
		ns, ok := uintField(value)
		if !ok {
			return nil, 0, fmt.Errorf("invalid at_time %v", value)
		}
		t := time.Unix(0, int64(ns)).UTC()
		return &t, 0, nil
	}
	return nil, 0, nil
}
