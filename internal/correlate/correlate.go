// Package correlate matches decoded contract events against the classified
// body message of their transaction and extracts token transitions.
package correlate

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"wasmScope/internal/classify"
	"wasmScope/internal/model"
)

var (
	// ErrNotAllowed means an acting contract's code id is not allow-listed.
	// The message is skipped without further processing.
	ErrNotAllowed = errors.New("contract code id not allow-listed")
	// ErrInconsistent means an event disagrees with the body message.
	ErrInconsistent = errors.New("event inconsistent with body message")
	// ErrMalformedEvent means a required attribute is missing or invalid.
	ErrMalformedEvent = errors.New("malformed contract event")
)

// CW20Actions is the action vocabulary of cw20 and cw20-stake contracts.
var CW20Actions = []string{
	model.ActionTransfer,
	model.ActionBurn,
	model.ActionSend,
	model.ActionMint,
	model.ActionIncreaseAllowance,
	model.ActionDecreaseAllowance,
	model.ActionTransferFrom,
	model.ActionBurnFrom,
	model.ActionSendFrom,
	model.ActionStake,
	model.ActionUnstake,
}

// CW20Vocabulary recognises CW20Actions plus the bare stake hook.
func CW20Vocabulary() classify.Vocabulary {
	return classify.NewVocabulary(CW20Actions, map[string]string{
		`{"stake":{}}`: model.ActionStake,
	})
}

// CodeIDResolver resolves a contract's code id.
type CodeIDResolver interface {
	CodeID(ctx context.Context, address string) (uint64, error)
}

// Correlator walks the decoded events of one message.
type Correlator struct {
	Vocabulary classify.Vocabulary
	AllowList  map[uint64]bool
	Contracts  CodeIDResolver
	Logger     *zap.Logger
}

// Correlate returns the transitions the events of msg imply. It is all or
// nothing: any rejected or inconsistent event discards the whole message.
func (c *Correlator) Correlate(ctx context.Context, msg model.Message, events []model.DecodedEvent, classified model.ClassifiedMsg) ([]model.Transition, error) {
	logger := c.logger()
	verified := make(map[string]bool)
	verify := func(contract string) error {
		if ok, seen := verified[contract]; seen {
			if !ok {
				return fmt.Errorf("%s: %w", contract, ErrNotAllowed)
			}
			return nil
		}
		codeID, err := c.Contracts.CodeID(ctx, contract)
		if err != nil {
			return fmt.Errorf("resolve code id of %s: %w", contract, err)
		}
		verified[contract] = c.AllowList[codeID]
		if !c.AllowList[codeID] {
			return fmt.Errorf("%s (code %d): %w", contract, codeID, ErrNotAllowed)
		}
		return nil
	}

	var (
		primary     string
		secondary   = classified.TargetContract
		transitions []model.Transition
	)
	for _, ev := range events {
		if ev.Action == "" || !c.Vocabulary.Recognizes(ev.Action) {
			continue
		}

		if ev.Action != classified.Action {
			if err := verify(ev.ContractAddress); err != nil {
				return nil, err
			}
			if primary == "" {
				primary = ev.ContractAddress
			}
		}

		contract := primary
		if contract == "" {
			contract = msg.Contract
			if err := verify(contract); err != nil {
				return nil, err
			}
		}

		t, ok, err := extract(ev, msg, contract, secondary)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Debug("event carries no balance change", zap.String("action", ev.Action), zap.String("contract", ev.ContractAddress))
			continue
		}
		t.Height = msg.BlockHeight
		t.TxHash = msg.TxHash
		transitions = append(transitions, t)
	}
	return transitions, nil
}

func extract(ev model.DecodedEvent, msg model.Message, contract, secondary string) (model.Transition, bool, error) {
	t := model.Transition{Action: ev.Action, Contract: contract}
	var err error

	switch ev.Action {
	case model.ActionMint:
		if t.To, err = requireAttr(ev, "to"); err != nil {
			return t, false, err
		}
		t.Amount, err = amountAttr(ev)
	case model.ActionTransfer, model.ActionTransferFrom:
		if t.From, err = requireAttr(ev, "from"); err != nil {
			return t, false, err
		}
		if t.To, err = requireAttr(ev, "to"); err != nil {
			return t, false, err
		}
		t.Amount, err = amountAttr(ev)
	case model.ActionBurn, model.ActionBurnFrom:
		if t.From, err = requireAttr(ev, "from"); err != nil {
			return t, false, err
		}
		t.Amount, err = amountAttr(ev)
	case model.ActionSend, model.ActionSendFrom:
		t.From = attrOr(ev, "from", msg.Sender)
		if t.To, err = requireAttr(ev, "to"); err != nil {
			return t, false, err
		}
		if t.Amount, err = amountAttr(ev); err != nil {
			return t, false, err
		}
		if ev.ContractAddress != contract {
			return t, false, fmt.Errorf("send emitted by %s, token contract is %s: %w", ev.ContractAddress, contract, ErrInconsistent)
		}
		if secondary != "" && secondary != t.To {
			return t, false, fmt.Errorf("send to %s, body targets %s: %w", t.To, secondary, ErrInconsistent)
		}
	case model.ActionStake:
		if t.From, err = requireAttr(ev, "from"); err != nil {
			return t, false, err
		}
		t.To = ev.ContractAddress
		if t.StakedAmount, err = amountAttr(ev); err != nil {
			return t, false, err
		}
		if secondary != t.To {
			return t, false, fmt.Errorf("stake on %s, body targets %q: %w", t.To, secondary, ErrInconsistent)
		}
	case model.ActionUnstake:
		t.From = attrOr(ev, "from", msg.Sender)
		t.StakedAmount, err = amountAttr(ev)
	default:
		return t, false, nil
	}
	if err != nil {
		return t, false, err
	}
	return t, true, nil
}

func requireAttr(ev model.DecodedEvent, key string) (string, error) {
	value, ok := ev.First(key)
	if !ok || value == "" {
		return "", fmt.Errorf("%s event of %s without %q: %w", ev.Action, ev.ContractAddress, key, ErrMalformedEvent)
	}
	return value, nil
}

func attrOr(ev model.DecodedEvent, key, fallback string) string {
	if value, ok := ev.First(key); ok && value != "" {
		return value
	}
	return fallback
}

func amountAttr(ev model.DecodedEvent) (*big.Int, error) {
	value, err := requireAttr(ev, "amount")
	if err != nil {
		return nil, err
	}
	amount, err := model.ParseAmount(value)
	if err != nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("%s amount %q: %w", ev.Action, value, ErrMalformedEvent)
	}
	return amount, nil
}

func (c *Correlator) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
