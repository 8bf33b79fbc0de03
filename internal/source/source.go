// Package source delivers host messages to the runner in feed order.
package source

import (
	"context"
	"errors"

	"wasmScope/internal/model"
)

var (
	// ErrMalformed marks a feed entry that is not a message. The entry is
	// consumed and the next call to Next continues after it.
	ErrMalformed = errors.New("malformed feed entry")
	// ErrExhausted is returned by finite sources after the last message.
	ErrExhausted = errors.New("source exhausted")
)

// Source is an ordered feed of host messages.
type Source interface {
	// Next blocks until the next message is available.
	Next(ctx context.Context) (model.Message, error)
	// Commit acknowledges every message returned so far.
	Commit(ctx context.Context) error
	Close() error
}
