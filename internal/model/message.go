package model

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

const (
	MsgExecuteContract      = "/cosmwasm.wasm.v1.MsgExecuteContract"
	MsgInstantiateContract  = "/cosmwasm.wasm.v1.MsgInstantiateContract"
	MsgInstantiateContract2 = "/cosmwasm.wasm.v1.MsgInstantiateContract2"
)

// Coin is a denom/amount pair attached to a message as funds.
type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// RawEventAttribute is an ABCI event attribute as delivered by the node, with
// key and value kept as bytes.
type RawEventAttribute struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

// RawEvent is a transaction result event with binary attributes.
type RawEvent struct {
	Type       string              `json:"type"`
	Attributes []RawEventAttribute `json:"attributes"`
}

// Message is one decoded body message of a transaction, as delivered by the
// host feed. Msg holds the contract payload either as a JSON object or as a
// JSON string wrapping one.
type Message struct {
	Type        string          `json:"type"`
	Sender      string          `json:"sender"`
	Contract    string          `json:"contract,omitempty"`
	CodeID      uint64          `json:"code_id,omitempty"`
	Msg         json.RawMessage `json:"msg"`
	Funds       []Coin          `json:"funds,omitempty"`
	TxHash      string          `json:"tx_hash"`
	TxIndex     uint32          `json:"tx_index"`
	MsgIndex    int             `json:"msg_index"`
	Log         string          `json:"log"`
	Events      []RawEvent      `json:"events,omitempty"`
	BlockHeight uint64          `json:"block_height"`
	BlockTime   time.Time       `json:"block_time"`
}

// Position returns the message's place in the canonical feed order.
func (m Message) Position() Position {
	return Position{Height: m.BlockHeight, TxIndex: m.TxIndex, TxHash: m.TxHash, MsgIndex: m.MsgIndex}
}

// Payload decodes Msg into a generic object. String payloads are unquoted
// and, if they are not JSON themselves, treated as base64 encoded JSON.
func (m Message) Payload() (map[string]any, error) {
	raw := bytes.TrimSpace(m.Msg)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty msg")
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("unquote msg: %w", err)
		}
		raw = []byte(s)
		if !json.Valid(raw) {
			decoded, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("decode msg: %w", err)
			}
			raw = decoded
		}
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse msg: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("msg is not an object")
	}
	return out, nil
}

// Position orders messages by block height, transaction index, then message
// index within the transaction. TxHash identifies the transaction when the
// feed carries no transaction index.
type Position struct {
	Height   uint64 `json:"height"`
	TxIndex  uint32 `json:"tx_index"`
	TxHash   string `json:"tx_hash,omitempty"`
	MsgIndex int    `json:"msg_index"`
}

// SameMessage reports whether p and other name the same message.
func (p Position) SameMessage(other Position) bool {
	return p.Height == other.Height && p.TxHash == other.TxHash && p.MsgIndex == other.MsgIndex
}

// After reports whether p sorts strictly after other.
func (p Position) After(other Position) bool {
	if p.Height != other.Height {
		return p.Height > other.Height
	}
	if p.TxIndex != other.TxIndex {
		return p.TxIndex > other.TxIndex
	}
	return p.MsgIndex > other.MsgIndex
}

func (p Position) String() string {
	if p.TxHash != "" {
		return fmt.Sprintf("%d/%s/%d", p.Height, p.TxHash, p.MsgIndex)
	}
	return fmt.Sprintf("%d/%d/%d", p.Height, p.TxIndex, p.MsgIndex)
}
