// Package wasm recovers per-contract events from transaction logs.
package wasm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"wasmScope/internal/model"
)

const (
	EventTypeWasm        = "wasm"
	EventTypeInstantiate = "instantiate"

	AttrContractAddress = "_contract_address"
	AttrAction          = "action"
)

// ErrMalformedLog is returned when a transaction log is not well-formed.
var ErrMalformedLog = errors.New("malformed log")

// LogEvent is a typed event of a message log with string attributes.
type LogEvent struct {
	Type       string            `json:"type"`
	Attributes []model.Attribute `json:"attributes"`
}

// MsgIndex is a message index that may be encoded as a number or a string.
type MsgIndex int

func (m *MsgIndex) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	v, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("msg_index: %w", err)
	}
	*m = MsgIndex(v)
	return nil
}

// MessageLog is the block of events produced by one message.
type MessageLog struct {
	MsgIndex *MsgIndex  `json:"msg_index,omitempty"`
	Log      string     `json:"log,omitempty"`
	Events   []LogEvent `json:"events"`
}

// TxLog is a transaction's raw log: one block per message.
type TxLog []MessageLog

// ParseLog parses a raw transaction log string.
func ParseLog(raw string) (TxLog, error) {
	var out TxLog
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLog, err)
	}
	return out, nil
}

// MessageEvents returns the events of the message at idx. The first
// message's block omits msg_index; an explicit zero is accepted too.
func (l TxLog) MessageEvents(idx int) ([]LogEvent, bool) {
	for _, block := range l {
		if block.MsgIndex == nil {
			if idx == 0 {
				return block.Events, true
			}
			continue
		}
		if int(*block.MsgIndex) == idx {
			return block.Events, true
		}
	}
	return nil, false
}

// FindAttribute returns the first value of key within the first event of
// eventType, looking only at the events of message idx.
func (l TxLog) FindAttribute(idx int, eventType, key string) (string, bool) {
	events, ok := l.MessageEvents(idx)
	if !ok {
		return "", false
	}
	return FindAttribute(events, eventType, key)
}

// FindAttribute returns the first value of key within the first event of
// eventType.
func FindAttribute(events []LogEvent, eventType, key string) (string, bool) {
	for _, event := range events {
		if event.Type != eventType {
			continue
		}
		for _, attr := range event.Attributes {
			if attr.Key == key {
				return attr.Value, true
			}
		}
		return "", false
	}
	return "", false
}

// FindLogAttribute parses rawLog and looks up an attribute of message idx.
func FindLogAttribute(rawLog string, idx int, eventType, key string) (string, error) {
	txLog, err := ParseLog(rawLog)
	if err != nil {
		return "", err
	}
	value, ok := txLog.FindAttribute(idx, eventType, key)
	if !ok {
		return "", fmt.Errorf("attribute %s.%s not found for message %d", eventType, key, idx)
	}
	return value, nil
}
