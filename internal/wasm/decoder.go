package wasm

import (
	"fmt"

	"wasmScope/internal/model"
)

// DecodeContractEvents concatenates the attribute streams of all wasm events
// and splits them into one DecodedEvent per _contract_address breakpoint.
// Attributes appearing before the first breakpoint belong to no contract and
// are dropped.
func DecodeContractEvents(events []LogEvent) []model.DecodedEvent {
	var out []model.DecodedEvent
	var current *model.DecodedEvent

	for _, event := range events {
		if event.Type != EventTypeWasm {
			continue
		}
		for _, attr := range event.Attributes {
			if attr.Key == AttrContractAddress {
				if current != nil {
					out = append(out, *current)
				}
				current = &model.DecodedEvent{
					SourceType:      EventTypeWasm,
					ContractAddress: attr.Value,
				}
			}
			if current == nil {
				continue
			}
			if attr.Key == AttrAction {
				current.Action = attr.Value
			}
			current.Attributes = append(current.Attributes, attr)
		}
	}
	if current != nil {
		out = append(out, *current)
	}
	return out
}

// Decode parses rawLog and returns the contract events of message idx.
func Decode(rawLog string, idx int) ([]model.DecodedEvent, error) {
	txLog, err := ParseLog(rawLog)
	if err != nil {
		return nil, err
	}
	events, ok := txLog.MessageEvents(idx)
	if !ok {
		return nil, nil
	}
	return DecodeContractEvents(events), nil
}

// DecodeMessage decodes the contract events of msg, preferring the raw log
// and falling back to the binary result events.
func DecodeMessage(msg model.Message) ([]model.DecodedEvent, error) {
	if msg.Log != "" {
		events, err := Decode(msg.Log, msg.MsgIndex)
		if err != nil {
			return nil, fmt.Errorf("tx %s msg %d: %w", msg.TxHash, msg.MsgIndex, err)
		}
		return events, nil
	}
	if len(msg.Events) > 0 {
		return DecodeContractEvents(LogEventsFromRaw(msg.Events)), nil
	}
	return nil, nil
}

// LogEventsFromRaw converts binary result events into string form.
func LogEventsFromRaw(events []model.RawEvent) []LogEvent {
	out := make([]LogEvent, 0, len(events))
	for _, event := range events {
		attrs := make([]model.Attribute, 0, len(event.Attributes))
		for _, attr := range event.Attributes {
			attrs = append(attrs, model.Attribute{Key: string(attr.Key), Value: string(attr.Value)})
		}
		out = append(out, LogEvent{Type: event.Type, Attributes: attrs})
	}
	return out
}

// MessageAttribute looks up an attribute of msg's own events, from the raw
// log when present and otherwise from the binary result events.
func MessageAttribute(msg model.Message, eventType, key string) (string, error) {
	if msg.Log != "" {
		return FindLogAttribute(msg.Log, msg.MsgIndex, eventType, key)
	}
	value, ok := FindAttribute(LogEventsFromRaw(msg.Events), eventType, key)
	if !ok {
		return "", fmt.Errorf("attribute %s.%s not found in result events", eventType, key)
	}
	return value, nil
}
