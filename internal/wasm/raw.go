package wasm

import (
	"bytes"

	"wasmScope/internal/model"
)

var (
	actionKey          = []byte(AttrAction)
	contractAddressKey = []byte(AttrContractAddress)
)

// Matcher selects events having an attribute with Key and, when Value is
// non-nil, that exact value.
type Matcher struct {
	Key   string
	Value *string
}

// MatchValue is a Matcher requiring key=value.
func MatchValue(key, value string) Matcher {
	return Matcher{Key: key, Value: &value}
}

// MatchKey is a Matcher requiring only the presence of key.
func MatchKey(key string) Matcher {
	return Matcher{Key: key}
}

// FindMatchingEvent returns the first wasm event whose decoded attributes
// satisfy every matcher.
func FindMatchingEvent(events []model.RawEvent, matchers []Matcher) (model.DecodedEvent, bool) {
	for _, event := range events {
		if event.Type != EventTypeWasm {
			continue
		}
		decoded := LogEventsFromRaw([]model.RawEvent{event})[0]
		if !matchesAll(decoded.Attributes, matchers) {
			continue
		}
		contract, _ := FindAttribute([]LogEvent{decoded}, EventTypeWasm, AttrContractAddress)
		action, _ := FindAttribute([]LogEvent{decoded}, EventTypeWasm, AttrAction)
		return model.DecodedEvent{
			SourceType:      EventTypeWasm,
			ContractAddress: contract,
			Action:          action,
			Attributes:      decoded.Attributes,
		}, true
	}
	return model.DecodedEvent{}, false
}

func matchesAll(attrs []model.Attribute, matchers []Matcher) bool {
	for _, matcher := range matchers {
		found := false
		for _, attr := range attrs {
			if attr.Key == matcher.Key && (matcher.Value == nil || attr.Value == *matcher.Value) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// FindContractAddressesForAction returns the _contract_address of every
// wasm event whose action attribute equals action.
func FindContractAddressesForAction(events []model.RawEvent, action string) []string {
	var out []string
	for _, event := range events {
		if event.Type != EventTypeWasm {
			continue
		}
		var actionValue, contract []byte
		var hasAction, hasContract bool
		for _, attr := range event.Attributes {
			if !hasAction && bytes.Equal(attr.Key, actionKey) {
				actionValue, hasAction = attr.Value, true
			}
			if !hasContract && bytes.Equal(attr.Key, contractAddressKey) && len(attr.Value) > 0 {
				contract, hasContract = attr.Value, true
			}
		}
		if hasAction && hasContract && string(actionValue) == action {
			out = append(out, string(contract))
		}
	}
	return out
}
