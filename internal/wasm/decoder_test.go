package wasm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"wasmScope/internal/model"
)

const sendStakeLog = `[{"events":[
	{"type":"message","attributes":[{"key":"action","value":"/cosmwasm.wasm.v1.MsgExecuteContract"}]},
	{"type":"wasm","attributes":[
		{"key":"_contract_address","value":"juno1token"},
		{"key":"action","value":"send"},
		{"key":"from","value":"juno1alice"},
		{"key":"to","value":"juno1staking"},
		{"key":"amount","value":"500"},
		{"key":"_contract_address","value":"juno1staking"},
		{"key":"action","value":"stake"},
		{"key":"from","value":"juno1alice"},
		{"key":"amount","value":"500"}
	]}
]}]`

func TestDecodeTwoBreakpoints(t *testing.T) {
	events, err := Decode(sendStakeLog, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.Equal(t, "juno1token", events[0].ContractAddress)
	require.Equal(t, "send", events[0].Action)
	require.Len(t, events[0].Attributes, 5)
	require.Equal(t, model.Attribute{Key: AttrContractAddress, Value: "juno1token"}, events[0].Attributes[0])
	to, ok := events[0].First("to")
	require.True(t, ok)
	require.Equal(t, "juno1staking", to)

	require.Equal(t, "juno1staking", events[1].ContractAddress)
	require.Equal(t, "stake", events[1].Action)
	require.Len(t, events[1].Attributes, 4)
	_, ok = events[1].First("to")
	require.False(t, ok)
}

func TestDecodeSelectsMessageIndex(t *testing.T) {
	raw := `[
		{"events":[{"type":"wasm","attributes":[{"key":"_contract_address","value":"first"},{"key":"action","value":"transfer"}]}]},
		{"msg_index":1,"events":[{"type":"wasm","attributes":[{"key":"_contract_address","value":"second"},{"key":"action","value":"mint"}]}]},
		{"msg_index":"2","events":[{"type":"wasm","attributes":[{"key":"_contract_address","value":"third"}]}]}
	]`

	events, err := Decode(raw, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "first", events[0].ContractAddress)

	events, err = Decode(raw, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "second", events[0].ContractAddress)
	require.Equal(t, "mint", events[0].Action)

	events, err = Decode(raw, 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Empty(t, events[0].Action)

	events, err = Decode(raw, 5)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestDecodeConcatenatesWasmEvents(t *testing.T) {
	raw := `[{"events":[
		{"type":"wasm","attributes":[{"key":"orphan","value":"x"},{"key":"_contract_address","value":"a"},{"key":"action","value":"send"}]},
		{"type":"transfer","attributes":[{"key":"_contract_address","value":"ignored"}]},
		{"type":"wasm","attributes":[{"key":"_contract_address","value":"b"},{"key":"action","value":"stake"},{"key":"action","value":"restake"}]}
	]}]`

	events, err := Decode(raw, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "a", events[0].ContractAddress)
	require.Len(t, events[0].Attributes, 2)
	require.Equal(t, "restake", events[1].Action)
	first, _ := events[1].First(AttrAction)
	last, _ := events[1].Last(AttrAction)
	require.Equal(t, "stake", first)
	require.Equal(t, "restake", last)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode("not json", 0)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMalformedLog))

	_, err = DecodeMessage(model.Message{Log: "{", TxHash: "abc"})
	require.True(t, errors.Is(err, ErrMalformedLog))
}

func TestFindLogAttribute(t *testing.T) {
	value, err := FindLogAttribute(sendStakeLog, 0, EventTypeWasm, "amount")
	require.NoError(t, err)
	require.Equal(t, "500", value)

	_, err = FindLogAttribute(sendStakeLog, 0, EventTypeWasm, "missing")
	require.Error(t, err)
}

func rawEvent(typ string, kv ...string) model.RawEvent {
	event := model.RawEvent{Type: typ}
	for i := 0; i+1 < len(kv); i += 2 {
		event.Attributes = append(event.Attributes, model.RawEventAttribute{Key: []byte(kv[i]), Value: []byte(kv[i+1])})
	}
	return event
}

func TestRawEventHelpers(t *testing.T) {
	events := []model.RawEvent{
		rawEvent("message", "action", "execute"),
		rawEvent("wasm", "_contract_address", "core1", "action", "execute_update_admin", "new_admin", "parent1"),
		rawEvent("wasm", "_contract_address", "core2", "action", "execute_update_admin"),
		rawEvent("wasm", "_contract_address", "", "action", "execute_update_admin"),
	}

	event, ok := FindMatchingEvent(events, []Matcher{MatchValue("action", "execute_update_admin"), MatchKey("new_admin")})
	require.True(t, ok)
	require.Equal(t, "core1", event.ContractAddress)
	value, _ := event.First("new_admin")
	require.Equal(t, "parent1", value)

	_, ok = FindMatchingEvent(events, []Matcher{MatchValue("action", "missing")})
	require.False(t, ok)

	require.Equal(t, []string{"core1", "core2"}, FindContractAddressesForAction(events, "execute_update_admin"))

	decoded, err := DecodeMessage(model.Message{Events: events})
	require.NoError(t, err)
	require.Len(t, decoded, 3)
}

func TestMessageAttribute(t *testing.T) {
	msg := model.Message{Log: sendStakeLog}
	value, err := MessageAttribute(msg, EventTypeWasm, "amount")
	require.NoError(t, err)
	require.Equal(t, "500", value)

	msg = model.Message{Events: []model.RawEvent{rawEvent("instantiate", "_contract_address", "juno1core", "code_id", "7")}}
	value, err = MessageAttribute(msg, EventTypeInstantiate, AttrContractAddress)
	require.NoError(t, err)
	require.Equal(t, "juno1core", value)

	_, err = MessageAttribute(msg, EventTypeWasm, "new_admin")
	require.Error(t, err)
}
