package model

// Attribute is a single key/value pair of a contract event.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// DecodedEvent is one contiguous attribute segment emitted by a single
// contract inside a transaction's wasm events.
type DecodedEvent struct {
	SourceType      string      `json:"source_type"`
	ContractAddress string      `json:"contract_address"`
	Action          string      `json:"action,omitempty"`
	Attributes      []Attribute `json:"attributes"`
}

// First returns the value of the first attribute with the given key.
func (e DecodedEvent) First(key string) (string, bool) {
	for _, attr := range e.Attributes {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// Last returns the value of the last attribute with the given key.
func (e DecodedEvent) Last(key string) (string, bool) {
	for i := len(e.Attributes) - 1; i >= 0; i-- {
		if e.Attributes[i].Key == key {
			return e.Attributes[i].Value, true
		}
	}
	return "", false
}

// ClassifiedMsg is the canonical action a body message represents after
// nested payloads have been unwrapped.
type ClassifiedMsg struct {
	Action         string         `json:"action,omitempty"`
	TargetContract string         `json:"target_contract,omitempty"`
	Amount         string         `json:"amount,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	Depth          int            `json:"depth"`
}

// Empty reports whether no action was recognised.
func (c ClassifiedMsg) Empty() bool {
	return c.Action == ""
}

// DecodedMessage is the offline decode output for one message.
type DecodedMessage struct {
	TxHash      string         `json:"tx_hash"`
	MsgIndex    int            `json:"msg_index"`
	BlockHeight uint64         `json:"block_height"`
	Contract    string         `json:"contract"`
	Classified  ClassifiedMsg  `json:"classified"`
	Events      []DecodedEvent `json:"events"`
}
