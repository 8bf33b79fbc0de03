// Package classify determines the canonical action a signed body message
// represents, unwrapping base64 encoded hook messages carried inside it.
package classify

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"unicode"

	"wasmScope/internal/model"
)

// DefaultMaxDepth bounds the number of payload levels examined.
const DefaultMaxDepth = 8

// Vocabulary is the set of actions a variant recognises, plus literal
// payloads that map straight to an action.
type Vocabulary struct {
	actions  map[string]struct{}
	literals map[string]string
}

// NewVocabulary builds a Vocabulary. Literal payloads are normalised the
// same way incoming payloads are before comparison.
func NewVocabulary(actions []string, literals map[string]string) Vocabulary {
	v := Vocabulary{
		actions:  make(map[string]struct{}, len(actions)),
		literals: make(map[string]string, len(literals)),
	}
	for _, action := range actions {
		v.actions[action] = struct{}{}
	}
	for literal, action := range literals {
		v.literals[normalize(literal)] = action
	}
	return v
}

// Recognizes reports whether action belongs to the vocabulary.
func (v Vocabulary) Recognizes(action string) bool {
	_, ok := v.actions[action]
	return ok
}

func (v Vocabulary) literal(normalized string) (string, bool) {
	action, ok := v.literals[normalized]
	return action, ok
}

// Classifier classifies body payloads against a Vocabulary.
type Classifier struct {
	Vocabulary Vocabulary
	MaxDepth   int
}

// New returns a Classifier with the default depth bound.
func New(vocab Vocabulary) Classifier {
	return Classifier{Vocabulary: vocab, MaxDepth: DefaultMaxDepth}
}

type stepKind int

const (
	stepExhausted stepKind = iota
	stepLiteral
	stepTerminal
	stepWrapped
)

type step struct {
	kind    stepKind
	action  string
	target  string
	amount  string
	payload map[string]any
	nested  []byte
}

// Classify walks payload levels until a literal or terminal action is found
// or nothing further can be unwrapped. The target contract and amount of the
// outermost level that names them are kept. Payloads nested deeper than
// MaxDepth yield an empty classification.
func (c Classifier) Classify(payload any) model.ClassifiedMsg {
	maxDepth := c.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	var result model.ClassifiedMsg
	current := payload
	for depth := 0; depth < maxDepth; depth++ {
		st := c.step(current)
		switch st.kind {
		case stepExhausted:
			return result
		case stepLiteral:
			result.Action = st.action
			result.Payload = st.payload
			result.Depth = depth
			return result
		}

		result.Action = st.action
		result.Payload = st.payload
		result.Depth = depth
		if result.TargetContract == "" {
			result.TargetContract = st.target
		}
		if result.Amount == "" {
			result.Amount = st.amount
		}
		if st.kind == stepTerminal {
			return result
		}
		current = st.nested
	}
	return model.ClassifiedMsg{}
}

func (c Classifier) step(payload any) step {
	text, obj := canonical(payload)
	if action, ok := c.Vocabulary.literal(text); ok {
		return step{kind: stepLiteral, action: action, payload: obj}
	}
	if len(obj) != 1 {
		return step{kind: stepExhausted}
	}

	for key, value := range obj {
		if !c.Vocabulary.Recognizes(key) {
			return step{kind: stepExhausted}
		}
		st := step{kind: stepTerminal, action: key, payload: obj}
		inner, ok := value.(map[string]any)
		if !ok {
			return st
		}
		st.target, _ = inner["contract"].(string)
		st.amount = stringValue(inner["amount"])

		encoded, ok := inner["msg"].(string)
		if !ok || encoded == "" {
			return st
		}
		nested, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return st
		}
		st.kind = stepWrapped
		st.nested = nested
		return st
	}
	return step{kind: stepExhausted}
}

// canonical renders payload as a normalised string for literal matching
// and, when possible, decodes it into an object.
func canonical(payload any) (string, map[string]any) {
	var raw []byte
	switch typed := payload.(type) {
	case nil:
		return "", nil
	case map[string]any:
		return normalizeObject(typed), typed
	case json.RawMessage:
		raw = typed
	case []byte:
		raw = typed
	case string:
		raw = []byte(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return "", nil
		}
		raw = encoded
	}

	for _, candidate := range [][]byte{raw, []byte(normalize(string(raw)))} {
		var decoded any
		if err := json.Unmarshal(candidate, &decoded); err != nil {
			continue
		}
		if quoted, ok := decoded.(string); ok {
			decoded = nil
			if err := json.Unmarshal([]byte(quoted), &decoded); err != nil {
				return normalize(quoted), nil
			}
		}
		if obj, ok := decoded.(map[string]any); ok {
			return normalizeObject(obj), obj
		}
		break
	}
	return normalize(string(raw)), nil
}

func normalizeObject(obj map[string]any) string {
	encoded, err := json.Marshal(obj)
	if err != nil {
		return ""
	}
	return normalize(string(encoded))
}

// normalize removes escaped quotes and all whitespace.
func normalize(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func stringValue(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return ""
	}
}
