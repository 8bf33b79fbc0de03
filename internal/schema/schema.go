// Package schema matches decoded JSON objects against declarative key
// layouts, so handlers can accept several versions of a contract's message
// or response shape without per-version branches.
package schema

import "encoding/json"

// Schema is either Keys or Shape.
type Schema interface {
	isSchema()
}

// Keys requires the presence of every listed key. Extra keys are allowed.
type Keys []string

// Shape requires every key of Fields to be present and, when Exact is set,
// no other keys. A nil field schema only checks presence; any other field
// schema requires the value to be a JSON object and is matched recursively.
type Shape struct {
	Fields map[string]Schema
	Exact  bool
}

func (Keys) isSchema()  {}
func (Shape) isSchema() {}

// Present is a field schema that only checks presence.
var Present Schema

// Matches reports whether obj has the layout described by s. A nil object
// never matches.
func Matches(obj map[string]any, s Schema) bool {
	if obj == nil || s == nil {
		return false
	}

	switch typed := s.(type) {
	case Keys:
		for _, key := range typed {
			if _, ok := obj[key]; !ok {
				return false
			}
		}
		return true
	case Shape:
		for key := range typed.Fields {
			if _, ok := obj[key]; !ok {
				return false
			}
		}
		if typed.Exact && len(typed.Fields) != len(obj) {
			return false
		}
		for key, child := range typed.Fields {
			if child == nil {
				continue
			}
			nested, ok := obj[key].(map[string]any)
			if !ok || !Matches(nested, child) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// MatchesValue is Matches for an untyped value, which must be an object.
func MatchesValue(value any, s Schema) bool {
	obj, ok := value.(map[string]any)
	if !ok {
		return false
	}
	return Matches(obj, s)
}

// MatchesJSON decodes raw and matches it against s. Invalid JSON and
// non-object documents never match.
func MatchesJSON(raw []byte, s Schema) bool {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	return Matches(obj, s)
}
