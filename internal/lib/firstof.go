package lib

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// Accessor reads one candidate value from src, ok is false when the value is absent or empty
type Accessor[S any, T any] func(src S) (value T, ok bool)

// FirstOf tries accessors in order and returns the first value reported as present.
// The order of accessors is the precedence.
func FirstOf[S any, T any](src S, accessors ...Accessor[S, T]) (T, bool) {
	for _, acc := range accessors {
		if v, ok := acc(src); ok {
			return v, true
		}
	}
	return *new(T), false
}

// FirstOfOr is FirstOf with a fallback for when no accessor matches
func FirstOfOr[S any, T any](src S, fallback T, accessors ...Accessor[S, T]) T {
	if v, ok := FirstOf(src, accessors...); ok {
		return v
	}
	return fallback
}

type Fields = map[string]interface{}

// NumberField reads a numeric field that may arrive as a JSON number or a numeric string.
// Zero, NaN and unparsable values count as absent.
func NumberField(name string) Accessor[Fields, float64] {
	return func(src Fields) (float64, bool) {
		raw, ok := src[name]
		if !ok || raw == nil {
			return 0, false
		}
		switch t := raw.(type) {
		case json.Number:
			raw = t.String()
		case string:
			raw = strings.TrimSpace(t)
		}
		v, err := cast.ToFloat64E(raw)
		if err != nil || v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	}
}

// StringField reads a field as a trimmed string, empty strings count as absent.
// Numeric ids are rendered without exponent.
func StringField(name string) Accessor[Fields, string] {
	return func(src Fields) (string, bool) {
		raw, ok := src[name]
		if !ok || raw == nil {
			return "", false
		}
		switch t := raw.(type) {
		case json.Number:
			raw = t.String()
		case float64:
			if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
				raw = int64(t)
			}
		case map[string]interface{}, []interface{}:
			return "", false
		}
		s, err := cast.ToStringE(raw)
		if err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	}
}

// NumberFields is a shorthand for a chain of NumberField accessors
func NumberFields(names ...string) []Accessor[Fields, float64] {
	res := make([]Accessor[Fields, float64], len(names))
	for i, name := range names {
		res[i] = NumberField(name)
	}
	return res
}

// StringFields is a shorthand for a chain of StringField accessors
func StringFields(names ...string) []Accessor[Fields, string] {
	res := make([]Accessor[Fields, string], len(names))
	for i, name := range names {
		res[i] = StringField(name)
	}
	return res
}

// Constant always reports v as present, used as the last link of a chain
func Constant[S any, T any](v T) Accessor[S, T] {
	return func(S) (T, bool) { return v, true }
}

// Value reports v as present unless it is the zero value of T
func Value[S any, T comparable](v T) Accessor[S, T] {
	return func(S) (T, bool) { return v, v != *new(T) }
}
