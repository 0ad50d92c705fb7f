// Package value provides the closed set of property scalar types used by graphcore.
//
// Every property stored on a node or an edge is a Value: a tagged union of
// String, Integer (int64), Float (float64), Boolean and Null. The zero Value is
// Null, so an unset Value never needs special casing.
//
// Equality and ordering are defined per variant. Comparing two values of
// different variants is not a panic and not a silent coercion:
//   - Equal returns false
//   - Compare returns ErrIncomparable
//   - Order (used for sorting and for index keys) falls back to the variant rank
//
// Example:
//
//	age := value.Int(30)
//	name := value.String("Alice")
//
//	c, err := value.Compare(age, value.Int(25)) // c == 1, err == nil
//	_, err = value.Compare(age, name)           // err == value.ErrIncomparable
//	value.Equal(age, value.Float(30))           // false: different variants
package value

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrIncomparable is returned by Compare when two values have different variants.
var ErrIncomparable = errors.New("values of different kinds are not comparable")

// Kind identifies the variant held by a Value.
//
// The numeric order of the constants is the rank used by Order when values of
// different kinds meet in a sort or in an index.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is an immutable property scalar.
//
// Value is comparable with ==, which makes it usable as a map key (the join
// engine groups aggregates by Value). Two Float values holding NaN are never
// == to each other, same as plain float64.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
}

// Properties maps property names to values.
type Properties map[string]Value

// Null returns the null marker.
func Null() Value { return Value{} }

// String returns a String value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int returns an Integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a Float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bool returns a Boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null marker.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNumeric reports whether v is an Integer or a Float.
func (v Value) IsNumeric() bool { return v.kind == KindInt || v.kind == KindFloat }

// AsString returns the string payload and true if v is a String.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsInt returns the integer payload and true if v is an Integer.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the float payload and true if v is a Float.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsBool returns the boolean payload and true if v is a Boolean.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// Number returns v as float64 when v is an Integer or a Float.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

// Any returns the Go representation of v: string, int64, float64, bool or nil.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	}
	return nil
}

// String renders v for display. Strings are not quoted.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	return "null"
}

// Size is an approximation of the in-memory footprint of v in bytes.
func (v Value) Size() int {
	return 16 + len(v.s)
}

// Equal reports whether a and b hold the same variant and payload.
// Values of different variants are never equal. Null equals Null.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindString:
		return a.s == b.s
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindBool:
		return a.b == b.b
	}
	return true
}

// Compare orders two values of the same variant.
//
// Returns -1, 0 or +1. Booleans order false before true. Comparing values of
// different variants returns ErrIncomparable; comparing Null with Null returns 0.
func Compare(a, b Value) (int, error) {
	if a.kind != b.kind {
		return 0, fmt.Errorf("%w: %s vs %s", ErrIncomparable, a.kind, b.kind)
	}
	return compareSameKind(a, b), nil
}

// Order is a total order over all values: first by Kind rank, then by payload.
//
// Use it where every pair must be orderable (sorting, B-tree keys). Predicates
// should use Compare so that mixed variants surface as errors instead.
func Order(a, b Value) int {
	if a.kind != b.kind {
		return cmp.Compare(a.kind, b.kind)
	}
	return compareSameKind(a, b)
}

// SortOrder orders a before b for a sort in the given direction. Nulls sort
// last in both directions; everything else follows Order.
func SortOrder(a, b Value, ascending bool) int {
	switch {
	case a.IsNull() && b.IsNull():
		return 0
	case a.IsNull():
		return 1
	case b.IsNull():
		return -1
	}
	c := Order(a, b)
	if !ascending {
		c = -c
	}
	return c
}

func compareSameKind(a, b Value) int {
	switch a.kind {
	case KindString:
		return strings.Compare(a.s, b.s)
	case KindInt:
		return cmp.Compare(a.i, b.i)
	case KindFloat:
		return cmp.Compare(a.f, b.f)
	case KindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	}
	return 0
}

// MinOfKind returns the smallest value of kind k under Order.
func MinOfKind(k Kind) Value {
	switch k {
	case KindString:
		return String("")
	case KindInt:
		return Int(math.MinInt64)
	case KindFloat:
		return Float(math.NaN())
	case KindBool:
		return Bool(false)
	}
	return Null()
}

// FromAny converts a Go value into a Value.
//
// Supported inputs: nil, Value, string, bool, all signed and unsigned integer
// types, float32, float64 and json.Number. Anything else returns an error
// wrapping the offending type.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(int64(val)), nil
	case int8:
		return Int(int64(val)), nil
	case int16:
		return Int(int64(val)), nil
	case int32:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case uint:
		return Int(int64(val)), nil
	case uint8:
		return Int(int64(val)), nil
	case uint16:
		return Int(int64(val)), nil
	case uint32:
		return Int(int64(val)), nil
	case uint64:
		if val > math.MaxInt64 {
			return Float(float64(val)), nil
		}
		return Int(int64(val)), nil
	case float32:
		return Float(float64(val)), nil
	case float64:
		return Float(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q: %w", val.String(), err)
		}
		return Float(f), nil
	}
	return Null(), fmt.Errorf("unsupported property type %T", v)
}

// PropertiesFromMap converts a plain map into Properties.
func PropertiesFromMap(m map[string]any) (Properties, error) {
	props := make(Properties, len(m))
	for k, raw := range m {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		props[k] = v
	}
	return props, nil
}

// Map returns props as a plain map of Go values.
func (p Properties) Map() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v.Any()
	}
	return out
}

// Clone returns a shallow copy of p. Values are immutable so a shallow copy is
// a full copy.
func (p Properties) Clone() Properties {
	if p == nil {
		return Properties{}
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Size approximates the in-memory footprint of p in bytes.
func (p Properties) Size() int {
	n := 0
	for k, v := range p {
		n += len(k) + v.Size()
	}
	return n
}

// MarshalJSON renders v as its natural JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON parses a JSON scalar. Integral numbers become Integers.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
