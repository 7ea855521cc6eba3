// Package models defines the core data structures used throughout RVC
// including attribute values, record types, records, and snapshots.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the variant held by a Value
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
)

var kindNames = map[Kind]string{
	KindNull:   "null",
	KindString: "string",
	KindInt:    "int",
	KindFloat:  "float",
	KindBool:   "bool",
	KindTime:   "time",
}

// String returns the configuration name of the kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind parses a kind name as written in configuration files.
// "null" is not a valid field kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "text":
		return KindString, nil
	case "int", "integer":
		return KindInt, nil
	case "float", "real":
		return KindFloat, nil
	case "bool", "boolean":
		return KindBool, nil
	case "time", "timestamp", "datetime":
		return KindTime, nil
	}
	return KindNull, fmt.Errorf("unknown field kind %q", s)
}

// Value is an immutable attribute value. The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
}

func Null() Value { return Value{} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Time(t time.Time) Value { return Value{kind: KindTime, t: t.UTC()} }
func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Str() string { return v.s }
func (v Value) Int() int64 { return v.i }
func (v Value) Float() float64 { return v.f }
func (v Value) Bool() bool { return v.b }
func (v Value) Time() time.Time { return v.t }

// Equal reports whether two values hold the same kind and content
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindBool:
		return v.b == o.b
	case KindTime:
		return v.t.Equal(o.t)
	}
	return true
}

// Interface returns the value as a plain Go value (nil for null)
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindTime:
		return v.t
	}
	return nil
}

// String formats the value for display
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
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	}
	return "null"
}

// MarshalJSON encodes the value as its natural JSON form
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindTime {
		return json.Marshal(v.t.Format(time.RFC3339Nano))
	}
	return json.Marshal(v.Interface())
}

// ParseValue converts text input into a value of the given kind.
// The literal "null" (any case) yields a null value for every kind. Bool
// fields accept the forms of strconv.ParseBool (1, t, true, 0, f, false).
func ParseValue(kind Kind, s string) (Value, error) {
	if strings.EqualFold(s, "null") {
		return Null(), nil
	}
	switch kind {
	case KindString:
		return String(s), nil
	case KindInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Null(), fmt.Errorf("parse int %q: %w", s, err)
		}
		return Int(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Null(), fmt.Errorf("parse float %q: %w", s, err)
		}
		return Float(f), nil
	case KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Null(), fmt.Errorf("parse bool %q: %w", s, err)
		}
		return Bool(b), nil
	case KindTime:
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Null(), fmt.Errorf("parse time %q: %w", s, err)
		}
		return Time(t), nil
	}
	return Null(), fmt.Errorf("cannot parse into %s", kind)
}

// FromJSON converts a decoded JSON value into a value of the given kind.
// Numbers arrive as float64 (or json.Number) and are narrowed for int fields.
// JSON types must match the field: bool fields take only true or false, and
// strings are accepted for string and time fields only.
func FromJSON(kind Kind, raw any) (Value, error) {
	if raw == nil {
		return Null(), nil
	}
	switch x := raw.(type) {
	case string:
		switch kind {
		case KindString:
			return String(x), nil
		case KindTime:
			return ParseValue(kind, x)
		}
	case bool:
		if kind == KindBool {
			return Bool(x), nil
		}
	case float64:
		switch kind {
		case KindFloat:
			return Float(x), nil
		case KindInt:
			if x != float64(int64(x)) {
				return Null(), fmt.Errorf("value %v is not an integer", x)
			}
			return Int(int64(x)), nil
		}
	case json.Number:
		if kind == KindInt || kind == KindFloat {
			return ParseValue(kind, x.String())
		}
	}
	return Null(), fmt.Errorf("cannot use %T as %s", raw, kind)
}

// Attributes maps field names to values
type Attributes map[string]Value

// Clone returns a copy that shares nothing with the receiver
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Get returns the value for name, or null when absent
func (a Attributes) Get(name string) Value {
	return a[name]
}
