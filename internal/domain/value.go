package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// ValueKind discriminates the scalar held by a Value.
type ValueKind uint8

const (
	ValueString ValueKind = iota
	ValueNumber
	ValueBool
)

// Value is a scalar submitted by a widget: a string, a number or a boolean.
//
// JSON decoding accepts those three shapes plus two conveniences widgets emit:
// null decodes to the empty string and an array of scalars (multi-select,
// checkbox groups) is flattened to a comma-separated string. Objects are rejected.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

func StringValue(s string) Value  { return Value{kind: ValueString, str: s} }
func NumberValue(n float64) Value { return Value{kind: ValueNumber, num: n} }
func BoolValue(b bool) Value      { return Value{kind: ValueBool, b: b} }

func (v Value) Kind() ValueKind { return v.kind }

// String renders the value the way it is shown in emails and subjects.
func (v Value) String() string {
	switch v.kind {
	case ValueNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.b)
	default:
		return v.str
	}
}

// IsZero reports whether the value is the empty string. Whitespace counts as
// content.
func (v Value) IsZero() bool {
	return v.kind == ValueString && v.str == ""
}

var errObjectValue = errors.New("nested objects are not allowed in submission values")

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueNumber:
		return json.Marshal(v.num)
	case ValueBool:
		return json.Marshal(v.b)
	default:
		return json.Marshal(v.str)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = StringValue("")
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case '[':
		var items []Value
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		parts := make([]string, 0, len(items))
		for _, it := range items {
			parts = append(parts, it.String())
		}
		*v = StringValue(strings.Join(parts, ", "))
	case '{':
		return errObjectValue
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = NumberValue(n)
	}
	return nil
}

// Fields maps a field id to the submitted scalar.
type Fields map[string]Value

// Get returns the string form of key, or "" when absent.
func (f Fields) Get(key string) string {
	if v, ok := f[key]; ok {
		return v.String()
	}
	return ""
}
