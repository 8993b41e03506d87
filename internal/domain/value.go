package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindString
	KindNumber
	KindBool
)

// Value is the closed union allowed inside open metadata bags.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

// Metadata is an open key/value bag limited to string, number and bool values.
type Metadata map[string]Value

var errUnsupportedValue = errors.New("metadata values must be string, number or boolean")

func String(s string) Value  { return Value{kind: KindString, str: s} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) Str() (string, bool)   { return v.str, v.kind == KindString }
func (v Value) Num() (float64, bool)  { return v.num, v.kind == KindNumber }
func (v Value) BoolVal() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) Valid() bool {
	switch v.kind {
	case KindString, KindBool:
		return true
	case KindNumber:
		return !math.IsNaN(v.num) && !math.IsInf(v.num, 0)
	}
	return false
}

// Any returns the underlying Go value, or nil for an invalid Value.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	return "<invalid>"
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid() {
		return nil, errUnsupportedValue
	}
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case string:
		*v = String(x)
	case bool:
		*v = Bool(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return fmt.Errorf("metadata number %q: %w", x.String(), err)
		}
		*v = Number(f)
	default:
		return errUnsupportedValue
	}
	return nil
}

// Clone returns a shallow copy; Values are immutable so this is a full copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
