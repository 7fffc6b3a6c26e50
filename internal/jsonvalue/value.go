// Package jsonvalue models arbitrary submission payloads as a closed set of
// JSON variants so that unflattening, path lookup and template rendering can
// switch on the concrete type instead of asserting on interface{} trees.
package jsonvalue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Value is one of Null, Bool, Number, String, Array or Object. A nil Value
// inside an Array is a hole left by a sparse index and encodes as null.
type Value interface {
	isValue()
}

type (
	Null   struct{}
	Bool   bool
	Number string
	String string
	Array  []Value
	Object map[string]Value
)

func (Null) isValue()   {}
func (Bool) isValue()   {}
func (Number) isValue() {}
func (String) isValue() {}
func (Array) isValue()  {}
func (Object) isValue() {}

func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MarshalJSON writes the number literal exactly as it was decoded.
func (n Number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("0"), nil
	}
	return []byte(n), nil
}

// Parse decodes a single JSON document, keeping numbers as their literal text.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	return FromAny(raw)
}

// FromAny converts the output of encoding/json (or hand-built maps and
// slices of the same shapes) into a Value.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case float64:
		return Number(strconv.FormatFloat(t, 'f', -1, 64)), nil
	case int:
		return Number(strconv.Itoa(t)), nil
	case int64:
		return Number(strconv.FormatInt(t, 10)), nil
	case string:
		return String(t), nil
	case []any:
		arr := make(Array, len(t))
		for i, item := range t {
			conv, err := FromAny(item)
			if err != nil {
				return nil, err
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(t))
		for k, item := range t {
			conv, err := FromAny(item)
			if err != nil {
				return nil, err
			}
			obj[k] = conv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("jsonvalue: unsupported type %T", v)
	}
}

// ToAny converts v back to plain Go values. Numbers become json.Number.
func ToAny(v Value) any {
	switch t := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(t)
	case Number:
		return json.Number(t)
	case String:
		return string(t)
	case Array:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = ToAny(item)
		}
		return out
	case Object:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = ToAny(item)
		}
		return out
	default:
		return nil
	}
}

// Marshal encodes v, writing holes and Null as null.
func Marshal(v Value) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// Stringify renders a value for interpolation into text: strings verbatim,
// scalars in their JSON spelling, containers as compact JSON.
func Stringify(v Value) string {
	switch t := v.(type) {
	case nil, Null:
		return ""
	case String:
		return string(t)
	case Number:
		return string(t)
	case Bool:
		return strconv.FormatBool(bool(t))
	default:
		b, err := Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
