package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ValueKind discriminates the closed variant set a payload value may hold.
type ValueKind uint8

// Supported payload value kinds.
const (
	KindNull ValueKind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindMap
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a tagged-union payload element: string, number, boolean, nested
// payload, or list of values. The zero Value is null.
type Value struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
	b    bool
	m    Payload
	l    []Value
}

// NullValue returns the null variant.
func NullValue() Value { return Value{} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// IntValue wraps an integer.
func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

// FloatValue wraps a float.
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// BoolValue wraps a boolean.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// MapValue wraps a nested payload.
func MapValue(p Payload) Value { return Value{kind: KindMap, m: p} }

// ListValue wraps a list of values.
func ListValue(vs ...Value) Value { return Value{kind: KindList, l: vs} }

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// AsString returns the string variant.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsInt returns the integer variant.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the numeric value for int or float variants.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// AsBool returns the boolean variant.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsMap returns the nested payload variant.
func (v Value) AsMap() (Payload, bool) { return v.m, v.kind == KindMap }

// AsList returns the list variant.
func (v Value) AsList() ([]Value, bool) { return v.l, v.kind == KindList }

// Interface converts the value to its plain Go representation, suitable for
// JSON encoding or generic-map handoff.
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
	case KindMap:
		return v.m.ToMap()
	case KindList:
		out := make([]any, len(v.l))
		for i, e := range v.l {
			out[i] = e.Interface()
		}
		return out
	}
	return nil
}

// Clone deep-copies the value.
func (v Value) Clone() Value {
	cp := v
	switch v.kind {
	case KindMap:
		cp.m = v.m.Clone()
	case KindList:
		cp.l = make([]Value, len(v.l))
		for i, e := range v.l {
			cp.l[i] = e.Clone()
		}
	}
	return cp
}

// ValueOf converts a plain Go value into the closed variant set. Unsupported
// types produce a validation error.
func ValueOf(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return t, nil
	case Payload:
		return MapValue(t), nil
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case int:
		return IntValue(int64(t)), nil
	case int32:
		return IntValue(int64(t)), nil
	case int64:
		return IntValue(t), nil
	case float32:
		return FloatValue(float64(t)), nil
	case float64:
		// JSON decodes every number as float64; keep integral values as ints
		// so round-trips stay stable.
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return IntValue(int64(t)), nil
		}
		return FloatValue(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return IntValue(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, Validationf("payload number %q not representable", t.String())
		}
		return FloatValue(f), nil
	case map[string]any:
		p, err := PayloadFromMap(t)
		if err != nil {
			return Value{}, err
		}
		return MapValue(p), nil
	case []any:
		list := make([]Value, len(t))
		for i, e := range t {
			v, err := ValueOf(e)
			if err != nil {
				return Value{}, err
			}
			list[i] = v
		}
		return ListValue(list...), nil
	case []string:
		list := make([]Value, len(t))
		for i, s := range t {
			list[i] = StringValue(s)
		}
		return ListValue(list...), nil
	}
	return Value{}, Validationf("payload value of type %T is not serializable", raw)
}

// MarshalJSON encodes the value as its plain JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.s)
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	case KindMap:
		return json.Marshal(v.m)
	case KindList:
		if v.l == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.l)
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

// UnmarshalJSON decodes any JSON value into the variant set, preserving
// object key order in nested maps.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Payload is an ordered mapping from string keys to heterogeneous values.
// The zero value is an empty payload ready for use.
type Payload struct {
	keys []string
	vals map[string]Value
}

// NewPayload returns an empty payload.
func NewPayload() Payload { return Payload{} }

// Set stores value under key, appending the key on first insertion and
// preserving its position on overwrite.
func (p *Payload) Set(key string, value Value) {
	if p.vals == nil {
		p.vals = make(map[string]Value)
	}
	if _, exists := p.vals[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.vals[key] = value
}

// SetAny converts raw via ValueOf before storing it.
func (p *Payload) SetAny(key string, raw any) error {
	v, err := ValueOf(raw)
	if err != nil {
		return err
	}
	p.Set(key, v)
	return nil
}

// Get returns the value stored under key.
func (p Payload) Get(key string) (Value, bool) {
	v, ok := p.vals[key]
	return v, ok
}

// Delete removes key, preserving the order of the remaining keys.
func (p *Payload) Delete(key string) {
	if _, ok := p.vals[key]; !ok {
		return
	}
	delete(p.vals, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the insertion-ordered key list.
func (p Payload) Keys() []string { return append([]string(nil), p.keys...) }

// Len returns the number of entries.
func (p Payload) Len() int { return len(p.keys) }

// Clone deep-copies the payload.
func (p Payload) Clone() Payload {
	if p.vals == nil {
		return Payload{}
	}
	cp := Payload{keys: append([]string(nil), p.keys...), vals: make(map[string]Value, len(p.vals))}
	for k, v := range p.vals {
		cp.vals[k] = v.Clone()
	}
	return cp
}

// Validate is a no-op for values already inside the variant set; it exists so
// constructors can report a uniform validation error for payloads built from
// generic data.
func (p Payload) Validate() error { return nil }

// ToMap converts the payload to a plain string-keyed map. Ordering is lost;
// use MarshalJSON when order matters.
func (p Payload) ToMap() map[string]any {
	out := make(map[string]any, len(p.keys))
	for _, k := range p.keys {
		out[k] = p.vals[k].Interface()
	}
	return out
}

// PayloadFromMap builds a payload from a plain map. Keys are inserted in
// sorted order since Go map iteration order is unspecified.
func PayloadFromMap(m map[string]any) (Payload, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var p Payload
	for _, k := range keys {
		v, err := ValueOf(m[k])
		if err != nil {
			return Payload{}, err
		}
		p.Set(k, v)
	}
	return p, nil
}

// MarshalJSON encodes the payload as a JSON object in key insertion order.
func (p Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(p.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving key order.
func (p *Payload) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("payload: expected object, got %v", tok)
	}
	parsed, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// decodeObject consumes object members up to and including the closing brace.
func decodeObject(dec *json.Decoder) (Payload, error) {
	var p Payload
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Payload{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Payload{}, fmt.Errorf("payload: expected object key, got %v", tok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return Payload{}, err
		}
		p.Set(key, v)
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return Payload{}, err
	}
	return p, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m, err := decodeObject(dec)
			if err != nil {
				return Value{}, err
			}
			return MapValue(m), nil
		case '[':
			var list []Value
			for dec.More() {
				e, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				list = append(list, e)
			}
			if _, err := dec.Token(); err != nil { // closing ']'
				return Value{}, err
			}
			return ListValue(list...), nil
		}
		return Value{}, fmt.Errorf("payload: unexpected delimiter %v", t)
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		return ValueOf(t)
	case nil:
		return NullValue(), nil
	}
	return Value{}, fmt.Errorf("payload: unexpected token %v", tok)
}
