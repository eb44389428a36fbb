// Package wire implements a schema-less codec for the protobuf wire format.
//
// Requests are built field by field without generated message types, and
// responses are decoded into a map keyed by synthetic field names such as
// "string_1" or "int_3", with value kinds inferred from the wire type and
// the byte content. Framing primitives come from
// google.golang.org/protobuf/encoding/protowire.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Kind classifies a decoded value.
type Kind uint8

const (
	KindInt Kind = iota
	KindFixed64
	KindFixed32
	KindString
	KindBytes
	KindMessage
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFixed64:
		return "fixed64"
	case KindFixed32:
		return "fixed32"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindMessage:
		return "message"
	case KindList:
		return "list"
	}
	return "unknown"
}

// Value is a single decoded field value. Exactly one payload field is set,
// selected by Kind; KindList carries elements whose kinds may vary.
type Value struct {
	Kind Kind
	Int  uint64
	Str  string
	Raw  []byte
	Msg  Message
	List []Value
}

// MarshalJSON renders integers as numbers, bytes as base64, nested messages
// as objects and repeated fields as arrays, matching the shape handed to API
// and CLI consumers.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindInt, KindFixed64, KindFixed32:
		return strconv.AppendUint(nil, v.Int, 10), nil
	case KindString:
		return json.Marshal(v.Str)
	case KindBytes:
		return json.Marshal(base64.StdEncoding.EncodeToString(v.Raw))
	case KindMessage:
		return json.Marshal(v.Msg)
	case KindList:
		return json.Marshal(v.List)
	}
	return nil, fmt.Errorf("wire: marshal unknown kind %d", v.Kind)
}

// Message is a decoded message keyed by synthetic field name. Repeated
// occurrences of a field under the same inferred kind collapse into a
// KindList value in encounter order; occurrences under different kinds keep
// separate keys.
type Message map[string]Value

// FieldKey returns the synthetic map key for a kind and field number.
func FieldKey(k Kind, num int) string {
	return k.String() + "_" + strconv.Itoa(num)
}

func (m Message) add(num int, v Value) {
	key := FieldKey(v.Kind, num)
	prev, ok := m[key]
	if !ok {
		m[key] = v
		return
	}
	if prev.Kind == KindList {
		prev.List = append(prev.List, v)
		m[key] = prev
		return
	}
	m[key] = Value{Kind: KindList, List: []Value{prev, v}}
}

// Uint returns field num decoded as an unsigned integer, probing varint and
// fixed-width keys. A repeated field yields its first element.
func (m Message) Uint(num int) (uint64, bool) {
	for _, k := range [...]Kind{KindInt, KindFixed64, KindFixed32} {
		v, ok := m[FieldKey(k, num)]
		if !ok {
			continue
		}
		if v.Kind == KindList {
			if len(v.List) > 0 {
				return v.List[0].Int, true
			}
			continue
		}
		return v.Int, true
	}
	return 0, false
}

// String returns field num decoded as text. A repeated field yields its
// first element.
func (m Message) String(num int) (string, bool) {
	v, ok := m[FieldKey(KindString, num)]
	if !ok {
		return "", false
	}
	if v.Kind == KindList {
		if len(v.List) > 0 && v.List[0].Kind == KindString {
			return v.List[0].Str, true
		}
		return "", false
	}
	return v.Str, true
}

// Message returns field num decoded as a nested message.
func (m Message) Message(num int) (Message, bool) {
	v, ok := m[FieldKey(KindMessage, num)]
	if !ok {
		return nil, false
	}
	if v.Kind == KindList {
		if len(v.List) > 0 && v.List[0].Kind == KindMessage {
			return v.List[0].Msg, true
		}
		return nil, false
	}
	return v.Msg, true
}

// List returns every occurrence of field num regardless of inferred kind.
// A singular field comes back as a one-element slice.
func (m Message) List(num int) []Value {
	var out []Value
	for _, k := range [...]Kind{KindInt, KindFixed64, KindFixed32, KindString, KindBytes, KindMessage} {
		v, ok := m[FieldKey(k, num)]
		if !ok {
			continue
		}
		if v.Kind == KindList {
			out = append(out, v.List...)
			continue
		}
		out = append(out, v)
	}
	return out
}

// DecodeError reports a message whose leading field tag could not be read.
// Bodies that fail mid-way are not errors; the decoder returns the fields
// parsed up to that point instead.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "wire: " + e.Reason
}

// IsDecodeError reports whether err is a wire decode failure.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
