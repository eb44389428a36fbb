package wire

import (
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// maxDepth caps recursion when probing length-delimited payloads for nested
// messages. Anything deeper decodes as raw bytes.
const maxDepth = 32

// Decode walks an unknown message and returns its fields keyed by synthetic
// name. A body truncated mid-field yields the fields parsed so far rather
// than an error; only a message whose first tag is unreadable fails.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Reason: "empty message"}
	}
	msg, _, firstOK := decodeMessage(data, 0)
	if !firstOK {
		return nil, &DecodeError{Reason: "no readable field tag"}
	}
	return msg, nil
}

// decodeMessage reads fields until the buffer ends or a field cannot be
// completed. clean reports a full consume with no anomalies (the bar for
// nested-message inference); firstOK reports that at least the leading tag
// was readable.
func decodeMessage(data []byte, depth int) (msg Message, clean, firstOK bool) {
	m := Message{}
	pos := 0
	for pos < len(data) {
		num, typ, n := protowire.ConsumeTag(data[pos:])
		if n < 0 {
			return m, false, pos > 0
		}
		pos += n

		var v Value
		switch typ {
		case protowire.VarintType:
			x, n := protowire.ConsumeVarint(data[pos:])
			if n < 0 {
				return m, false, true
			}
			pos += n
			v = Value{Kind: KindInt, Int: x}
		case protowire.Fixed64Type:
			x, n := protowire.ConsumeFixed64(data[pos:])
			if n < 0 {
				return m, false, true
			}
			pos += n
			v = Value{Kind: KindFixed64, Int: x}
		case protowire.Fixed32Type:
			x, n := protowire.ConsumeFixed32(data[pos:])
			if n < 0 {
				return m, false, true
			}
			pos += n
			v = Value{Kind: KindFixed32, Int: uint64(x)}
		case protowire.BytesType:
			p, n := protowire.ConsumeBytes(data[pos:])
			if n < 0 {
				return m, false, true
			}
			pos += n
			v = classify(p, depth)
		case protowire.StartGroupType:
			// Groups carry no modern payloads; skip the whole group.
			n := protowire.ConsumeFieldValue(num, typ, data[pos:])
			if n < 0 {
				return m, false, true
			}
			pos += n
			continue
		default:
			// End-group or reserved wire type: nothing after this tag can
			// be framed reliably, so stop and keep what was parsed.
			return m, false, true
		}
		m.add(int(num), v)
	}
	return m, true, true
}

// classify infers the kind of a length-delimited payload: printable UTF-8
// decodes as a string, a payload that parses fully as a message decodes as a
// nested message, everything else stays raw bytes.
func classify(p []byte, depth int) Value {
	if len(p) == 0 {
		return Value{Kind: KindString}
	}
	if printableUTF8(p) {
		return Value{Kind: KindString, Str: string(p)}
	}
	if depth < maxDepth {
		if sub, clean, _ := decodeMessage(p, depth+1); clean && len(sub) > 0 {
			return Value{Kind: KindMessage, Msg: sub}
		}
	}
	raw := make([]byte, len(p))
	copy(raw, p)
	return Value{Kind: KindBytes, Raw: raw}
}

// printableUTF8 reports whether p reads as text: valid UTF-8 containing no
// control bytes other than tab, newline and carriage return.
func printableUTF8(p []byte) bool {
	if !utf8.Valid(p) {
		return false
	}
	for _, b := range p {
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			return false
		}
		if b == 0x7f {
			return false
		}
	}
	return true
}
