package wire

import "google.golang.org/protobuf/encoding/protowire"

// AppendUint appends field num as a varint scalar.
func AppendUint(b []byte, num int, v uint64) []byte {
	b = protowire.AppendTag(b, protowire.Number(num), protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// AppendBool appends field num as a 0/1 varint. Callers wanting proto3
// absence semantics for false skip the call instead.
func AppendBool(b []byte, num int, v bool) []byte {
	var x uint64
	if v {
		x = 1
	}
	return AppendUint(b, num, x)
}

// AppendString appends field num as a length-delimited UTF-8 string.
func AppendString(b []byte, num int, s string) []byte {
	b = protowire.AppendTag(b, protowire.Number(num), protowire.BytesType)
	return protowire.AppendString(b, s)
}

// AppendBytes appends field num as length-delimited raw bytes.
func AppendBytes(b []byte, num int, p []byte) []byte {
	b = protowire.AppendTag(b, protowire.Number(num), protowire.BytesType)
	return protowire.AppendBytes(b, p)
}

// AppendMessage appends field num as a length-delimited nested message.
// Callers encode the inner message first so the length prefix is exact.
func AppendMessage(b []byte, num int, inner []byte) []byte {
	return AppendBytes(b, num, inner)
}

// AppendFixed64 appends field num as a little-endian 8-byte scalar.
func AppendFixed64(b []byte, num int, v uint64) []byte {
	b = protowire.AppendTag(b, protowire.Number(num), protowire.Fixed64Type)
	return protowire.AppendFixed64(b, v)
}

// AppendFixed32 appends field num as a little-endian 4-byte scalar.
func AppendFixed32(b []byte, num int, v uint32) []byte {
	b = protowire.AppendTag(b, protowire.Number(num), protowire.Fixed32Type)
	return protowire.AppendFixed32(b, v)
}
