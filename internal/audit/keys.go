package audit

import (
	"bytes"
	"encoding/binary"
)

// Key layout. Each prefix ends with '|' as a separator.
const (
	prefixEntry   = "e|" // e|{seq:8BE}
	prefixAccount = "a|" // a|{account_id}\x00{seq:8BE}
)

const sep = '\x00'

func putUint64BE(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

func getUint64BE(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// entryKey returns the primary key for a sequence number: e|{seq:8BE}
func entryKey(seq uint64) []byte {
	return putUint64BE([]byte(prefixEntry), seq)
}

// entryPrefix returns the scan prefix covering every entry.
func entryPrefix() []byte {
	return []byte(prefixEntry)
}

// seqFromEntryKey extracts the sequence number from a primary key.
func seqFromEntryKey(k []byte) (uint64, bool) {
	if !bytes.HasPrefix(k, []byte(prefixEntry)) || len(k) != len(prefixEntry)+8 {
		return 0, false
	}
	return getUint64BE(k[len(prefixEntry):]), true
}

// accountKey returns the per-account index key: a|{account_id}\x00{seq:8BE}
func accountKey(accountID string, seq uint64) []byte {
	k := append([]byte(prefixAccount), accountID...)
	k = append(k, sep)
	return putUint64BE(k, seq)
}

// accountPrefix returns the scan prefix for one account's index entries.
func accountPrefix(accountID string) []byte {
	k := append([]byte(prefixAccount), accountID...)
	return append(k, sep)
}

// seqFromAccountKey extracts the sequence number from an index key.
func seqFromAccountKey(k []byte) (uint64, bool) {
	if !bytes.HasPrefix(k, []byte(prefixAccount)) || len(k) < len(prefixAccount)+1+8 {
		return 0, false
	}
	return getUint64BE(k[len(k)-8:]), true
}

// prefixUpperBound returns the smallest key greater than every key carrying
// the prefix, for use as an exclusive scan bound.
func prefixUpperBound(prefix []byte) []byte {
	b := append([]byte(nil), prefix...)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xFF {
			b[i]++
			return b[:i+1]
		}
	}
	return append(b, bytes.Repeat([]byte{0xFF}, 8)...)
}
