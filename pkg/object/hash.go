package object

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// IDSize is the length in bytes of an object id.
const IDSize = sha1.Size

// ID is the 20-byte SHA-1 digest of an object's canonical serialized bytes.
// The zero value is NullID and means "no object".
type ID [IDSize]byte

// NullID is the reserved all-zero id.
var NullID ID

// HashBytes computes the id of a canonical object encoding.
func HashBytes(data []byte) ID {
	return ID(sha1.Sum(data))
}

// HashString hashes an arbitrary string. RevTree bucketing uses it to
// derive a key's bucket at each depth.
func HashString(s string) ID {
	return ID(sha1.Sum([]byte(s)))
}

// ParseID parses a 40-character hex id.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if len(s) != IDSize*2 {
		return NullID, fmt.Errorf("parse id %q: length %d, expected %d", s, len(s), IDSize*2)
	}
	var id ID
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return NullID, fmt.Errorf("parse id %q: %w", s, err)
	}
	return id, nil
}

// MustParseID is ParseID for constants in tests and fixtures.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IDFromBytes copies a raw 20-byte id.
func IDFromBytes(b []byte) (ID, error) {
	if len(b) != IDSize {
		return NullID, fmt.Errorf("id from bytes: length %d, expected %d", len(b), IDSize)
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

// IsNull reports whether id is the all-zero sentinel.
func (id ID) IsNull() bool {
	return id == NullID
}

// String returns the lowercase hex form.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first 8 hex characters.
func (id ID) Short() string {
	return id.String()[:8]
}

// Compare orders ids bytewise.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// HasPrefix reports whether the raw id bytes start with prefix.
func (id ID) HasPrefix(prefix []byte) bool {
	return bytes.HasPrefix(id[:], prefix)
}

// ByteN returns the n-th byte of the id.
func (id ID) ByteN(n int) byte {
	return id[n]
}

// DecodeHexPrefix converts an abbreviated hex id into the raw byte prefix used
// by prefix lookups. An odd trailing nibble is dropped from the byte prefix and
// returned separately so callers can filter on it.
func DecodeHexPrefix(s string) (prefix []byte, nibble int, err error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil, -1, fmt.Errorf("decode id prefix: empty")
	}
	if len(s) > IDSize*2 {
		return nil, -1, fmt.Errorf("decode id prefix %q: too long", s)
	}
	even := s
	nibble = -1
	if len(s)%2 == 1 {
		even = s[:len(s)-1]
		v, err := hex.DecodeString("0" + s[len(s)-1:])
		if err != nil {
			return nil, -1, fmt.Errorf("decode id prefix %q: %w", s, err)
		}
		nibble = int(v[0])
	}
	prefix, err = hex.DecodeString(even)
	if err != nil {
		return nil, -1, fmt.Errorf("decode id prefix %q: %w", s, err)
	}
	return prefix, nibble, nil
}

// MatchesHexPrefix reports whether id's hex form starts with s.
func (id ID) MatchesHexPrefix(s string) bool {
	return strings.HasPrefix(id.String(), strings.ToLower(strings.TrimSpace(s)))
}
