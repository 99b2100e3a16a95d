package code

import (
	"crypto/sha512"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// HashSize is the width, in bytes, of a code object's content hash: a
// truncated SHA-512 digest of its serialized form.
const HashSize = 16

// Hash identifies a CodeObject by the content of its serialized bytes.
type Hash [HashSize]byte

// String renders the hash as lowercase hex, prefixed with "0x".
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// ParseHash parses a "0x"-prefixed hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if !strings.HasPrefix(s, "0x") {
		return h, errors.Errorf("malformed hash %q: missing 0x prefix", s)
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return h, errors.Wrapf(err, "malformed hash %q", s)
	}
	if len(b) != HashSize {
		return h, errors.Errorf("malformed hash %q: want %d bytes, got %d", s, HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// hashBytes computes the truncated SHA-512 digest of b.
func hashBytes(b []byte) Hash {
	sum := sha512.Sum512(b)
	var h Hash
	copy(h[:], sum[:HashSize])
	return h
}
