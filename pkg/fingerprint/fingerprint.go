// Package fingerprint derives the fixed-width hexadecimal identities used for
// review records and their authors.
package fingerprint

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

const (
	// HexLen is the width of every fingerprint in hex characters (224 bits).
	HexLen = 56

	// fieldSize is the digest size in bytes for each half of a record identity.
	fieldSize = HexLen / 4

	// authorSize is the digest size in bytes for an author fingerprint.
	authorSize = HexLen / 2
)

// digest returns the hex BLAKE2b digest of s truncated to size bytes.
func digest(s string, size int) string {
	h, err := blake2b.New(size, nil)
	if err != nil {
		// size is a package constant within blake2b's 1..64 range.
		panic(err)
	}
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}

// Record returns the identity of a review: the digest of the external
// reference id followed by the digest of the content. Each field is digested
// on its own so that a prefix of one id cannot shift into the content.
func Record(externalID, content string) string {
	return digest(externalID, fieldSize) + digest(content, fieldSize)
}

// Author returns the fingerprint of an author reference.
func Author(authorID string) string {
	return digest(authorID, authorSize)
}
