// Package identity derives the stable key identifying a (user, origin) pair.
package identity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// KeyLength is the hex length of a derived identity key (16 bytes retained).
const KeyLength = 32

// DeriveKey computes the identity key for a (userID, origin) pair. The same
// pair always derives the same key, so re-registration collides onto the
// existing subscription row, while different origins for the same user derive
// unrelated keys.
//
// The inputs are length-prefixed before hashing, so no choice of userID or
// origin content can make two distinct pairs hash identically.
func DeriveKey(userID, origin string) string {
	h := sha256.New()
	var lenBuf [binary.MaxVarintLen64]byte
	for _, part := range []string{userID, origin} {
		n := binary.PutUvarint(lenBuf[:], uint64(len(part)))
		h.Write(lenBuf[:n])
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))[:KeyLength]
}
