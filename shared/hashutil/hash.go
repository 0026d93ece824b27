// Package hashutil includes all hash-function related helpers for the engine.
package hashutil

import (
	"golang.org/x/crypto/blake2b"
)

// Hash defines a function that returns the blake2b hash of the data passed in.
func Hash(data []byte) [32]byte {
	return blake2b.Sum256(data)
}

// HashKeyed computes a keyed blake2b MAC over data. Keys longer than the
// blake2b limit are reduced by hashing first.
func HashKeyed(key, data []byte) ([32]byte, error) {
	var out [32]byte
	if len(key) > blake2b.Size {
		reduced := blake2b.Sum256(key)
		key = reduced[:]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		return out, err
	}
	h.Write(data)
	copy(out[:], h.Sum(nil))
	return out, nil
}
