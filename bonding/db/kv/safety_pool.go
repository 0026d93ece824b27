package kv

import (
	"context"
	"encoding/binary"

	bolt "go.etcd.io/bbolt"
)

// CreditSafetyPool adds a slashed amount to the context's pool balance.
func (db *Store) CreditSafetyPool(_ context.Context, contextID string, amount uint64) error {
	return db.update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(safetyPoolBucket)
		key := encodeContextKey(contextID)
		balance := uint64(0)
		if enc := bucket.Get(key); len(enc) == 8 {
			balance = binary.LittleEndian.Uint64(enc)
		}
		balance += amount
		enc := make([]byte, 8)
		binary.LittleEndian.PutUint64(enc, balance)
		return bucket.Put(key, enc)
	})
}

// SafetyPoolBalance returns the accumulated slashed funds for a context,
// available for victim compensation.
func (db *Store) SafetyPoolBalance(_ context.Context, contextID string) (uint64, error) {
	var balance uint64
	err := db.view(func(tx *bolt.Tx) error {
		if enc := tx.Bucket(safetyPoolBucket).Get(encodeContextKey(contextID)); len(enc) == 8 {
			balance = binary.LittleEndian.Uint64(enc)
		}
		return nil
	})
	return balance, err
}
