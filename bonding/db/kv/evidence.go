package kv

import (
	"context"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/bytewizard42i/selectConnect-app-pro/shared/bytesutil"
)

// Evidence values are laid out as expiresAt(8B big-endian unix nanos)
// followed by the sealed blob, so the retention sweep can check expiry
// without decrypting anything. Because evidence is write-once, blobs are
// also held in the ristretto read cache and can never go stale there.

// SaveEvidenceBlob stores a sealed evidence blob under its hash. Evidence is
// write-once: if the hash already exists the call is a silent no-op.
func (db *Store) SaveEvidenceBlob(_ context.Context, hash [32]byte, blob []byte, expiresAt time.Time) error {
	written := false
	err := db.update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(evidenceBucket)
		if bucket.Get(hash[:]) != nil {
			return nil
		}
		value := append(bytesutil.Uint64ToBytesBigEndian(uint64(expiresAt.UnixNano())), blob...)
		written = true
		return bucket.Put(hash[:], value)
	})
	if err != nil {
		return err
	}
	if written {
		db.evidenceCache.Set(string(hash[:]), bytesutil.SafeCopyBytes(blob), int64(len(blob)))
	}
	return nil
}

// EvidenceBlob returns the sealed blob for a hash, or nil if absent.
func (db *Store) EvidenceBlob(_ context.Context, hash [32]byte) ([]byte, error) {
	if cached, ok := db.evidenceCache.Get(string(hash[:])); ok {
		if blob, ok := cached.([]byte); ok {
			return bytesutil.SafeCopyBytes(blob), nil
		}
	}
	var blob []byte
	err := db.view(func(tx *bolt.Tx) error {
		value := tx.Bucket(evidenceBucket).Get(hash[:])
		if value == nil || len(value) < 8 {
			return nil
		}
		blob = bytesutil.SafeCopyBytes(value[8:])
		return nil
	})
	if err != nil {
		return nil, err
	}
	if blob != nil {
		db.evidenceCache.Set(string(hash[:]), bytesutil.SafeCopyBytes(blob), int64(len(blob)))
	}
	return blob, nil
}

// HasEvidence returns true if a record exists for the hash.
func (db *Store) HasEvidence(_ context.Context, hash [32]byte) (bool, error) {
	var exists bool
	err := db.view(func(tx *bolt.Tx) error {
		exists = tx.Bucket(evidenceBucket).Get(hash[:]) != nil
		return nil
	})
	return exists, err
}

// PruneEvidence removes records whose retention expiry has passed.
func (db *Store) PruneEvidence(_ context.Context, now time.Time) (int, error) {
	pruned := 0
	cutoff := uint64(now.UnixNano())
	err := db.update(func(tx *bolt.Tx) error {
		c := tx.Bucket(evidenceBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(v) < 8 {
				continue
			}
			if bytesutil.BytesToUint64BigEndian(v[:8]) >= cutoff {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
			db.evidenceCache.Del(string(k))
			pruned++
		}
		return nil
	})
	return pruned, err
}
