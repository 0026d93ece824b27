package kv

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/bytewizard42i/selectConnect-app-pro/bonding/types"
)

func decodeReputation(enc []byte) (*types.Reputation, error) {
	rep := &types.Reputation{}
	if err := json.Unmarshal(enc, rep); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal reputation")
	}
	return rep, nil
}

// Reputation returns the record for a sender commitment, creating a zeroed
// record lazily if none exists yet.
func (db *Store) Reputation(_ context.Context, commitment [32]byte) (*types.Reputation, error) {
	rep := &types.Reputation{SenderCommitment: commitment}
	err := db.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(reputationsBucket).Get(commitment[:])
		if enc == nil {
			return nil
		}
		var err error
		rep, err = decodeReputation(enc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// UpdateReputation applies fn to the stored record in one write transaction.
// Counters only ever grow; records are never deleted.
func (db *Store) UpdateReputation(_ context.Context, commitment [32]byte, fn func(*types.Reputation)) error {
	return db.update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(reputationsBucket)
		rep := &types.Reputation{SenderCommitment: commitment}
		if enc := bucket.Get(commitment[:]); enc != nil {
			var err error
			rep, err = decodeReputation(enc)
			if err != nil {
				return err
			}
		}
		fn(rep)
		enc, err := json.Marshal(rep)
		if err != nil {
			return errors.Wrap(err, "failed to marshal reputation")
		}
		return bucket.Put(commitment[:], enc)
	})
}
