package kv

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/bytewizard42i/selectConnect-app-pro/bonding/types"
)

func decodeBond(enc []byte) (*types.Bond, error) {
	bond := &types.Bond{}
	if err := json.Unmarshal(enc, bond); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal bond")
	}
	return bond, nil
}

// SaveBond writes a bond and its (contextID, senderCommitment) index entry.
func (db *Store) SaveBond(_ context.Context, bond *types.Bond) error {
	if bond.ID == "" {
		return errors.New("bond id cannot be empty")
	}
	enc, err := json.Marshal(bond)
	if err != nil {
		return errors.Wrap(err, "failed to marshal bond")
	}
	return db.update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bondsBucket).Put([]byte(bond.ID), enc); err != nil {
			return err
		}
		idxKey := encodeContextSenderBond(bond.ContextID, bond.SenderCommitment, bond.ID)
		return tx.Bucket(bondContextIndexBucket).Put(idxKey, []byte(bond.ID))
	})
}

// Bond returns the bond with the given id, or nil if it does not exist.
func (db *Store) Bond(_ context.Context, id string) (*types.Bond, error) {
	var bond *types.Bond
	err := db.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(bondsBucket).Get([]byte(id))
		if enc == nil {
			return nil
		}
		var err error
		bond, err = decodeBond(enc)
		return err
	})
	return bond, err
}

// UpdateBond applies fn to the stored bond inside one write transaction.
// Returning an error from fn aborts the update, so concurrent transitions on
// the same bond resolve to exactly one winner.
func (db *Store) UpdateBond(_ context.Context, id string, fn func(*types.Bond) error) (*types.Bond, error) {
	var bond *types.Bond
	err := db.update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bondsBucket)
		enc := bucket.Get([]byte(id))
		if enc == nil {
			return errors.Wrapf(types.ErrNotFound, "bond %s", id)
		}
		var err error
		bond, err = decodeBond(enc)
		if err != nil {
			return err
		}
		if err := fn(bond); err != nil {
			return err
		}
		updated, err := json.Marshal(bond)
		if err != nil {
			return errors.Wrap(err, "failed to marshal bond")
		}
		return bucket.Put([]byte(id), updated)
	})
	if err != nil {
		return nil, err
	}
	return bond, nil
}

// BondsByContextSender returns every bond posted by a sender commitment
// against a context, via the composite index.
func (db *Store) BondsByContextSender(ctx context.Context, contextID string, commitment [32]byte) ([]*types.Bond, error) {
	var bonds []*types.Bond
	prefix := encodeContextSender(contextID, commitment)
	err := db.view(func(tx *bolt.Tx) error {
		bondsBkt := tx.Bucket(bondsBucket)
		c := tx.Bucket(bondContextIndexBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			enc := bondsBkt.Get(v)
			if enc == nil {
				continue
			}
			bond, err := decodeBond(enc)
			if err != nil {
				return err
			}
			bonds = append(bonds, bond)
		}
		return nil
	})
	return bonds, err
}

// NonTerminalBonds returns all bonds still awaiting resolution. Used by the
// expiry sweep.
func (db *Store) NonTerminalBonds(_ context.Context) ([]*types.Bond, error) {
	var bonds []*types.Bond
	err := db.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bondsBucket).ForEach(func(_, enc []byte) error {
			bond, err := decodeBond(enc)
			if err != nil {
				return err
			}
			if !bond.State.Terminal() {
				bonds = append(bonds, bond)
			}
			return nil
		})
	})
	return bonds, err
}
