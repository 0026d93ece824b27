package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/bytewizard42i/selectConnect-app-pro/bonding/types"
)

func decodeAttestation(enc []byte) (*types.Attestation, error) {
	att := &types.Attestation{}
	if err := json.Unmarshal(enc, att); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal attestation")
	}
	return att, nil
}

// SaveAttestation writes an attestation and its bond index entry.
func (db *Store) SaveAttestation(_ context.Context, att *types.Attestation) error {
	if att.ID == "" {
		return errors.New("attestation id cannot be empty")
	}
	enc, err := json.Marshal(att)
	if err != nil {
		return errors.Wrap(err, "failed to marshal attestation")
	}
	return db.update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(attestationsBucket).Put([]byte(att.ID), enc); err != nil {
			return err
		}
		idxKey := encodeBondAttestation(att.BondID, att.ID)
		return tx.Bucket(attestationBondIndexBucket).Put(idxKey, []byte(att.ID))
	})
}

// Attestation returns the attestation with the given id, or nil if absent.
func (db *Store) Attestation(_ context.Context, id string) (*types.Attestation, error) {
	var att *types.Attestation
	err := db.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(attestationsBucket).Get([]byte(id))
		if enc == nil {
			return nil
		}
		var err error
		att, err = decodeAttestation(enc)
		return err
	})
	return att, err
}

// UpdateAttestation applies fn to the stored attestation in one write
// transaction. fn returning an error aborts the update.
func (db *Store) UpdateAttestation(_ context.Context, id string, fn func(*types.Attestation) error) (*types.Attestation, error) {
	var att *types.Attestation
	err := db.update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(attestationsBucket)
		enc := bucket.Get([]byte(id))
		if enc == nil {
			return errors.Wrapf(types.ErrNotFound, "attestation %s", id)
		}
		var err error
		att, err = decodeAttestation(enc)
		if err != nil {
			return err
		}
		if err := fn(att); err != nil {
			return err
		}
		updated, err := json.Marshal(att)
		if err != nil {
			return errors.Wrap(err, "failed to marshal attestation")
		}
		return bucket.Put([]byte(id), updated)
	})
	if err != nil {
		return nil, err
	}
	return att, nil
}

// AttestationsByBond returns all attestations filed against a bond.
func (db *Store) AttestationsByBond(_ context.Context, bondID string) ([]*types.Attestation, error) {
	var atts []*types.Attestation
	prefix := []byte(bondID)
	err := db.view(func(tx *bolt.Tx) error {
		attBkt := tx.Bucket(attestationsBucket)
		c := tx.Bucket(attestationBondIndexBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			enc := attBkt.Get(v)
			if enc == nil {
				continue
			}
			att, err := decodeAttestation(enc)
			if err != nil {
				return err
			}
			atts = append(atts, att)
		}
		return nil
	})
	return atts, err
}

// PruneAttestations removes attestations created before the given cutoff.
// Retention past the challenge window keeps dispute audit trails available
// for a bounded grace period.
func (db *Store) PruneAttestations(_ context.Context, before time.Time) (int, error) {
	pruned := 0
	err := db.update(func(tx *bolt.Tx) error {
		attBkt := tx.Bucket(attestationsBucket)
		idxBkt := tx.Bucket(attestationBondIndexBucket)
		c := attBkt.Cursor()
		for k, enc := c.First(); k != nil; k, enc = c.Next() {
			att, err := decodeAttestation(enc)
			if err != nil {
				return err
			}
			if att.CreatedAt.After(before) || att.CreatedAt.Equal(before) {
				continue
			}
			// Never prune an attestation whose slash is still pending.
			if att.State == types.AttestationFiled || att.State == types.AttestationScheduled {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
			if err := idxBkt.Delete(encodeBondAttestation(att.BondID, att.ID)); err != nil {
				return err
			}
			pruned++
		}
		return nil
	})
	return pruned, err
}
