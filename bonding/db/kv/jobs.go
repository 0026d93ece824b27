package kv

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/bytewizard42i/selectConnect-app-pro/bonding/types"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/bytesutil"
)

func decodeSlashJob(enc []byte) (*types.SlashJob, error) {
	job := &types.SlashJob{}
	if err := json.Unmarshal(enc, job); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal slash job")
	}
	return job, nil
}

// SaveSlashJob persists a slash job under a due-time ordered key. Saving an
// existing job overwrites it, which the scheduler uses to persist attempt
// counts across restarts.
func (db *Store) SaveSlashJob(_ context.Context, job *types.SlashJob) error {
	if job.AttestationID == "" {
		return errors.New("slash job attestation id cannot be empty")
	}
	enc, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "failed to marshal slash job")
	}
	return db.update(func(tx *bolt.Tx) error {
		return tx.Bucket(slashJobsBucket).Put(encodeJobKey(job), enc)
	})
}

// SlashJob returns the job for an attestation, or nil if absent.
func (db *Store) SlashJob(_ context.Context, attestationID string, dueAt time.Time) (*types.SlashJob, error) {
	var job *types.SlashJob
	err := db.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(slashJobsBucket).Get(encodeJobKeyParts(dueAt.UnixNano(), attestationID))
		if enc == nil {
			return nil
		}
		var err error
		job, err = decodeSlashJob(enc)
		return err
	})
	return job, err
}

// DueSlashJobs returns every pending job whose due time has elapsed, in due
// order. Jobs whose retry budget is exhausted are excluded; they stay in the
// bucket as an audit trail of the SlashingFailed alert.
func (db *Store) DueSlashJobs(_ context.Context, now time.Time) ([]*types.SlashJob, error) {
	var jobs []*types.SlashJob
	cutoff := uint64(now.UnixNano())
	err := db.view(func(tx *bolt.Tx) error {
		c := tx.Bucket(slashJobsBucket).Cursor()
		for k, enc := c.First(); k != nil; k, enc = c.Next() {
			if bytesutil.BytesToUint64BigEndian(k[:8]) > cutoff {
				// Keys are due-time ordered, everything beyond is in the future.
				return nil
			}
			job, err := decodeSlashJob(enc)
			if err != nil {
				return err
			}
			if job.Failed {
				continue
			}
			jobs = append(jobs, job)
		}
		return nil
	})
	return jobs, err
}

// DeleteSlashJob removes the pending job for an attestation. Deleting a job
// that does not exist is a no-op.
func (db *Store) DeleteSlashJob(_ context.Context, attestationID string, dueAt time.Time) error {
	return db.update(func(tx *bolt.Tx) error {
		return tx.Bucket(slashJobsBucket).Delete(encodeJobKeyParts(dueAt.UnixNano(), attestationID))
	})
}
