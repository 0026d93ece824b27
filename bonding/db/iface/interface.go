// Package iface defines the persistent storage interface for the bonding
// engine. Components mutate shared state only through this interface; no
// component reaches into another's buckets directly.
package iface

import (
	"context"
	"io"
	"time"

	"github.com/bytewizard42i/selectConnect-app-pro/bonding/types"
)

// Database is the persistence contract of the bonding engine. Lookups return
// (nil, nil) when the record does not exist; higher layers translate that to
// their NotFound taxonomy.
type Database interface {
	io.Closer
	DatabasePath() string
	ClearDB() error

	// Bonds. UpdateBond applies fn to the stored bond inside a single write
	// transaction: concurrent transitions on the same bond resolve to exactly
	// one winner. fn returning an error aborts the write.
	SaveBond(ctx context.Context, bond *types.Bond) error
	Bond(ctx context.Context, id string) (*types.Bond, error)
	UpdateBond(ctx context.Context, id string, fn func(*types.Bond) error) (*types.Bond, error)
	BondsByContextSender(ctx context.Context, contextID string, commitment [32]byte) ([]*types.Bond, error)
	NonTerminalBonds(ctx context.Context) ([]*types.Bond, error)

	// Reputation records, created lazily on first access.
	Reputation(ctx context.Context, commitment [32]byte) (*types.Reputation, error)
	UpdateReputation(ctx context.Context, commitment [32]byte, fn func(*types.Reputation)) error

	// Attestations, indexed by bond id, pruned after bounded retention.
	SaveAttestation(ctx context.Context, att *types.Attestation) error
	Attestation(ctx context.Context, id string) (*types.Attestation, error)
	UpdateAttestation(ctx context.Context, id string, fn func(*types.Attestation) error) (*types.Attestation, error)
	AttestationsByBond(ctx context.Context, bondID string) ([]*types.Attestation, error)
	PruneAttestations(ctx context.Context, before time.Time) (int, error)

	// Evidence blobs, sealed by the evidence store before they reach the
	// database. Write-once per hash; duplicate writes are silent no-ops.
	SaveEvidenceBlob(ctx context.Context, hash [32]byte, blob []byte, expiresAt time.Time) error
	EvidenceBlob(ctx context.Context, hash [32]byte) ([]byte, error)
	HasEvidence(ctx context.Context, hash [32]byte) (bool, error)
	PruneEvidence(ctx context.Context, now time.Time) (int, error)

	// Durable slash jobs ordered by due time.
	SaveSlashJob(ctx context.Context, job *types.SlashJob) error
	SlashJob(ctx context.Context, attestationID string, dueAt time.Time) (*types.SlashJob, error)
	DueSlashJobs(ctx context.Context, now time.Time) ([]*types.SlashJob, error)
	DeleteSlashJob(ctx context.Context, attestationID string, dueAt time.Time) error

	// Safety pool balances keyed by context.
	CreditSafetyPool(ctx context.Context, contextID string, amount uint64) error
	SafetyPoolBalance(ctx context.Context, contextID string) (uint64, error)
}
