package kv

import (
	"context"
	"testing"
	"time"

	"github.com/bytewizard42i/selectConnect-app-pro/bonding/types"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/testutil/assert"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/testutil/require"
)

func TestStore_Reputation_LazyCreation(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	commitment := [32]byte{0x11}

	rep, err := db.Reputation(ctx, commitment)
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, commitment, rep.SenderCommitment)
	assert.Equal(t, uint64(0), rep.PostedCount)
	assert.Equal(t, uint64(0), rep.SlashedCount)
}

func TestStore_UpdateReputation_Monotonic(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	commitment := [32]byte{0x22}
	slashTime := time.Unix(1700000000, 0).UTC()

	require.NoError(t, db.UpdateReputation(ctx, commitment, func(r *types.Reputation) {
		r.PostedCount++
	}))
	require.NoError(t, db.UpdateReputation(ctx, commitment, func(r *types.Reputation) {
		r.SlashedCount++
		r.TotalSlashedAmount += 5
		r.LastSlashAt = slashTime
	}))

	rep, err := db.Reputation(ctx, commitment)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rep.PostedCount)
	assert.Equal(t, uint64(1), rep.SlashedCount)
	assert.Equal(t, uint64(5), rep.TotalSlashedAmount)
	assert.Equal(t, slashTime, rep.LastSlashAt)
}

func TestStore_Attestations_RoundTripAndIndex(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	created := time.Unix(1700000000, 0).UTC()

	att := &types.Attestation{
		ID:               "att-1",
		BondID:           "bond-1",
		ContextID:        "ctx-1",
		SenderCommitment: [32]byte{1},
		EvidenceHash:     [32]byte{2},
		Attestor:         "guardian-1",
		State:            types.AttestationScheduled,
		ChallengeEndsAt:  created.Add(24 * time.Hour),
		CreatedAt:        created,
	}
	require.NoError(t, db.SaveAttestation(ctx, att))

	got, err := db.Attestation(ctx, "att-1")
	require.NoError(t, err)
	assert.DeepEqual(t, att, got)

	byBond, err := db.AttestationsByBond(ctx, "bond-1")
	require.NoError(t, err)
	require.Equal(t, 1, len(byBond))
	assert.Equal(t, "att-1", byBond[0].ID)

	updated, err := db.UpdateAttestation(ctx, "att-1", func(a *types.Attestation) error {
		a.State = types.AttestationExecuted
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.AttestationExecuted, updated.State)

	_, err = db.UpdateAttestation(ctx, "missing", func(a *types.Attestation) error { return nil })
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestStore_PruneAttestations(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	old := &types.Attestation{ID: "att-old", BondID: "bond-1", CreatedAt: now.Add(-48 * time.Hour)}
	recent := &types.Attestation{ID: "att-new", BondID: "bond-2", CreatedAt: now}
	require.NoError(t, db.SaveAttestation(ctx, old))
	require.NoError(t, db.SaveAttestation(ctx, recent))

	pruned, err := db.PruneAttestations(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	gone, err := db.Attestation(ctx, "att-old")
	require.NoError(t, err)
	assert.Equal(t, (*types.Attestation)(nil), gone)

	kept, err := db.Attestation(ctx, "att-new")
	require.NoError(t, err)
	require.NotNil(t, kept)
}

func TestStore_SafetyPool(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	balance, err := db.SafetyPoolBalance(ctx, "ctx-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), balance)

	require.NoError(t, db.CreditSafetyPool(ctx, "ctx-1", 5))
	require.NoError(t, db.CreditSafetyPool(ctx, "ctx-1", 7))
	require.NoError(t, db.CreditSafetyPool(ctx, "ctx-2", 3))

	balance, err = db.SafetyPoolBalance(ctx, "ctx-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(12), balance)

	balance, err = db.SafetyPoolBalance(ctx, "ctx-2")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), balance)
}
