package kv

import (
	"context"
	"testing"
	"time"

	"github.com/bytewizard42i/selectConnect-app-pro/shared/testutil/assert"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/testutil/require"
)

func TestStore_EvidenceBlob_WriteOnce(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	hash := [32]byte{0xAA}
	expiry := time.Unix(1700000000, 0).UTC()

	require.NoError(t, db.SaveEvidenceBlob(ctx, hash, []byte("sealed-1"), expiry))
	// A second write under the same hash must not replace the original.
	require.NoError(t, db.SaveEvidenceBlob(ctx, hash, []byte("sealed-2"), expiry))

	blob, err := db.EvidenceBlob(ctx, hash)
	require.NoError(t, err)
	assert.DeepEqual(t, []byte("sealed-1"), blob)

	exists, err := db.HasEvidence(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, true, exists)

	missing, err := db.EvidenceBlob(ctx, [32]byte{0xBB})
	require.NoError(t, err)
	assert.Equal(t, 0, len(missing))
}

func TestStore_PruneEvidence(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	expired := [32]byte{1}
	live := [32]byte{2}
	require.NoError(t, db.SaveEvidenceBlob(ctx, expired, []byte("old"), now.Add(-time.Hour)))
	require.NoError(t, db.SaveEvidenceBlob(ctx, live, []byte("new"), now.Add(time.Hour)))

	pruned, err := db.PruneEvidence(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	exists, err := db.HasEvidence(ctx, expired)
	require.NoError(t, err)
	assert.Equal(t, false, exists)

	exists, err = db.HasEvidence(ctx, live)
	require.NoError(t, err)
	assert.Equal(t, true, exists)
}
