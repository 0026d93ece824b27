package evidence

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	dbtest "github.com/bytewizard42i/selectConnect-app-pro/bonding/db/testing"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/types"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/params"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/testutil/assert"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/testutil/require"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func testEvidence() *types.Evidence {
	return &types.Evidence{
		ContentFingerprint: [32]byte{0xaa},
		TransportSig:       []byte("transport-signature"),
		SenderCommitment:   [32]byte{0xbb},
		ContextID:          "ctx-1",
		Timestamp:          time.Unix(1700000000, 0).UTC(),
	}
}

func TestStore_RecordAndFetch(t *testing.T) {
	database := dbtest.SetupDB(t)
	store, err := NewStore(database, testKey())
	require.NoError(t, err)
	ctx := context.Background()

	ev := testEvidence()
	hash, err := store.Record(ctx, ev)
	require.NoError(t, err)

	got, err := store.Fetch(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, ev.ContextID, got.ContextID)
	assert.Equal(t, ev.ContentFingerprint, got.ContentFingerprint)
	assert.Equal(t, ev.SenderCommitment, got.SenderCommitment)
	assert.DeepEqual(t, ev.TransportSig, got.TransportSig)
	assert.Equal(t, true, ev.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, hash, got.Hash)

	exists, err := store.Has(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, true, exists)
}

func TestStore_RecordDeterministicHash(t *testing.T) {
	database := dbtest.SetupDB(t)
	store, err := NewStore(database, testKey())
	require.NoError(t, err)
	ctx := context.Background()

	first, err := store.Record(ctx, testEvidence())
	require.NoError(t, err)
	second, err := store.Record(ctx, testEvidence())
	require.NoError(t, err)
	assert.Equal(t, first, second, "same forward must land on the same evidence hash")

	// Different content yields a different hash.
	other := testEvidence()
	other.ContentFingerprint = [32]byte{0xcc}
	third, err := store.Record(ctx, other)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestStore_FetchMissing(t *testing.T) {
	database := dbtest.SetupDB(t)
	store, err := NewStore(database, testKey())
	require.NoError(t, err)

	_, err = store.Fetch(context.Background(), [32]byte{0x01})
	assert.Equal(t, true, errors.Is(err, types.ErrNotFound))
}

func TestStore_WrongKeyFailsAuthentication(t *testing.T) {
	database := dbtest.SetupDB(t)
	store, err := NewStore(database, testKey())
	require.NoError(t, err)
	ctx := context.Background()

	hash, err := store.Record(ctx, testEvidence())
	require.NoError(t, err)

	otherKey := testKey()
	otherKey[0] ^= 0xff
	otherStore, err := NewStore(database, otherKey)
	require.NoError(t, err)
	_, err = otherStore.Fetch(ctx, hash)
	require.ErrorContains(t, "could not authenticate", err)
}

func TestStore_TamperedBlobFailsAuthentication(t *testing.T) {
	database := dbtest.SetupDB(t)
	store, err := NewStore(database, testKey())
	require.NoError(t, err)
	ctx := context.Background()

	hash, err := store.Record(ctx, testEvidence())
	require.NoError(t, err)

	blob, err := database.EvidenceBlob(ctx, hash)
	require.NoError(t, err)
	tampered := bytes.Repeat([]byte{0x00}, len(blob))
	copy(tampered, blob)
	tampered[len(tampered)-1] ^= 0x01
	// Store the tampered blob under a fresh hash and try to open it as if it
	// belonged there.
	var otherHash [32]byte
	otherHash[0] = 0x99
	require.NoError(t, database.SaveEvidenceBlob(ctx, otherHash, tampered, time.Now().Add(time.Hour)))
	_, err = store.Fetch(ctx, otherHash)
	require.ErrorContains(t, "could not authenticate", err)
}

func TestStore_RetentionSweep(t *testing.T) {
	defer params.UseTestConfig()()
	database := dbtest.SetupDB(t)
	store, err := NewStore(database, testKey())
	require.NoError(t, err)
	ctx := context.Background()

	old := testEvidence()
	old.Timestamp = time.Now().Add(-2 * params.BondingConfig().EvidenceRetention)
	oldHash, err := store.Record(ctx, old)
	require.NoError(t, err)

	fresh := testEvidence()
	fresh.Timestamp = time.Now()
	freshHash, err := store.Record(ctx, fresh)
	require.NoError(t, err)

	pruned, err := database.PruneEvidence(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	exists, err := store.Has(ctx, oldHash)
	require.NoError(t, err)
	assert.Equal(t, false, exists)
	exists, err = store.Has(ctx, freshHash)
	require.NoError(t, err)
	assert.Equal(t, true, exists)
}

func TestNewStore_RejectsBadKey(t *testing.T) {
	database := dbtest.SetupDB(t)
	_, err := NewStore(database, []byte("short"))
	require.ErrorContains(t, "sealing key", err)
}
