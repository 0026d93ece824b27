package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	dbtest "github.com/bytewizard42i/selectConnect-app-pro/bonding/db/testing"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/reputation"
	mock "github.com/bytewizard42i/selectConnect-app-pro/bonding/settlement/testing"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/types"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/params"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/testutil/assert"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/testutil/require"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/timeutils"
)

const testContext = "ctx-friends"

var testCommitment = [32]byte{0x11}

func setupLedger(t *testing.T) (*Service, *mock.MockSettler) {
	database := dbtest.SetupDB(t)
	settler := mock.NewMockSettler()
	settler.SetPolicy(testContext, &types.ContextPolicy{
		RequiresBond:    true,
		BaseMinimum:     100,
		TTL:             time.Hour,
		ChallengeWindow: time.Hour,
	})
	svc := NewService(context.Background(), &Config{
		Database:   database,
		Reputation: reputation.NewStore(database),
		Settler:    settler,
	})
	t.Cleanup(func() {
		require.NoError(t, svc.Stop())
	})
	return svc, settler
}

func TestPostBond_LocksFundsAndRecordsBond(t *testing.T) {
	svc, settler := setupLedger(t)
	ctx := context.Background()

	bond, err := svc.PostBond(ctx, testContext, testCommitment, 100)
	require.NoError(t, err)
	assert.Equal(t, types.BondPosted, bond.State)
	assert.Equal(t, uint64(100), settler.LockedAmount(bond.LockRef))
	assert.Equal(t, true, bond.ExpiresAt.After(bond.PostedAt))

	got, err := svc.BondStatus(ctx, bond.ID)
	require.NoError(t, err)
	assert.Equal(t, bond.ID, got.ID)

	rep, err := svc.cfg.Reputation.Reputation(ctx, testCommitment)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rep.PostedCount)
}

func TestPostBond_BelowRequiredAmount(t *testing.T) {
	svc, _ := setupLedger(t)

	_, err := svc.PostBond(context.Background(), testContext, testCommitment, 99)
	assert.Equal(t, true, errors.Is(err, types.ErrPolicyViolation))
}

func TestPostBond_PriceEscalatesAfterSlash(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	// Record one slash: the next bond must cost double the base minimum.
	require.NoError(t, svc.cfg.Reputation.RecordSlash(ctx, testCommitment, 100))

	_, err := svc.PostBond(ctx, testContext, testCommitment, 100)
	assert.Equal(t, true, errors.Is(err, types.ErrPolicyViolation))

	bond, err := svc.PostBond(ctx, testContext, testCommitment, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), bond.Amount)
}

func TestPostBond_PolicyLookupFailsClosed(t *testing.T) {
	svc, settler := setupLedger(t)
	settler.FailNextQuery(errors.New("policy service down"))

	_, err := svc.PostBond(context.Background(), testContext, testCommitment, 100)
	assert.Equal(t, true, errors.Is(err, types.ErrBackingStoreUnavailable))
}

func TestHasActiveBond(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	active, err := svc.HasActiveBond(ctx, testContext, testCommitment)
	require.NoError(t, err)
	assert.Equal(t, false, active)

	bond, err := svc.PostBond(ctx, testContext, testCommitment, 100)
	require.NoError(t, err)

	active, err = svc.HasActiveBond(ctx, testContext, testCommitment)
	require.NoError(t, err)
	assert.Equal(t, true, active)

	// A frozen bond still stands behind the sender.
	_, err = svc.FreezeBond(ctx, bond.ID)
	require.NoError(t, err)
	active, err = svc.HasActiveBond(ctx, testContext, testCommitment)
	require.NoError(t, err)
	assert.Equal(t, true, active)

	// A refunded bond does not.
	require.NoError(t, svc.RefundBond(ctx, bond.ID))
	active, err = svc.HasActiveBond(ctx, testContext, testCommitment)
	require.NoError(t, err)
	assert.Equal(t, false, active)
}

func TestFreezeBond_OnlyFromPosted(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	bond, err := svc.PostBond(ctx, testContext, testCommitment, 100)
	require.NoError(t, err)

	frozen, err := svc.FreezeBond(ctx, bond.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BondFrozen, frozen.State)
	assert.Equal(t, false, frozen.FrozenAt.IsZero())

	_, err = svc.FreezeBond(ctx, bond.ID)
	assert.Equal(t, true, errors.Is(err, types.ErrInvalidTransition))
}

func TestRefundBond_ReleasesOnceAndIsIdempotent(t *testing.T) {
	svc, settler := setupLedger(t)
	ctx := context.Background()

	bond, err := svc.PostBond(ctx, testContext, testCommitment, 100)
	require.NoError(t, err)

	require.NoError(t, svc.RefundBond(ctx, bond.ID))
	require.NoError(t, svc.RefundBond(ctx, bond.ID), "second refund must be a no-op")

	releases := settler.Releases()
	require.Equal(t, 1, len(releases))
	assert.Equal(t, bond.LockRef, releases[0].LockRef)
	assert.Equal(t, "sender", releases[0].Destination)
	assert.Equal(t, uint64(0), settler.LockedAmount(bond.LockRef))

	got, err := svc.BondStatus(ctx, bond.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BondRefunded, got.State)
}

func TestRefundBond_ReleaseFailureIsRetryable(t *testing.T) {
	svc, settler := setupLedger(t)
	ctx := context.Background()

	bond, err := svc.PostBond(ctx, testContext, testCommitment, 100)
	require.NoError(t, err)

	settler.FailReleases = 1
	require.ErrorContains(t, "could not release", svc.RefundBond(ctx, bond.ID))

	// The failed release must not leave the bond terminal.
	got, err := svc.BondStatus(ctx, bond.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BondPosted, got.State)

	require.NoError(t, svc.RefundBond(ctx, bond.ID))
	assert.Equal(t, uint64(0), settler.LockedAmount(bond.LockRef))
}

func TestRefundBond_SlashedBondCannotBeRefunded(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	bond, err := svc.PostBond(ctx, testContext, testCommitment, 100)
	require.NoError(t, err)
	_, err = svc.FreezeBond(ctx, bond.ID)
	require.NoError(t, err)
	_, err = svc.SlashBond(ctx, bond.ID, [32]byte{0xff})
	require.NoError(t, err)

	err = svc.RefundBond(ctx, bond.ID)
	assert.Equal(t, true, errors.Is(err, types.ErrInvalidTransition))
}

func TestSlashBond_MovesFundsToSafetyPool(t *testing.T) {
	svc, settler := setupLedger(t)
	ctx := context.Background()

	bond, err := svc.PostBond(ctx, testContext, testCommitment, 100)
	require.NoError(t, err)
	_, err = svc.FreezeBond(ctx, bond.ID)
	require.NoError(t, err)

	slashed, err := svc.SlashBond(ctx, bond.ID, [32]byte{0xff})
	require.NoError(t, err)
	assert.Equal(t, types.BondSlashed, slashed.State)

	releases := settler.Releases()
	require.Equal(t, 1, len(releases))
	assert.Equal(t, "safety-pool:"+testContext, releases[0].Destination)

	balance, err := svc.SafetyPoolBalance(ctx, testContext)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), balance)

	rep, err := svc.cfg.Reputation.Reputation(ctx, testCommitment)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rep.SlashedCount)
	assert.Equal(t, uint64(100), rep.TotalSlashedAmount)
}

func TestSlashBond_Idempotent(t *testing.T) {
	svc, settler := setupLedger(t)
	ctx := context.Background()

	bond, err := svc.PostBond(ctx, testContext, testCommitment, 100)
	require.NoError(t, err)
	_, err = svc.FreezeBond(ctx, bond.ID)
	require.NoError(t, err)
	_, err = svc.SlashBond(ctx, bond.ID, [32]byte{0xff})
	require.NoError(t, err)

	_, err = svc.SlashBond(ctx, bond.ID, [32]byte{0xff})
	assert.Equal(t, true, errors.Is(err, types.ErrAlreadyResolved))
	assert.Equal(t, 1, len(settler.Releases()), "redelivered slash must not move funds twice")

	rep, err := svc.cfg.Reputation.Reputation(ctx, testCommitment)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rep.SlashedCount, "redelivered slash must not double the penalty")
}

func TestSlashBond_RequiresFrozenBond(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	bond, err := svc.PostBond(ctx, testContext, testCommitment, 100)
	require.NoError(t, err)

	_, err = svc.SlashBond(ctx, bond.ID, [32]byte{0xff})
	assert.Equal(t, true, errors.Is(err, types.ErrInvalidTransition))
}

func TestExpireUnresolvedBonds_RefundsUnresolvedPastTTL(t *testing.T) {
	defer params.UseTestConfig()()
	svc, settler := setupLedger(t)
	ctx := context.Background()

	bond, err := svc.PostBond(ctx, testContext, testCommitment, 100)
	require.NoError(t, err)

	frozen, err := svc.PostBond(ctx, testContext, [32]byte{0x22}, 100)
	require.NoError(t, err)
	_, err = svc.FreezeBond(ctx, frozen.ID)
	require.NoError(t, err)

	// Advance past the bond TTL.
	prev := timeutils.Now
	timeutils.Now = func() time.Time { return prev().Add(2 * time.Hour) }
	defer func() { timeutils.Now = prev }()

	require.NoError(t, svc.ExpireUnresolvedBonds(ctx))

	got, err := svc.BondStatus(ctx, bond.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BondRefunded, got.State)
	assert.Equal(t, uint64(0), settler.LockedAmount(bond.LockRef))

	// A frozen bond past its TTL with no resolution also refunds: the
	// sender keeps the benefit of the doubt when no slash ever lands.
	got, err = svc.BondStatus(ctx, frozen.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BondRefunded, got.State)
	assert.Equal(t, uint64(0), settler.LockedAmount(frozen.LockRef))
}

func TestExpireUnresolvedBonds_NoRefundWhenDisabled(t *testing.T) {
	restore := params.UseTestConfig()
	defer restore()
	cfg := params.BondingConfig()
	cfg.ExpiryDefaultsToRefund = false

	svc, settler := setupLedger(t)
	ctx := context.Background()

	bond, err := svc.PostBond(ctx, testContext, testCommitment, 100)
	require.NoError(t, err)

	prev := timeutils.Now
	timeutils.Now = func() time.Time { return prev().Add(2 * time.Hour) }
	defer func() { timeutils.Now = prev }()

	require.NoError(t, svc.ExpireUnresolvedBonds(ctx))

	got, err := svc.BondStatus(ctx, bond.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BondExpired, got.State)
	assert.Equal(t, uint64(100), settler.LockedAmount(bond.LockRef), "funds stay escrowed awaiting manual resolution")
}

func TestBondStatus_Missing(t *testing.T) {
	svc, _ := setupLedger(t)
	_, err := svc.BondStatus(context.Background(), "missing")
	assert.Equal(t, true, errors.Is(err, types.ErrNotFound))
}
