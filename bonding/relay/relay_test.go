package relay

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	dbtest "github.com/bytewizard42i/selectConnect-app-pro/bonding/db/testing"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/evidence"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/ledger"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/reputation"
	mock "github.com/bytewizard42i/selectConnect-app-pro/bonding/settlement/testing"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/types"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/params"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/testutil/assert"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/testutil/require"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/timeutils"
)

const (
	bondedContext = "ctx-friends"
	openContext   = "ctx-open"
)

var testCommitment = [32]byte{0x11}

type mockDeliverer struct {
	mu        sync.Mutex
	delivered []*Message
	failNext  error
}

func (m *mockDeliverer) Deliver(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.delivered = append(m.delivered, msg)
	return nil
}

func (m *mockDeliverer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.delivered)
}

type fixture struct {
	svc       *Service
	ledger    *ledger.Service
	rep       *reputation.Store
	evidence  *evidence.Store
	settler   *mock.MockSettler
	deliverer *mockDeliverer
}

func setup(t *testing.T) *fixture {
	t.Cleanup(params.UseTestConfig())
	database := dbtest.SetupDB(t)
	settler := mock.NewMockSettler()
	settler.SetPolicy(bondedContext, &types.ContextPolicy{
		RequiresBond:    true,
		BaseMinimum:     100,
		TTL:             time.Hour,
		ChallengeWindow: time.Hour,
	})
	settler.SetPolicy(openContext, &types.ContextPolicy{RequiresBond: false, TTL: time.Hour})

	repStore := reputation.NewStore(database)
	key := make([]byte, 32)
	evStore, err := evidence.NewStore(database, key)
	require.NoError(t, err)
	ledgerSvc := ledger.NewService(context.Background(), &ledger.Config{
		Database:   database,
		Reputation: repStore,
		Settler:    settler,
	})
	deliverer := &mockDeliverer{}
	svc, err := NewService(context.Background(), &Config{
		Ledger:     ledgerSvc,
		Reputation: repStore,
		Evidence:   evStore,
		Settler:    settler,
		Deliverer:  deliverer,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, svc.Stop())
		require.NoError(t, ledgerSvc.Stop())
	})
	return &fixture{
		svc:       svc,
		ledger:    ledgerSvc,
		rep:       repStore,
		evidence:  evStore,
		settler:   settler,
		deliverer: deliverer,
	}
}

func message(contextID string, payload string) *Message {
	return &Message{
		ContextID:        contextID,
		SenderCommitment: testCommitment,
		Recipient:        "recipient-1",
		Payload:          []byte(payload),
		TransportSig:     []byte("sig"),
		SentAt:           timeutils.Now(),
	}
}

func TestVerifyAndForward_BondedSenderLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	bond, err := f.ledger.PostBond(ctx, bondedContext, testCommitment, 100)
	require.NoError(t, err)

	result, err := f.svc.VerifyAndForward(ctx, message(bondedContext, "hello"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.deliverer.count())
	assert.Equal(t, true, VerifyReceipt(f.svc.ReceiptPublicKey(), result.Receipt))

	// The forward left a sealed evidence record behind.
	ev, err := f.evidence.Fetch(ctx, result.EvidenceHash)
	require.NoError(t, err)
	assert.Equal(t, bondedContext, ev.ContextID)
	assert.Equal(t, testCommitment, ev.SenderCommitment)

	// Healthy engagement refunds the bond early and counts for the sender.
	require.NoError(t, f.svc.HandleEngagement(ctx, bondedContext, testCommitment, types.EngagementReply))
	got, err := f.ledger.BondStatus(ctx, bond.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BondRefunded, got.State)
	assert.Equal(t, uint64(0), f.settler.LockedAmount(bond.LockRef))

	rep, err := f.rep.Reputation(ctx, testCommitment)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rep.EngagedCount)
}

func TestVerifyAndForward_NoBond(t *testing.T) {
	f := setup(t)

	_, err := f.svc.VerifyAndForward(context.Background(), message(bondedContext, "hello"))
	assert.Equal(t, true, errors.Is(err, ErrNoActiveBond))
	assert.Equal(t, 0, f.deliverer.count())
}

func TestVerifyAndForward_OpenContextNeedsNoBond(t *testing.T) {
	f := setup(t)

	_, err := f.svc.VerifyAndForward(context.Background(), message(openContext, "hello"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.deliverer.count())
}

func TestVerifyAndForward_PolicyOutageFailsClosed(t *testing.T) {
	f := setup(t)
	f.settler.FailNextQuery(errors.New("policy service down"))

	_, err := f.svc.VerifyAndForward(context.Background(), message(openContext, "hello"))
	assert.Equal(t, true, errors.Is(err, types.ErrBackingStoreUnavailable))
	assert.Equal(t, 0, f.deliverer.count())
}

func TestVerifyAndForward_RateLimit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// A long window keeps the bucket from draining mid-test.
	params.BondingConfig().RateLimitWindow = time.Minute

	quota := params.BondingConfig().BaseQuotaPerWindow
	for i := int64(0); i < quota; i++ {
		_, err := f.svc.VerifyAndForward(ctx, message(openContext, fmt.Sprintf("payload-%d", i)))
		require.NoError(t, err)
	}

	_, err := f.svc.VerifyAndForward(ctx, message(openContext, "one-too-many"))
	assert.Equal(t, true, errors.Is(err, ErrRateLimited))
	assert.Equal(t, int(quota), f.deliverer.count())
}

func TestVerifyAndForward_StaleMessage(t *testing.T) {
	f := setup(t)

	msg := message(openContext, "hello")
	msg.SentAt = timeutils.Now().Add(-2 * params.BondingConfig().FreshnessWindow)
	_, err := f.svc.VerifyAndForward(context.Background(), msg)
	assert.Equal(t, true, errors.Is(err, ErrStaleMessage))

	msg = message(openContext, "hello")
	msg.SentAt = timeutils.Now().Add(2 * params.BondingConfig().FreshnessWindow)
	_, err = f.svc.VerifyAndForward(context.Background(), msg)
	assert.Equal(t, true, errors.Is(err, ErrStaleMessage))
}

func TestVerifyAndForward_Replay(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.VerifyAndForward(ctx, message(openContext, "hello"))
	require.NoError(t, err)

	_, err = f.svc.VerifyAndForward(ctx, message(openContext, "hello"))
	assert.Equal(t, true, errors.Is(err, ErrReplay))
	assert.Equal(t, 1, f.deliverer.count())
}

func TestVerifyAndForward_DeliveryFailureIsRetryable(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.deliverer.failNext = errors.New("transport unreachable")
	_, err := f.svc.VerifyAndForward(ctx, message(openContext, "hello"))
	require.ErrorContains(t, "could not deliver", err)

	// A failed delivery is not a replay: the sender may retry.
	result, err := f.svc.VerifyAndForward(ctx, message(openContext, "hello"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.deliverer.count())

	// Evidence was already on record from the first attempt.
	exists, err := f.evidence.Has(ctx, result.EvidenceHash)
	require.NoError(t, err)
	assert.Equal(t, true, exists)
}

func TestVerifyReceipt_WrongKey(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	result, err := f.svc.VerifyAndForward(ctx, message(openContext, "hello"))
	require.NoError(t, err)

	other, err := NewReceiptSigner()
	require.NoError(t, err)
	assert.Equal(t, false, VerifyReceipt(other.PublicKey(), result.Receipt))

	// A tampered receipt fails against the right key too.
	tampered := *result.Receipt
	tampered.ContentFingerprint[0] ^= 0x01
	assert.Equal(t, false, VerifyReceipt(f.svc.ReceiptPublicKey(), &tampered))
}

func TestHandleEngagement_FrozenBondIsNotRefunded(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	bond, err := f.ledger.PostBond(ctx, bondedContext, testCommitment, 100)
	require.NoError(t, err)
	_, err = f.ledger.FreezeBond(ctx, bond.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleEngagement(ctx, bondedContext, testCommitment, types.EngagementAccept))

	got, err := f.ledger.BondStatus(ctx, bond.ID)
	require.NoError(t, err)
	assert.Equal(t, types.BondFrozen, got.State, "a pending challenge outranks engagement")

	rep, err := f.rep.Reputation(ctx, testCommitment)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rep.EngagedCount)
}
