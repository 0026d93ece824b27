// Package relay fronts message forwarding for bonded senders. A message only
// reaches its recipient after the full verification pipeline passes: context
// policy, active bond, rate limit, freshness, replay, and evidence capture.
// Checks that guard funds or audit trails fail closed; the rate limiter is
// the only stage allowed to fail open.
package relay

import (
	"context"
	"encoding/hex"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bytewizard42i/selectConnect-app-pro/bonding/evidence"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/ledger"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/ratelimit"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/reputation"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/settlement"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/types"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/hashutil"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/params"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/timeutils"
)

var log = logrus.WithField("prefix", "relay")

// Rejection taxonomy for the forwarding pipeline.
var (
	ErrNoActiveBond = errors.New("sender holds no active bond for context")
	ErrRateLimited  = errors.New("sender exceeded rate limit")
	ErrStaleMessage = errors.New("message timestamp outside freshness window")
	ErrReplay       = errors.New("message already forwarded")
)

// Message is a forwarding request from a bonded sender.
type Message struct {
	ContextID        string
	SenderCommitment [32]byte
	Recipient        string
	Payload          []byte
	TransportSig     []byte
	SentAt           time.Time
}

// ForwardResult is returned to the sender after successful delivery.
type ForwardResult struct {
	EvidenceHash [32]byte
	Receipt      *Receipt
	DeliveredAt  time.Time
}

// Deliverer hands a verified message to the transport layer.
type Deliverer interface {
	Deliver(ctx context.Context, msg *Message) error
}

// Config options for the relay service.
type Config struct {
	Ledger     *ledger.Service
	Reputation *reputation.Store
	Evidence   *evidence.Store
	Settler    settlement.Settler
	Deliverer  Deliverer
}

// Service runs the forwarding pipeline.
type Service struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       *Config
	limiter   *ratelimit.Limiter
	signer    *ReceiptSigner
	bondCache *cache.Cache // positive bond verifications, short TTL.
	seen      *lru.Cache   // recently forwarded content hashes.
}

// NewService instantiates the relay.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	signer, err := NewReceiptSigner()
	if err != nil {
		return nil, err
	}
	seen, err := lru.New(params.BondingConfig().ReplayCacheSize)
	if err != nil {
		return nil, err
	}
	ttl := params.BondingConfig().BondCacheTTL
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		limiter:   ratelimit.NewLimiter(),
		signer:    signer,
		bondCache: cache.New(ttl, 2*ttl),
		seen:      seen,
	}, nil
}

// Start is a no-op; the relay has no background loops of its own.
func (s *Service) Start() {
	log.WithField("receiptKey", hex.EncodeToString(s.signer.PublicKey())).Info("Started relay")
}

// Stop releases the rate limiter's buckets.
func (s *Service) Stop() error {
	s.cancel()
	s.limiter.Free()
	return nil
}

// Status always returns nil.
func (s *Service) Status() error {
	return nil
}

// ReceiptPublicKey exposes the key recipients use to verify receipts.
func (s *Service) ReceiptPublicKey() []byte {
	return s.signer.PublicKey()
}

// VerifyAndForward runs the full pipeline for one message and, on success,
// delivers it and returns a signed receipt bound to the stored evidence.
func (s *Service) VerifyAndForward(ctx context.Context, msg *Message) (*ForwardResult, error) {
	cfg := params.BondingConfig()
	now := timeutils.Now()

	extCtx, cancel := context.WithTimeout(ctx, cfg.ExternalCallTimeout)
	policy, err := s.cfg.Settler.QueryPolicy(extCtx, msg.ContextID)
	cancel()
	if err != nil {
		forwardsRejectedTotal.WithLabelValues("policy_unavailable").Inc()
		return nil, errors.Wrap(types.ErrBackingStoreUnavailable, err.Error())
	}

	if policy.RequiresBond {
		if err := s.checkBond(ctx, msg); err != nil {
			return nil, err
		}
	}

	if err := s.checkRate(ctx, msg); err != nil {
		return nil, err
	}

	age := now.Sub(msg.SentAt)
	if age > cfg.FreshnessWindow || age < -cfg.FreshnessWindow {
		forwardsRejectedTotal.WithLabelValues("stale").Inc()
		return nil, errors.Wrapf(ErrStaleMessage, "message sent at %v", msg.SentAt)
	}

	fingerprint := hashutil.Hash(msg.Payload)
	replayKey := replayKey(msg, fingerprint)
	if _, seen := s.seen.Get(replayKey); seen {
		forwardsRejectedTotal.WithLabelValues("replay").Inc()
		return nil, errors.Wrapf(ErrReplay, "content fingerprint %#x", fingerprint)
	}

	// Evidence is written before delivery so that an abuse report can never
	// point at a forward the engine has no record of.
	evidenceHash, err := s.cfg.Evidence.Record(ctx, &types.Evidence{
		ContentFingerprint: fingerprint,
		TransportSig:       msg.TransportSig,
		SenderCommitment:   msg.SenderCommitment,
		ContextID:          msg.ContextID,
		Timestamp:          now,
	})
	if err != nil {
		forwardsRejectedTotal.WithLabelValues("evidence_unavailable").Inc()
		return nil, err
	}

	delCtx, cancel := context.WithTimeout(ctx, cfg.DeliveryTimeout)
	err = s.cfg.Deliverer.Deliver(delCtx, msg)
	cancel()
	if err != nil {
		forwardsRejectedTotal.WithLabelValues("delivery_failed").Inc()
		return nil, errors.Wrap(err, "could not deliver message")
	}
	s.seen.Add(replayKey, struct{}{})

	receipt := s.signer.Sign(evidenceHash, fingerprint, now)
	forwardsTotal.Inc()
	log.WithFields(logrus.Fields{
		"context":  msg.ContextID,
		"evidence": hex.EncodeToString(evidenceHash[:8]),
	}).Debug("Message forwarded")
	return &ForwardResult{
		EvidenceHash: evidenceHash,
		Receipt:      receipt,
		DeliveredAt:  now,
	}, nil
}

// checkBond verifies the sender holds an active bond, serving recent positive
// answers from a short-lived cache. Verification failures and store outages
// both reject: no bond, no forward.
func (s *Service) checkBond(ctx context.Context, msg *Message) error {
	key := msg.ContextID + "/" + hex.EncodeToString(msg.SenderCommitment[:])
	if _, ok := s.bondCache.Get(key); ok {
		return nil
	}
	active, err := s.cfg.Ledger.HasActiveBond(ctx, msg.ContextID, msg.SenderCommitment)
	if err != nil {
		forwardsRejectedTotal.WithLabelValues("bond_check_unavailable").Inc()
		return err
	}
	if !active {
		forwardsRejectedTotal.WithLabelValues("no_bond").Inc()
		return errors.Wrapf(ErrNoActiveBond, "context %s", msg.ContextID)
	}
	s.bondCache.SetDefault(key, true)
	return nil
}

// checkRate consumes the sender's quota. Reputation lookups failing fall back
// to the clean-record quota: rate limiting degrades open, unlike every check
// that moves funds.
func (s *Service) checkRate(ctx context.Context, msg *Message) error {
	rep, err := s.cfg.Reputation.Reputation(ctx, msg.SenderCommitment)
	if err != nil {
		log.WithError(err).Warn("Reputation unavailable, applying base quota")
		rep = nil
	}
	allowed, retryAfter := s.limiter.CheckAndConsume(msg.SenderCommitment, rep)
	if !allowed {
		forwardsRejectedTotal.WithLabelValues("rate_limited").Inc()
		return errors.Wrapf(ErrRateLimited, "retry after %s", retryAfter)
	}
	return nil
}

// HandleEngagement processes a recipient's healthy interaction: the sender's
// posted bond is refunded early and the engagement counts toward their
// record. Frozen bonds are left alone; a pending challenge outranks goodwill.
func (s *Service) HandleEngagement(ctx context.Context, contextID string, commitment [32]byte, kind types.EngagementKind) error {
	bond, err := s.cfg.Ledger.ActiveBond(ctx, contextID, commitment)
	if err != nil {
		return err
	}
	if bond != nil && bond.State == types.BondPosted {
		if err := s.cfg.Ledger.RefundBond(ctx, bond.ID); err != nil {
			return err
		}
		engagementRefundsTotal.Inc()
	}
	if err := s.cfg.Reputation.RecordEngagement(ctx, commitment); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"context": contextID,
		"kind":    kind,
	}).Debug("Engagement recorded")
	return nil
}

func replayKey(msg *Message, fingerprint [32]byte) string {
	key := hashutil.Hash(append(append(append(
		make([]byte, 0, 96),
		fingerprint[:]...),
		msg.SenderCommitment[:]...),
		[]byte(msg.ContextID)...))
	return string(key[:])
}
