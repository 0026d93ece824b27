package ledger

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bytewizard42i/selectConnect-app-pro/bonding/reputation"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/types"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/params"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/timeutils"
)

// Destinations passed to the settlement layer on release. The settlement
// adapter resolves them; the engine itself never learns payout identities.
const (
	senderDestination     = "sender"
	safetyPoolDestination = "safety-pool:"
)

// Internal sentinels distinguishing idempotent re-resolution from genuinely
// illegal transitions inside the single-winner update.
var (
	errAlreadyRefunded = errors.New("bond already refunded")
	errAlreadySlashed  = errors.New("bond already slashed")
)

// PostBond validates a deposit against the context's policy and the sender's
// record, escrows the funds and writes the bond. Policy or reputation lookups
// failing reject the post: no bond is ever created on a guess.
func (s *Service) PostBond(ctx context.Context, contextID string, commitment [32]byte, amount uint64) (*types.Bond, error) {
	extCtx, cancel := s.externalCtx(ctx)
	policy, err := s.cfg.Settler.QueryPolicy(extCtx, contextID)
	cancel()
	if err != nil {
		return nil, errors.Wrap(types.ErrBackingStoreUnavailable, err.Error())
	}

	rep, err := s.cfg.Reputation.Reputation(ctx, commitment)
	if err != nil {
		return nil, err
	}
	required := reputation.RequiredBondAmount(policy.BaseMinimum, rep)
	if amount < required {
		return nil, errors.Wrapf(types.ErrPolicyViolation,
			"bond amount %d below required %d for context %s", amount, required, contextID)
	}

	extCtx, cancel = s.externalCtx(ctx)
	lockRef, err := s.cfg.Settler.LockFunds(extCtx, amount)
	cancel()
	if err != nil {
		return nil, errors.Wrap(err, "could not escrow bond funds")
	}

	now := timeutils.Now()
	ttl := policy.TTL
	if ttl <= 0 {
		ttl = params.BondingConfig().DefaultBondTTL
	}
	bond := &types.Bond{
		ID:               uuid.New().String(),
		ContextID:        contextID,
		SenderCommitment: commitment,
		Amount:           amount,
		LockRef:          lockRef,
		State:            types.BondPosted,
		PostedAt:         now,
		ExpiresAt:        now.Add(ttl),
	}
	if err := s.cfg.Database.SaveBond(ctx, bond); err != nil {
		// The funds are locked but the bond was never recorded. Undo the
		// escrow so the sender is not left paying for nothing.
		extCtx, cancel := s.externalCtx(ctx)
		if relErr := s.cfg.Settler.ReleaseFunds(extCtx, lockRef, senderDestination); relErr != nil {
			logBond(bond.ID, contextID).WithError(relErr).Error("Could not undo escrow after failed bond write")
		}
		cancel()
		return nil, errors.Wrap(types.ErrBackingStoreUnavailable, err.Error())
	}

	if err := s.cfg.Reputation.RecordBondPosted(ctx, commitment); err != nil {
		logBond(bond.ID, contextID).WithError(err).Error("Could not record posted bond in reputation")
	}
	bondsPostedTotal.Inc()
	logBond(bond.ID, contextID).WithFields(logrus.Fields{
		"amount":    amount,
		"expiresAt": bond.ExpiresAt,
	}).Info("Bond posted")
	return bond, nil
}

// HasActiveBond reports whether the sender commitment holds a bond still able
// to gate forwarding in the context. Lookup failures propagate so callers can
// fail closed.
func (s *Service) HasActiveBond(ctx context.Context, contextID string, commitment [32]byte) (bool, error) {
	bond, err := s.ActiveBond(ctx, contextID, commitment)
	if err != nil {
		return false, err
	}
	return bond != nil, nil
}

// ActiveBond returns the most recently posted active bond for the sender in
// the context, or nil if none exists. Frozen bonds count as active: the
// deposit still stands behind the sender while a challenge runs.
func (s *Service) ActiveBond(ctx context.Context, contextID string, commitment [32]byte) (*types.Bond, error) {
	bonds, err := s.cfg.Database.BondsByContextSender(ctx, contextID, commitment)
	if err != nil {
		return nil, errors.Wrap(types.ErrBackingStoreUnavailable, err.Error())
	}
	now := timeutils.Now()
	var active *types.Bond
	for _, bond := range bonds {
		if !bond.Active(now) {
			continue
		}
		if active == nil || bond.PostedAt.After(active.PostedAt) {
			active = bond
		}
	}
	return active, nil
}

// FreezeBond holds a posted bond pending an attestation's challenge window.
// Only an active POSTED bond can be frozen.
func (s *Service) FreezeBond(ctx context.Context, bondID string) (*types.Bond, error) {
	unlock := s.lockBond(bondID)
	defer unlock()

	now := timeutils.Now()
	bond, err := s.cfg.Database.UpdateBond(ctx, bondID, func(b *types.Bond) error {
		if b.State != types.BondPosted {
			return errors.Wrapf(types.ErrInvalidTransition, "cannot freeze bond in state %s", b.State)
		}
		if !b.Active(now) {
			return errors.Wrapf(types.ErrInvalidTransition, "cannot freeze expired bond %s", b.ID)
		}
		b.State = types.BondFrozen
		b.FrozenAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	logBond(bond.ID, bond.ContextID).Info("Bond frozen pending challenge")
	return bond, nil
}

// RefundBond returns the escrowed funds to the sender. Legal from POSTED,
// FROZEN (dispute upheld) and EXPIRED; a second refund of the same bond is a
// no-op, and refunding a slashed bond is an invalid transition.
func (s *Service) RefundBond(ctx context.Context, bondID string) error {
	unlock := s.lockBond(bondID)
	defer unlock()
	return s.refundLocked(ctx, bondID)
}

func (s *Service) refundLocked(ctx context.Context, bondID string) error {
	var prevState types.BondState
	bond, err := s.cfg.Database.UpdateBond(ctx, bondID, func(b *types.Bond) error {
		switch b.State {
		case types.BondRefunded:
			return errAlreadyRefunded
		case types.BondSlashed:
			return errors.Wrapf(types.ErrInvalidTransition, "cannot refund slashed bond %s", b.ID)
		}
		prevState = b.State
		b.State = types.BondRefunded
		b.ResolvedAt = timeutils.Now()
		return nil
	})
	if errors.Is(err, errAlreadyRefunded) {
		return nil
	}
	if err != nil {
		return err
	}

	extCtx, cancel := s.externalCtx(ctx)
	err = s.cfg.Settler.ReleaseFunds(extCtx, bond.LockRef, senderDestination)
	cancel()
	if err != nil {
		// Roll the bond back so a later retry can release the funds. The
		// caller still holds the bond lock, so no other transition can slip
		// in between the two updates.
		s.rollback(ctx, bondID, prevState)
		return errors.Wrap(err, "could not release refunded bond funds")
	}
	bondsRefundedTotal.Inc()
	logBond(bond.ID, bond.ContextID).WithField("amount", bond.Amount).Info("Bond refunded")
	return nil
}

// SlashBond forfeits a frozen bond into the context's safety pool and applies
// the reputation penalty. A bond already slashed returns ErrAlreadyResolved
// so retrying callers can treat redelivery as success; any other state is an
// invalid transition.
func (s *Service) SlashBond(ctx context.Context, bondID string, nullifier [32]byte) (*types.Bond, error) {
	unlock := s.lockBond(bondID)
	defer unlock()

	bond, err := s.cfg.Database.UpdateBond(ctx, bondID, func(b *types.Bond) error {
		switch b.State {
		case types.BondSlashed:
			return errAlreadySlashed
		case types.BondFrozen:
			b.State = types.BondSlashed
			b.ResolvedAt = timeutils.Now()
			return nil
		default:
			return errors.Wrapf(types.ErrInvalidTransition, "cannot slash bond in state %s", b.State)
		}
	})
	if errors.Is(err, errAlreadySlashed) {
		return nil, errors.Wrapf(types.ErrAlreadyResolved, "bond %s", bondID)
	}
	if err != nil {
		return nil, err
	}

	extCtx, cancel := s.externalCtx(ctx)
	err = s.cfg.Settler.ReleaseFunds(extCtx, bond.LockRef, safetyPoolDestination+bond.ContextID)
	cancel()
	if err != nil {
		// Roll back to FROZEN so the durable job can retry the slash.
		s.rollback(ctx, bondID, types.BondFrozen)
		return nil, errors.Wrap(err, "could not move slashed funds to safety pool")
	}
	if err := s.cfg.Database.CreditSafetyPool(ctx, bond.ContextID, bond.Amount); err != nil {
		logBond(bond.ID, bond.ContextID).WithError(err).Error("Could not credit safety pool")
	}
	if err := s.cfg.Reputation.RecordSlash(ctx, bond.SenderCommitment, bond.Amount); err != nil {
		logBond(bond.ID, bond.ContextID).WithError(err).Error("Could not record slash in reputation")
	}
	bondsSlashedTotal.Inc()
	safetyPoolCreditedTotal.Add(float64(bond.Amount))
	logBond(bond.ID, bond.ContextID).WithFields(logrus.Fields{
		"amount":    bond.Amount,
		"nullifier": hex.EncodeToString(nullifier[:]),
	}).Warn("Bond slashed into safety pool")
	return bond, nil
}

// rollback undoes a terminal transition whose funds release failed. Callers
// hold the bond lock across the original update and the rollback.
func (s *Service) rollback(ctx context.Context, bondID string, to types.BondState) {
	_, err := s.cfg.Database.UpdateBond(ctx, bondID, func(b *types.Bond) error {
		b.State = to
		b.ResolvedAt = time.Time{}
		return nil
	})
	if err != nil {
		log.WithField("bond", bondID).WithError(err).Error(
			"Bond stuck in terminal state with funds still escrowed")
	}
}

// ExpireUnresolvedBonds resolves POSTED and FROZEN bonds whose TTL elapsed
// without reaching a terminal state. The default bias is toward the sender:
// absence of engagement is not evidence of abuse, so expired bonds refund
// unless configured otherwise, in which case they stay in EXPIRED awaiting
// manual resolution. A slash racing the sweep is decided by whichever
// transition wins the bond update; the loser backs off.
func (s *Service) ExpireUnresolvedBonds(ctx context.Context) error {
	bonds, err := s.cfg.Database.NonTerminalBonds(ctx)
	if err != nil {
		return errors.Wrap(types.ErrBackingStoreUnavailable, err.Error())
	}
	now := timeutils.Now()
	refund := params.BondingConfig().ExpiryDefaultsToRefund
	for _, bond := range bonds {
		// Bonds left in EXPIRED by an earlier failed release get retried.
		if bond.State == types.BondExpired && refund {
			unlock := s.lockBond(bond.ID)
			if err := s.refundLocked(ctx, bond.ID); err != nil {
				logBond(bond.ID, bond.ContextID).WithError(err).Error("Could not refund expired bond")
			}
			unlock()
			continue
		}
		if bond.State != types.BondPosted && bond.State != types.BondFrozen {
			continue
		}
		if now.Before(bond.ExpiresAt) {
			continue
		}
		prevState := bond.State
		unlock := s.lockBond(bond.ID)
		_, err := s.cfg.Database.UpdateBond(ctx, bond.ID, func(b *types.Bond) error {
			if b.State != prevState {
				return errors.Wrapf(types.ErrInvalidTransition, "bond %s resolved concurrently", b.ID)
			}
			b.State = types.BondExpired
			return nil
		})
		if err != nil {
			unlock()
			if errors.Is(err, types.ErrInvalidTransition) {
				continue
			}
			return err
		}
		bondsExpiredTotal.Inc()
		logBond(bond.ID, bond.ContextID).Info("Bond expired unresolved")
		if refund {
			if err := s.refundLocked(ctx, bond.ID); err != nil {
				logBond(bond.ID, bond.ContextID).WithError(err).Error("Could not refund expired bond")
			}
		}
		unlock()
	}
	return nil
}

// BondStatus returns the bond record for status queries.
func (s *Service) BondStatus(ctx context.Context, bondID string) (*types.Bond, error) {
	bond, err := s.cfg.Database.Bond(ctx, bondID)
	if err != nil {
		return nil, errors.Wrap(types.ErrBackingStoreUnavailable, err.Error())
	}
	if bond == nil {
		return nil, errors.Wrapf(types.ErrNotFound, "bond %s", bondID)
	}
	return bond, nil
}

// SafetyPoolBalance returns the accumulated slashed funds for a context.
func (s *Service) SafetyPoolBalance(ctx context.Context, contextID string) (uint64, error) {
	balance, err := s.cfg.Database.SafetyPoolBalance(ctx, contextID)
	if err != nil {
		return 0, errors.Wrap(types.ErrBackingStoreUnavailable, err.Error())
	}
	return balance, nil
}
