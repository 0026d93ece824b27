package slashing

import (
	"context"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bytewizard42i/selectConnect-app-pro/bonding/commitment"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/types"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/params"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/timeutils"
)

var errAlreadyDisputed = errors.New("attestation already disputed")

// FileAttestation accepts an abuse report against a bond. The attestor must
// be in the context's admin set and the report must reference evidence the
// engine recorded itself. Accepting the report freezes the bond and writes a
// durable slash job due when the challenge window closes.
func (s *Service) FileAttestation(ctx context.Context, bondID, attestor string, evidenceHash [32]byte) (*types.Attestation, error) {
	bond, err := s.cfg.Ledger.BondStatus(ctx, bondID)
	if err != nil {
		return nil, err
	}

	extCtx, cancel := context.WithTimeout(ctx, params.BondingConfig().ExternalCallTimeout)
	authorized, err := s.cfg.Authorizer.AuthorizeAdmin(extCtx, bond.ContextID, attestor)
	cancel()
	if err != nil {
		return nil, errors.Wrap(types.ErrBackingStoreUnavailable, err.Error())
	}
	if !authorized {
		return nil, errors.Wrapf(types.ErrUnauthorized, "%s is not an admin of context %s", attestor, bond.ContextID)
	}

	exists, err := s.cfg.Evidence.Has(ctx, evidenceHash)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Wrapf(types.ErrNotFound, "attestation references unrecorded evidence %#x", evidenceHash)
	}

	extCtx, cancel = context.WithTimeout(ctx, params.BondingConfig().ExternalCallTimeout)
	policy, err := s.cfg.Settler.QueryPolicy(extCtx, bond.ContextID)
	cancel()
	if err != nil {
		return nil, errors.Wrap(types.ErrBackingStoreUnavailable, err.Error())
	}

	if _, err := s.cfg.Ledger.FreezeBond(ctx, bondID); err != nil {
		return nil, err
	}

	now := timeutils.Now()
	nullifier, err := commitment.DeriveNullifier(bond.SenderCommitment[:], bond.ContextID)
	if err != nil {
		return nil, err
	}
	att := &types.Attestation{
		ID:               uuid.New().String(),
		BondID:           bondID,
		ContextID:        bond.ContextID,
		SenderCommitment: bond.SenderCommitment,
		EvidenceHash:     evidenceHash,
		Attestor:         attestor,
		State:            types.AttestationScheduled,
		ChallengeEndsAt:  now.Add(policy.ChallengeWindow),
		CreatedAt:        now,
	}
	if err := s.cfg.Database.SaveAttestation(ctx, att); err != nil {
		return nil, errors.Wrap(types.ErrBackingStoreUnavailable, err.Error())
	}
	job := &types.SlashJob{
		AttestationID: att.ID,
		BondID:        bondID,
		ContextID:     bond.ContextID,
		EvidenceHash:  evidenceHash,
		Nullifier:     nullifier,
		DueAt:         att.ChallengeEndsAt,
	}
	if err := s.cfg.Database.SaveSlashJob(ctx, job); err != nil {
		// The bond stays frozen with an attestation on record but no job to
		// execute it. Surface loudly; this needs operator attention.
		log.WithField("attestation", att.ID).WithError(err).Error("Could not persist slash job for accepted attestation")
		return nil, errors.Wrap(types.ErrBackingStoreUnavailable, err.Error())
	}

	attestationsFiledTotal.Inc()
	log.WithFields(logrus.Fields{
		"attestation":     att.ID,
		"bond":            bondID,
		"context":         bond.ContextID,
		"challengeEndsAt": att.ChallengeEndsAt,
	}).Info("Attestation filed, bond frozen")
	return att, nil
}

// DisputeAttestation cancels a pending slash inside the challenge window and
// refunds the frozen bond. Disputing the same attestation twice is a no-op;
// disputing one whose slash already executed returns ErrAlreadyResolved.
func (s *Service) DisputeAttestation(ctx context.Context, attestationID string, counterEvidenceHash [32]byte) error {
	exists, err := s.cfg.Evidence.Has(ctx, counterEvidenceHash)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Wrapf(types.ErrNotFound, "dispute references unrecorded evidence %#x", counterEvidenceHash)
	}

	now := timeutils.Now()
	att, err := s.cfg.Database.UpdateAttestation(ctx, attestationID, func(a *types.Attestation) error {
		switch a.State {
		case types.AttestationDisputed:
			return errAlreadyDisputed
		case types.AttestationExecuted:
			return errors.Wrapf(types.ErrAlreadyResolved, "attestation %s already executed", a.ID)
		}
		if !now.Before(a.ChallengeEndsAt) {
			return errors.Wrapf(types.ErrPolicyViolation, "challenge window for attestation %s closed at %v", a.ID, a.ChallengeEndsAt)
		}
		a.State = types.AttestationDisputed
		a.CounterEvidenceHash = counterEvidenceHash
		return nil
	})
	if errors.Is(err, errAlreadyDisputed) {
		return nil
	}
	if err != nil {
		return err
	}

	// Best effort: if the job was rescheduled by a retry its key moved, and
	// the poller will notice the disputed state and drop it instead.
	if err := s.cfg.Database.DeleteSlashJob(ctx, att.ID, att.ChallengeEndsAt); err != nil {
		log.WithField("attestation", att.ID).WithError(err).Error("Could not delete slash job for disputed attestation")
	}

	if err := s.cfg.Ledger.RefundBond(ctx, att.BondID); err != nil {
		if errors.Is(err, types.ErrInvalidTransition) {
			// The slash won the race against this dispute.
			return errors.Wrapf(types.ErrAlreadyResolved, "bond %s resolved before dispute", att.BondID)
		}
		return err
	}

	attestationsDisputedTotal.Inc()
	log.WithFields(logrus.Fields{
		"attestation": att.ID,
		"bond":        att.BondID,
	}).Info("Attestation disputed, bond refunded")
	return nil
}

// executeJob runs one due slash job. The bond state machine is the arbiter
// for races against disputes; the job is deleted once the bond reached a
// terminal state either way, and rescheduled with backoff on transient
// settlement failures.
func (s *Service) executeJob(ctx context.Context, job *types.SlashJob) {
	att, err := s.cfg.Database.Attestation(ctx, job.AttestationID)
	if err != nil {
		log.WithField("attestation", job.AttestationID).WithError(err).Error("Could not load attestation for due job")
		return
	}
	if att == nil || att.State == types.AttestationDisputed {
		if err := s.cfg.Database.DeleteSlashJob(ctx, job.AttestationID, job.DueAt); err != nil {
			log.WithField("attestation", job.AttestationID).WithError(err).Error("Could not delete stale slash job")
		}
		return
	}

	_, err = s.cfg.Ledger.SlashBond(ctx, job.BondID, job.Nullifier)
	switch {
	case err == nil, errors.Is(err, types.ErrAlreadyResolved):
		if _, updErr := s.cfg.Database.UpdateAttestation(ctx, job.AttestationID, func(a *types.Attestation) error {
			a.State = types.AttestationExecuted
			return nil
		}); updErr != nil {
			log.WithField("attestation", job.AttestationID).WithError(updErr).Error("Could not mark attestation executed")
		}
		if delErr := s.cfg.Database.DeleteSlashJob(ctx, job.AttestationID, job.DueAt); delErr != nil {
			log.WithField("attestation", job.AttestationID).WithError(delErr).Error("Could not delete executed slash job")
		}
		slashJobsExecutedTotal.Inc()
		log.WithFields(logrus.Fields{
			"attestation": job.AttestationID,
			"bond":        job.BondID,
			"nullifier":   hex.EncodeToString(job.Nullifier[:]),
		}).Info("Slash executed")
	case errors.Is(err, types.ErrInvalidTransition):
		// The bond was refunded or expired from under the job.
		if delErr := s.cfg.Database.DeleteSlashJob(ctx, job.AttestationID, job.DueAt); delErr != nil {
			log.WithField("attestation", job.AttestationID).WithError(delErr).Error("Could not delete obsolete slash job")
		}
		log.WithFields(logrus.Fields{
			"attestation": job.AttestationID,
			"bond":        job.BondID,
		}).Warn("Slash job obsolete, bond resolved elsewhere")
	default:
		s.rescheduleJob(ctx, job, err)
	}
}

// rescheduleJob pushes a failed job back with exponential backoff, or marks
// it failed once the retry budget is exhausted. Failed jobs stay in the
// database as an audit record and stop being picked up by the poller.
func (s *Service) rescheduleJob(ctx context.Context, job *types.SlashJob, cause error) {
	cfg := params.BondingConfig()
	job.Attempts++
	if job.Attempts >= cfg.SlashMaxAttempts {
		job.Failed = true
		if err := s.cfg.Database.SaveSlashJob(ctx, job); err != nil {
			log.WithField("attestation", job.AttestationID).WithError(err).Error("Could not persist failed slash job")
		}
		slashJobsFailedTotal.Inc()
		log.WithFields(logrus.Fields{
			"attestation": job.AttestationID,
			"bond":        job.BondID,
			"attempts":    job.Attempts,
		}).WithError(cause).Error("Slash job failed permanently, bond stays frozen pending operator action")
		return
	}

	backoff := cfg.SlashBackoffBase << uint(job.Attempts-1)
	if backoff > cfg.SlashBackoffCeiling {
		backoff = cfg.SlashBackoffCeiling
	}
	prevDue := job.DueAt
	job.DueAt = timeutils.Now().Add(backoff)
	if err := s.cfg.Database.SaveSlashJob(ctx, job); err != nil {
		log.WithField("attestation", job.AttestationID).WithError(err).Error("Could not reschedule slash job")
		return
	}
	if err := s.cfg.Database.DeleteSlashJob(ctx, job.AttestationID, prevDue); err != nil {
		log.WithField("attestation", job.AttestationID).WithError(err).Error("Could not delete superseded slash job")
	}
	slashJobsRetriedTotal.Inc()
	log.WithFields(logrus.Fields{
		"attestation": job.AttestationID,
		"attempt":     job.Attempts,
		"nextDueAt":   job.DueAt,
	}).WithError(cause).Warn("Slash attempt failed, rescheduled")
}
