// Package slashing files abuse attestations against bonds and drives their
// delayed execution. Every accepted attestation freezes the bond and writes a
// durable job due when the challenge window closes; jobs survive restarts and
// are executed at least once, with the ledger absorbing redelivery.
package slashing

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bytewizard42i/selectConnect-app-pro/async"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/db"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/evidence"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/ledger"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/settlement"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/params"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/timeutils"
)

var log = logrus.WithField("prefix", "slashing")

// Config options for the slashing service.
type Config struct {
	Database   db.Database
	Ledger     *ledger.Service
	Evidence   *evidence.Store
	Settler    settlement.Settler
	Authorizer settlement.Authorizer
}

// Service accepts attestations and disputes, and runs the due-job poller and
// the attestation retention sweep.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config
}

// NewService instantiates the slashing service.
func NewService(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
	}
}

// Start launches the due-job poller and the retention sweep.
func (s *Service) Start() {
	cfg := params.BondingConfig()
	async.RunEvery(s.ctx, cfg.JobPollInterval, func() {
		if err := s.ProcessDueJobs(s.ctx); err != nil {
			log.WithError(err).Error("Slash job poll failed")
		}
	})
	async.RunEvery(s.ctx, cfg.ExpirySweepInterval, s.pruneAttestations)
	log.WithFields(logrus.Fields{
		"pollInterval": cfg.JobPollInterval,
		"workers":      cfg.SlashWorkers,
	}).Info("Started slashing scheduler")
}

// Stop halts polling.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status always returns nil. Failed jobs alert through their own metric.
func (s *Service) Status() error {
	return nil
}

// ProcessDueJobs executes every job whose due time has elapsed, fanning out
// across a bounded worker pool.
func (s *Service) ProcessDueJobs(ctx context.Context) error {
	jobs, err := s.cfg.Database.DueSlashJobs(ctx, timeutils.Now())
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}
	var group errgroup.Group
	sem := make(chan struct{}, params.BondingConfig().SlashWorkers)
	for _, job := range jobs {
		job := job
		sem <- struct{}{}
		group.Go(func() error {
			defer func() { <-sem }()
			s.executeJob(ctx, job)
			return nil
		})
	}
	return group.Wait()
}

func (s *Service) pruneAttestations() {
	cutoff := timeutils.Now().Add(-params.BondingConfig().AttestationRetention)
	pruned, err := s.cfg.Database.PruneAttestations(s.ctx, cutoff)
	if err != nil {
		log.WithError(err).Error("Could not prune attestations")
		return
	}
	if pruned > 0 {
		log.WithField("pruned", pruned).Debug("Pruned resolved attestations")
	}
}
