package evidence

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/bytewizard42i/selectConnect-app-pro/async"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/db"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/params"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/timeutils"
)

// Service runs the evidence retention sweep. Records live exactly as long as
// the configured retention; the sweep deletes anything older on a fixed
// interval so stored evidence stays bounded.
type Service struct {
	ctx      context.Context
	cancel   context.CancelFunc
	database db.Database
}

// NewService instantiates the retention sweeper.
func NewService(ctx context.Context, database db.Database) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:      ctx,
		cancel:   cancel,
		database: database,
	}
}

// Start launches the periodic retention sweep.
func (s *Service) Start() {
	async.RunEvery(s.ctx, params.BondingConfig().EvidenceSweepInterval, s.sweep)
	log.WithField(
		"retention", params.BondingConfig().EvidenceRetention,
	).Info("Started evidence retention sweep")
}

// Stop halts the sweep.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status always returns nil: a delayed sweep only postpones deletion.
func (s *Service) Status() error {
	return nil
}

func (s *Service) sweep() {
	pruned, err := s.database.PruneEvidence(s.ctx, timeutils.Now())
	if err != nil {
		log.WithError(err).Error("Could not prune expired evidence")
		return
	}
	if pruned > 0 {
		evidencePrunedTotal.Add(float64(pruned))
		log.WithFields(logrus.Fields{
			"pruned": pruned,
		}).Debug("Pruned expired evidence records")
	}
}
