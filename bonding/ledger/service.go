// Package ledger owns the bond lifecycle: posting, freezing, refunding,
// slashing and expiry. Every fund-movement decision is fail-closed, and all
// state transitions run through single-winner database updates so concurrent
// resolutions of the same bond cannot both take effect.
package ledger

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bytewizard42i/selectConnect-app-pro/async"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/db"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/reputation"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/settlement"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/params"
)

var log = logrus.WithField("prefix", "ledger")

// Config options for the ledger service.
type Config struct {
	Database   db.Database
	Reputation *reputation.Store
	Settler    settlement.Settler
}

// Service implements the bond state machine and runs the expiry sweep.
type Service struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *Config
	lockMu   sync.Mutex
	locks    map[string]*sync.Mutex // per-bond transition locks.
	lockRefs map[string]int
}

// NewService instantiates the ledger.
func NewService(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		locks:    make(map[string]*sync.Mutex),
		lockRefs: make(map[string]int),
	}
}

// Start launches the periodic expiry sweep.
func (s *Service) Start() {
	async.RunEvery(s.ctx, params.BondingConfig().ExpirySweepInterval, func() {
		if err := s.ExpireUnresolvedBonds(s.ctx); err != nil {
			log.WithError(err).Error("Expiry sweep failed")
		}
	})
	log.Info("Started bond ledger")
}

// Stop halts the sweep.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status always returns nil. A failing settlement layer surfaces per-call.
func (s *Service) Status() error {
	return nil
}

// lockBond serializes transitions on one bond within this process. The
// database update is single-winner on its own; the lock additionally keeps
// settlement side effects from racing each other.
func (s *Service) lockBond(id string) func() {
	s.lockMu.Lock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	s.lockRefs[id]++
	s.lockMu.Unlock()

	mu.Lock()
	return func() {
		mu.Unlock()
		s.lockMu.Lock()
		s.lockRefs[id]--
		if s.lockRefs[id] == 0 {
			delete(s.locks, id)
			delete(s.lockRefs, id)
		}
		s.lockMu.Unlock()
	}
}

// externalCtx bounds a settlement collaborator call.
func (s *Service) externalCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, params.BondingConfig().ExternalCallTimeout)
}

func logBond(id, contextID string) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"bond":    id,
		"context": contextID,
	})
}
