// Package reputation tracks per-commitment accountability counters and
// derives the dynamic bond price from them. Reputation never identifies a
// sender: it is keyed purely by the per-context commitment.
package reputation

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bytewizard42i/selectConnect-app-pro/bonding/db"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/types"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/timeutils"
)

var log = logrus.WithField("prefix", "reputation")

// Store exposes reputation reads and the monotonic counter updates driven by
// bond lifecycle events. All mutation goes through this API; no other
// component touches the reputation bucket directly.
type Store struct {
	database db.Database
}

// NewStore instantiates a reputation store backed by the given database.
func NewStore(database db.Database) *Store {
	return &Store{database: database}
}

// Reputation returns the record for a sender commitment, zeroed if the
// sender has never posted a bond.
func (s *Store) Reputation(ctx context.Context, commitment [32]byte) (*types.Reputation, error) {
	rep, err := s.database.Reputation(ctx, commitment)
	if err != nil {
		return nil, errors.Wrap(types.ErrBackingStoreUnavailable, err.Error())
	}
	return rep, nil
}

// RecordBondPosted increments the posted counter for a commitment.
func (s *Store) RecordBondPosted(ctx context.Context, commitment [32]byte) error {
	return s.database.UpdateReputation(ctx, commitment, func(r *types.Reputation) {
		r.PostedCount++
	})
}

// RecordEngagement increments the healthy-engagement counter.
func (s *Store) RecordEngagement(ctx context.Context, commitment [32]byte) error {
	return s.database.UpdateReputation(ctx, commitment, func(r *types.Reputation) {
		r.EngagedCount++
	})
}

// RecordSlash applies the reputation penalty for a slashed bond.
func (s *Store) RecordSlash(ctx context.Context, commitment [32]byte, amount uint64) error {
	err := s.database.UpdateReputation(ctx, commitment, func(r *types.Reputation) {
		r.SlashedCount++
		r.TotalSlashedAmount += amount
		r.LastSlashAt = timeutils.Now()
	})
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"amount": amount,
	}).Info("Recorded reputation penalty")
	return nil
}
