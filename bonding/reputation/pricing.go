package reputation

import (
	"math"

	"github.com/bytewizard42i/selectConnect-app-pro/bonding/types"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/params"
)

// RequiredBondAmount prices a new bond for a sender given their record.
// Pricing is monotonic and multiplicative: a clean record pays the context's
// base minimum, and every recorded slash multiplies the requirement by one
// more, capped at a configured ceiling so the formula itself cannot be used
// to grief senders indefinitely. The result is advisory to bond validation
// and is never persisted.
func RequiredBondAmount(contextBaseMinimum uint64, rep *types.Reputation) uint64 {
	multiplier := uint64(1)
	if rep != nil {
		multiplier = rep.SlashedCount + 1
	}
	if ceiling := params.BondingConfig().PriceCeilingMultiplier; multiplier > ceiling {
		multiplier = ceiling
	}
	if contextBaseMinimum != 0 && multiplier > math.MaxUint64/contextBaseMinimum {
		return math.MaxUint64
	}
	return contextBaseMinimum * multiplier
}
