// Package settlement defines the narrow interfaces through which the engine
// talks to its external collaborators: the ledger/settlement layer that
// custodies funds, and the proof/authorization service. The engine's logic
// must not assume any particular settlement technology; one concrete adapter
// exists per backing ledger.
package settlement

import (
	"context"

	"github.com/bytewizard42i/selectConnect-app-pro/bonding/types"
)

// Settler is the funds custody collaborator.
type Settler interface {
	// LockFunds escrows amount and returns an opaque lock reference.
	LockFunds(ctx context.Context, amount uint64) (string, error)
	// ReleaseFunds releases a previously locked amount to a destination.
	ReleaseFunds(ctx context.Context, lockRef, destination string) error
	// QueryPolicy returns the bonding policy attached to a sharing context.
	QueryPolicy(ctx context.Context, contextID string) (*types.ContextPolicy, error)
}

// Authorizer is the proof/authorization collaborator.
type Authorizer interface {
	// AuthorizeAdmin reports whether actor belongs to the context's
	// admin/guardian set.
	AuthorizeAdmin(ctx context.Context, contextID, actor string) (bool, error)
	// CertifyWitness produces a validity proof for a state transition witness.
	// The engine attaches the proof opaquely and does not depend on its
	// internals.
	CertifyWitness(ctx context.Context, circuitName string, witness []byte) ([]byte, error)
}
