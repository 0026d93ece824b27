package types

import (
	"github.com/pkg/errors"
)

// Error taxonomy for the bonding engine. Callers match these with errors.Is;
// components wrap them with per-call context via pkg/errors.
var (
	// ErrPolicyViolation is returned when a bond amount is below the
	// reputation-priced minimum for the context. User-correctable.
	ErrPolicyViolation = errors.New("bond amount below required minimum")

	// ErrInvalidTransition is returned for illegal state changes. Indicates
	// a caller bug or a benign race; logged, never fatal.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrAlreadyResolved marks a duplicate trigger on an already-terminal
	// record. Idempotent operations absorb it and report success.
	ErrAlreadyResolved = errors.New("already resolved")

	// ErrUnauthorized is returned when an attestor lacks authority over the
	// context. Surfaced and audit-logged.
	ErrUnauthorized = errors.New("actor not authorized for context")

	// ErrNotFound is returned for unknown bond, evidence or attestation ids.
	ErrNotFound = errors.New("record not found")

	// ErrBackingStoreUnavailable is returned when a backing store or external
	// collaborator is unreachable. Writes retry with backoff; reads fail open
	// for rate limiting and fail closed for anything gating fund movement.
	ErrBackingStoreUnavailable = errors.New("backing store unavailable")

	// ErrSlashingFailed is raised when a slash job exhausts its retry budget.
	// The frozen bond stays frozen and an operator alert fires; funds are
	// never silently lost track of.
	ErrSlashingFailed = errors.New("slashing failed after exhausting retries")
)
