// Package types defines the records and state machines owned by the bonding
// engine: bonds, reputations, attestations, forwarding evidence, slash jobs
// and context policies.
package types

import (
	"time"
)

// BondState is the lifecycle state of a posted bond.
type BondState uint8

const (
	// BondPosted is the initial state after a sender deposits funds.
	BondPosted BondState = iota
	// BondFrozen marks a bond held pending an abuse attestation's challenge window.
	BondFrozen
	// BondRefunded is terminal. Funds were returned to the sender.
	BondRefunded
	// BondSlashed is terminal. Funds were forfeited into the context's safety pool.
	BondSlashed
	// BondExpired marks a bond whose TTL elapsed with no resolution. It is
	// immediately refunded by the expiry sweep, but the distinct state is
	// retained so audit records show why the refund happened.
	BondExpired
)

func (s BondState) String() string {
	switch s {
	case BondPosted:
		return "POSTED"
	case BondFrozen:
		return "FROZEN"
	case BondRefunded:
		return "REFUNDED"
	case BondSlashed:
		return "SLASHED"
	case BondExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Terminal returns true for states from which no further transition is legal.
// BondExpired is not terminal: the expiry sweep still refunds it.
func (s BondState) Terminal() bool {
	return s == BondRefunded || s == BondSlashed
}

// Bond is a refundable deposit posted by a pseudonymous sender against a
// sharing context. Records are never physically deleted; terminal bonds are
// retained for audit and reputation purposes.
type Bond struct {
	ID               string    `json:"id"`
	ContextID        string    `json:"context_id"`
	SenderCommitment [32]byte  `json:"sender_commitment"`
	Amount           uint64    `json:"amount"` // smallest currency unit.
	LockRef          string    `json:"lock_ref"`
	State            BondState `json:"state"`
	PostedAt         time.Time `json:"posted_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	FrozenAt         time.Time `json:"frozen_at,omitempty"`
	ResolvedAt       time.Time `json:"resolved_at,omitempty"`
}

// Active returns true if the bond can still gate message forwarding at the
// given time: it is non-terminal and its TTL has not elapsed.
func (b *Bond) Active(now time.Time) bool {
	return !b.State.Terminal() && b.State != BondExpired && now.Before(b.ExpiresAt)
}

// Reputation tracks per-commitment counters feeding dynamic pricing and rate
// limits. Created lazily on first bond, monotonically updated, never deleted.
type Reputation struct {
	SenderCommitment   [32]byte  `json:"sender_commitment"`
	PostedCount        uint64    `json:"posted_count"`
	SlashedCount       uint64    `json:"slashed_count"`
	EngagedCount       uint64    `json:"engaged_count"`
	LastSlashAt        time.Time `json:"last_slash_at,omitempty"`
	TotalSlashedAmount uint64    `json:"total_slashed_amount"`
}

// AttestationState is the lifecycle state of an abuse attestation.
type AttestationState uint8

const (
	// AttestationFiled means the report was accepted and the bond frozen.
	AttestationFiled AttestationState = iota
	// AttestationScheduled means a durable slash job exists for the challenge end.
	AttestationScheduled
	// AttestationExecuted means the slash ran to completion.
	AttestationExecuted
	// AttestationDisputed means a dispute cancelled the pending slash.
	AttestationDisputed
)

func (s AttestationState) String() string {
	switch s {
	case AttestationFiled:
		return "FILED"
	case AttestationScheduled:
		return "SCHEDULED"
	case AttestationExecuted:
		return "EXECUTED"
	case AttestationDisputed:
		return "DISPUTED"
	default:
		return "UNKNOWN"
	}
}

// Attestation records an abuse report against a bond. Retained past the
// challenge window for dispute audit, then pruned.
type Attestation struct {
	ID                  string           `json:"id"`
	BondID              string           `json:"bond_id"`
	ContextID           string           `json:"context_id"`
	SenderCommitment    [32]byte         `json:"sender_commitment"`
	EvidenceHash        [32]byte         `json:"evidence_hash"`
	Attestor            string           `json:"attestor"`
	State               AttestationState `json:"state"`
	ChallengeEndsAt     time.Time        `json:"challenge_ends_at"`
	CreatedAt           time.Time        `json:"created_at"`
	CounterEvidenceHash [32]byte         `json:"counter_evidence_hash,omitempty"`
}

// Evidence is the record written for every forwarded message so that no
// evidence gap exists if abuse is reported later. It holds a one-way content
// fingerprint, never the content itself.
type Evidence struct {
	Hash               [32]byte  `json:"hash"`
	ContentFingerprint [32]byte  `json:"content_fingerprint"`
	TransportSig       []byte    `json:"transport_sig,omitempty"`
	SenderCommitment   [32]byte  `json:"sender_commitment"`
	ContextID          string    `json:"context_id"`
	Timestamp          time.Time `json:"timestamp"`
}

// SlashJob is a durable, due-time ordered row driving delayed slashing.
// Jobs survive process restarts and execute at least once; the slash handler
// is idempotent to absorb redelivery.
type SlashJob struct {
	AttestationID string    `json:"attestation_id"`
	BondID        string    `json:"bond_id"`
	ContextID     string    `json:"context_id"`
	EvidenceHash  [32]byte  `json:"evidence_hash"`
	Nullifier     [32]byte  `json:"nullifier"`
	DueAt         time.Time `json:"due_at"`
	Attempts      int       `json:"attempts"`
	Failed        bool      `json:"failed"` // retry budget exhausted; operator alerted.
}

// ContextPolicy is the bonding policy attached to a sharing context. The
// engine only reads these fields; the context itself is owned externally.
type ContextPolicy struct {
	RequiresBond    bool          `json:"requires_bond"`
	BaseMinimum     uint64        `json:"base_minimum"`
	TTL             time.Duration `json:"ttl"`
	ChallengeWindow time.Duration `json:"challenge_window"`
}

// EngagementKind classifies a recipient's healthy interaction with a sender.
type EngagementKind uint8

const (
	// EngagementReply is a direct reply to the forwarded message.
	EngagementReply EngagementKind = iota
	// EngagementAccept is an explicit contact accept.
	EngagementAccept
	// EngagementPositiveFeedback is any other positive signal.
	EngagementPositiveFeedback
)

func (k EngagementKind) String() string {
	switch k {
	case EngagementReply:
		return "REPLY"
	case EngagementAccept:
		return "ACCEPT"
	case EngagementPositiveFeedback:
		return "POSITIVE_FEEDBACK"
	default:
		return "UNKNOWN"
	}
}
