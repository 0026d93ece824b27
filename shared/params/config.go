// Package params defines the configurable constants of the bonding engine.
// A single active config is held in a package-level variable, mirroring how
// chain parameters are managed elsewhere in the codebase, so that tests can
// swap in a config with short windows without threading it through every
// component.
package params

import (
	"time"
)

// BondingEngineConfig contains the tunable policy constants for bond
// pricing, rate limiting, evidence retention and slashing.
type BondingEngineConfig struct {
	// Pricing.
	PriceCeilingMultiplier uint64 // cap on the reputation multiplier applied to a context's base minimum.

	// Rate limiting.
	RateLimitWindow    time.Duration // sliding window over which sender quotas apply.
	BaseQuotaPerWindow int64         // requests allowed per window for a sender with a clean record.

	// Relay.
	FreshnessWindow   time.Duration // messages older than this are rejected outright.
	ReplayCacheSize   int           // number of recently seen content hashes kept for replay detection.
	BondCacheTTL      time.Duration // how long a positive bond verification may be served from cache.
	DeliveryTimeout   time.Duration // upper bound on a single delivery attempt.
	ReceiptDomainTag  string        // domain separator mixed into receipt digests.
	CommitmentVersion string        // domain separator mixed into commitment derivations.

	// Evidence.
	EvidenceRetention     time.Duration // how long forwarding evidence is kept before being purged.
	EvidenceSweepInterval time.Duration

	// Bond lifecycle.
	DefaultBondTTL         time.Duration
	ExpirySweepInterval    time.Duration
	ExpiryDefaultsToRefund bool // unresolved bonds past TTL refund the sender rather than stay frozen.

	// Slashing scheduler.
	JobPollInterval      time.Duration
	SlashWorkers         int
	SlashMaxAttempts     int
	SlashBackoffBase     time.Duration
	SlashBackoffCeiling  time.Duration
	AttestationRetention time.Duration // kept past the challenge window for dispute audit.

	// External collaborator calls.
	ExternalCallTimeout time.Duration
}

var bondingConfig = DefaultBondingConfig()

// BondingConfig retrieves the currently active engine configuration.
func BondingConfig() *BondingEngineConfig {
	return bondingConfig
}

// OverrideBondingConfig replaces the active configuration. Callers in tests
// should restore the previous value when done.
func OverrideBondingConfig(c *BondingEngineConfig) {
	bondingConfig = c
}

// DefaultBondingConfig returns the production defaults.
func DefaultBondingConfig() *BondingEngineConfig {
	return &BondingEngineConfig{
		PriceCeilingMultiplier: 16,

		RateLimitWindow:    time.Hour,
		BaseQuotaPerWindow: 30,

		FreshnessWindow:   5 * time.Minute,
		ReplayCacheSize:   8192,
		BondCacheTTL:      30 * time.Second,
		DeliveryTimeout:   10 * time.Second,
		ReceiptDomainTag:  "selectconnect-receipt-v1",
		CommitmentVersion: "selectconnect-commitment-v1",

		EvidenceRetention:     30 * 24 * time.Hour,
		EvidenceSweepInterval: time.Hour,

		DefaultBondTTL:         7 * 24 * time.Hour,
		ExpirySweepInterval:    time.Minute,
		ExpiryDefaultsToRefund: true,

		JobPollInterval:      10 * time.Second,
		SlashWorkers:         4,
		SlashMaxAttempts:     5,
		SlashBackoffBase:     time.Second,
		SlashBackoffCeiling:  time.Minute,
		AttestationRetention: 7 * 24 * time.Hour,

		ExternalCallTimeout: 5 * time.Second,
	}
}

// UseTestConfig shrinks every window and interval so scenario tests can
// drive full bond lifecycles with an injected clock. Returns a restore
// function for deferred cleanup.
func UseTestConfig() func() {
	prev := bondingConfig
	c := DefaultBondingConfig()
	c.RateLimitWindow = time.Second
	c.BaseQuotaPerWindow = 4
	c.FreshnessWindow = time.Minute
	c.BondCacheTTL = time.Millisecond
	c.EvidenceRetention = time.Hour
	c.DefaultBondTTL = time.Hour
	c.SlashMaxAttempts = 3
	c.SlashBackoffBase = time.Millisecond
	c.SlashBackoffCeiling = 5 * time.Millisecond
	c.ExternalCallTimeout = time.Second
	bondingConfig = c
	return func() { bondingConfig = prev }
}
