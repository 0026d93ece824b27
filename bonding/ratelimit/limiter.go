// Package ratelimit guards message forwarding with per-sender leaky-bucket
// quotas. The limiter is consulted before any forward, but it is not on the
// fund-movement path: callers fail open when reputation lookups are
// unavailable rather than blocking all traffic.
package ratelimit

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/kevinms/leakybucket-go"
	"github.com/sirupsen/logrus"

	"github.com/bytewizard42i/selectConnect-app-pro/bonding/types"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/params"
)

var log = logrus.WithField("prefix", "ratelimit")

// Limiter applies a sliding-window quota per sender commitment. Senders with
// slashes on record get proportionally smaller quotas, floored at one request
// per window. Buckets live in memory only; counters are ephemeral by design.
type Limiter struct {
	lock sync.Mutex
	// One collector per effective quota. A sender slashed mid-window moves
	// to a tighter collector and starts a fresh bucket there.
	collectors map[int64]*leakybucket.Collector
}

// NewLimiter instantiates an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{collectors: make(map[int64]*leakybucket.Collector)}
}

// CheckAndConsume consumes one request from the sender's quota. It returns
// whether the request is allowed and, when it is not, how long the sender
// must wait before the bucket drains.
func (l *Limiter) CheckAndConsume(commitment [32]byte, rep *types.Reputation) (bool, time.Duration) {
	quota := quotaFor(rep)
	key := hex.EncodeToString(commitment[:])

	l.lock.Lock()
	collector, ok := l.collectors[quota]
	if !ok {
		window := params.BondingConfig().RateLimitWindow
		collector = leakybucket.NewCollector(float64(quota)/window.Seconds(), quota, true /* deleteEmptyBuckets */)
		l.collectors[quota] = collector
	}
	l.lock.Unlock()

	if collector.Add(key, 1) > 0 {
		return true, 0
	}
	retryAfter := collector.TillEmpty(key)
	log.WithFields(logrus.Fields{
		"quota":      quota,
		"retryAfter": retryAfter,
	}).Debug("Sender exceeded rate limit")
	return false, retryAfter
}

// Free releases all buckets and stops their drain timers.
func (l *Limiter) Free() {
	l.lock.Lock()
	defer l.lock.Unlock()
	for quota, collector := range l.collectors {
		collector.Free()
		delete(l.collectors, quota)
	}
}

// quotaFor shrinks the base quota as slashes accumulate, floor of one
// request per window.
func quotaFor(rep *types.Reputation) int64 {
	base := params.BondingConfig().BaseQuotaPerWindow
	if rep == nil || rep.SlashedCount == 0 {
		return base
	}
	quota := base / int64(rep.SlashedCount+1)
	if quota < 1 {
		quota = 1
	}
	return quota
}
