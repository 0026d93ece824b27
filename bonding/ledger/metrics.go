package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bondsPostedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bonds_posted_total",
		Help: "Total number of bonds posted.",
	})
	bondsRefundedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bonds_refunded_total",
		Help: "Total number of bonds refunded to their sender.",
	})
	bondsSlashedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bonds_slashed_total",
		Help: "Total number of bonds slashed into safety pools.",
	})
	bondsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bonds_expired_total",
		Help: "Total number of bonds resolved by TTL expiry.",
	})
	safetyPoolCreditedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safety_pool_credited_units_total",
		Help: "Total slashed amount credited to safety pools, in smallest currency units.",
	})
)
