package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	forwardsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_forwards_total",
		Help: "Total number of messages verified and delivered.",
	})
	forwardsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_forwards_rejected_total",
		Help: "Total number of forwarding requests rejected, by reason.",
	}, []string{"reason"})
	engagementRefundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_engagement_refunds_total",
		Help: "Total number of bonds refunded early on healthy engagement.",
	})
)
