package slashing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attestationsFiledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attestations_filed_total",
		Help: "Total number of abuse attestations accepted.",
	})
	attestationsDisputedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attestations_disputed_total",
		Help: "Total number of attestations cancelled by a dispute.",
	})
	slashJobsExecutedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slash_jobs_executed_total",
		Help: "Total number of slash jobs executed to completion.",
	})
	slashJobsRetriedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slash_jobs_retried_total",
		Help: "Total number of slash job executions rescheduled after a failure.",
	})
	slashJobsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slash_jobs_failed_total",
		Help: "Total number of slash jobs abandoned after exhausting their retry budget.",
	})
)
