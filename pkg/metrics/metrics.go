// Package metrics registers the Prometheus collectors for the settlement
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollTicksTotal counts poller ticks by result (ok, no_new_blocks, rpc_error)
	PollTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chain_poll_ticks_total",
		Help: "Number of chain poll ticks by result",
	}, []string{"result"})

	// ChainHeadGauge tracks the last observed chain head
	ChainHeadGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chain_head_block",
		Help: "Last observed chain head block number",
	})

	// SettlementsTotal counts settle() calls by outcome
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_total",
		Help: "Deposit settlement outcomes",
	}, []string{"outcome"})

	// RailRequestsTotal counts payment rail calls by normalized status
	RailRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rail_requests_total",
		Help: "Payment rail send-funds results",
	}, []string{"status", "mode"})

	// WebhookEventsTotal counts inbound rail webhooks by handling result
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rail_webhook_events_total",
		Help: "Inbound rail webhook events by result",
	}, []string{"result"})

	// DatabaseConnectionsGauge tracks sql.DB pool state
	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "database_connections",
		Help: "Database connection pool state",
	}, []string{"state"})
)
