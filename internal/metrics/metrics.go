// Package metrics exposes the node's optional Prometheus metrics feed
// (spec §1). Callers push observations in: internal/coordinator records
// solutions and produced blocks, internal/ledger confirmed blocks, and
// internal/p2p peer bans. This package imports none of them; Sampler
// reads its gauges through small interfaces.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChainHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "plotchain",
		Name:      "chain_height",
		Help:      "Height of the longest-chain head.",
	})

	ForkCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "plotchain",
		Name:      "fork_count",
		Help:      "Number of current fork heads.",
	})

	CurrentEpoch = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "plotchain",
		Name:      "current_epoch",
		Help:      "Current epoch index.",
	})

	CurrentTimeslot = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "plotchain",
		Name:      "current_timeslot",
		Help:      "Current timeslot index.",
	})

	MempoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "plotchain",
		Name:      "mempool_size",
		Help:      "Number of pending transactions in the mempool.",
	})

	PeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "plotchain",
		Name:      "peers_connected",
		Help:      "Number of connected P2P peers.",
	})

	BlocksConfirmed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "plotchain",
		Name:      "blocks_confirmed_total",
		Help:      "Total blocks confirmed onto the longest chain.",
	})

	BlocksProduced = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "plotchain",
		Name:      "blocks_produced_total",
		Help:      "Total blocks this node produced from a winning solution.",
	})

	SolutionsAudited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "plotchain",
		Name:      "solutions_audited_total",
		Help:      "Total winning solutions this node's farmer found.",
	})

	// SolutionQuality is non-authoritative: it does not affect block
	// acceptance, only how tight the farmer's last audit match was
	// against the target.
	SolutionQuality = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "plotchain",
		Name:      "solution_quality",
		Help:      "Leading zero bits of the most recent winning solution's tag match.",
	})

	PeerBans = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plotchain",
		Name:      "peer_bans_total",
		Help:      "Peer bans by reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		ChainHeight,
		ForkCount,
		CurrentEpoch,
		CurrentTimeslot,
		MempoolSize,
		PeersConnected,
		BlocksConfirmed,
		BlocksProduced,
		SolutionsAudited,
		SolutionQuality,
		PeerBans,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSolution updates the per-solution, non-authoritative quality gauge
// and bumps the audited-solutions counter. Called once per winning
// solution the farmer finds, regardless of whether the block it builds
// is ultimately accepted.
func RecordSolution(leadingZeroBits int) {
	SolutionsAudited.Inc()
	SolutionQuality.Set(float64(leadingZeroBits))
}

// RecordBan increments the ban counter for reason.
func RecordBan(reason string) {
	PeerBans.WithLabelValues(reason).Inc()
}
