package metrics

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/klingon-tech/plotchain/pkg/types"
)

// ChainSource is the sampler's view of internal/ledger.Ledger. Defined as
// an interface here, rather than imported directly, so this package never
// depends on internal/ledger (which itself depends on internal/metrics to
// bump BlocksConfirmed).
type ChainSource interface {
	Heads() []types.Head
	CurrentTimeslot() uint64
	MempoolTxIDsSorted() []types.Hash
}

// EpochSource is the sampler's view of internal/epoch.Tracker.
type EpochSource interface {
	CurrentEpochIndex() uint64
}

// PeerSource is the sampler's view of internal/p2p.Node.
type PeerSource interface {
	PeerCount() int
}

// Sampler periodically snapshots chain, epoch and peer state into the
// package's gauges. Nothing else in the node depends on it running; it
// exists purely to keep the /metrics endpoint current.
type Sampler struct {
	chain  ChainSource
	epochs EpochSource
	peers  PeerSource
	clock  clock.Clock
}

// NewSampler builds a sampler over the given collaborators, using the
// system clock. peers may be nil if the node has no network layer
// attached (e.g. a single-node test harness).
func NewSampler(chain ChainSource, epochs EpochSource, peers PeerSource) *Sampler {
	return NewSamplerWithClock(chain, epochs, peers, clock.New())
}

// NewSamplerWithClock is NewSampler with an injectable clock, for
// deterministic tests.
func NewSamplerWithClock(chain ChainSource, epochs EpochSource, peers PeerSource, clk clock.Clock) *Sampler {
	return &Sampler{chain: chain, epochs: epochs, peers: peers, clock: clk}
}

// Run samples every interval until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context, interval time.Duration) {
	s.sample()

	ticker := s.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	heads := s.chain.Heads()
	ForkCount.Set(float64(len(heads)))
	if len(heads) > 0 {
		ChainHeight.Set(float64(heads[0].BlockHeight))
	}
	CurrentTimeslot.Set(float64(s.chain.CurrentTimeslot()))
	MempoolSize.Set(float64(len(s.chain.MempoolTxIDsSorted())))
	CurrentEpoch.Set(float64(s.epochs.CurrentEpochIndex()))

	if s.peers != nil {
		PeersConnected.Set(float64(s.peers.PeerCount()))
	}
}
