package consolefeed

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/klingon-tech/plotchain/pkg/types"
)

// ChainSource is this package's view of internal/ledger.Ledger, kept as
// an interface so consolefeed never imports internal/ledger directly.
type ChainSource interface {
	Heads() []types.Head
	CurrentTimeslot() uint64
	MempoolTxIDsSorted() []types.Hash
}

// EpochSource is this package's view of internal/epoch.Tracker.
type EpochSource interface {
	CurrentEpochIndex() uint64
}

// PeerSource is this package's view of internal/p2p.Node.
type PeerSource interface {
	PeerCount() int
}

// SnapshotPublisher periodically pushes a ChainSnapshot event to every
// connected console.
type SnapshotPublisher struct {
	hub    *Hub
	chain  ChainSource
	epochs EpochSource
	peers  PeerSource
	clock  clock.Clock
}

// NewSnapshotPublisher builds a publisher over the given collaborators,
// using the system clock. peers may be nil if the node has no network
// layer attached.
func NewSnapshotPublisher(hub *Hub, chain ChainSource, epochs EpochSource, peers PeerSource) *SnapshotPublisher {
	return NewSnapshotPublisherWithClock(hub, chain, epochs, peers, clock.New())
}

// NewSnapshotPublisherWithClock is NewSnapshotPublisher with an
// injectable clock, for deterministic tests.
func NewSnapshotPublisherWithClock(hub *Hub, chain ChainSource, epochs EpochSource, peers PeerSource, clk clock.Clock) *SnapshotPublisher {
	return &SnapshotPublisher{hub: hub, chain: chain, epochs: epochs, peers: peers, clock: clk}
}

// Run publishes a snapshot immediately, then every interval, until ctx is
// cancelled.
func (p *SnapshotPublisher) Run(ctx context.Context, interval time.Duration) {
	p.publish()

	ticker := p.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publish()
		}
	}
}

func (p *SnapshotPublisher) publish() {
	heads := p.chain.Heads()
	snap := ChainSnapshot{
		ForkCount:   len(heads),
		Epoch:       p.epochs.CurrentEpochIndex(),
		Timeslot:    p.chain.CurrentTimeslot(),
		MempoolSize: len(p.chain.MempoolTxIDsSorted()),
	}
	if len(heads) > 0 {
		snap.Height = heads[0].BlockHeight
	}
	if p.peers != nil {
		snap.PeersCount = p.peers.PeerCount()
	}
	p.hub.PublishSnapshot(snap)
}
