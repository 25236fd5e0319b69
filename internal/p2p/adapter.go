package p2p

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"

	"github.com/klingon-tech/plotchain/pkg/codec"
	"github.com/klingon-tech/plotchain/pkg/types"
)

// Adapter exposes a Node and its Syncer as the internal/coordinator
// Network interface: best-effort, fire-and-forget broadcasts and a
// peer-fanned-out "blocks for timeslot T" request.
type Adapter struct {
	node   *Node
	syncer *Syncer
	log    zerolog.Logger
}

// NewAdapter wraps node/syncer as a coordinator.Network.
func NewAdapter(node *Node, syncer *Syncer, log zerolog.Logger) *Adapter {
	return &Adapter{node: node, syncer: syncer, log: log.With().Str("component", "p2p-adapter").Logger()}
}

// BroadcastBlock gossips block, logging rather than propagating failures:
// the coordinator treats broadcast as best-effort.
func (a *Adapter) BroadcastBlock(block types.Block) {
	if err := a.node.BroadcastBlock(block); err != nil {
		a.log.Warn().Err(err).Msg("broadcast block failed")
	}
}

// BroadcastTransaction gossips tx, best-effort.
func (a *Adapter) BroadcastTransaction(tx types.Transaction) {
	if err := a.node.BroadcastTx(tx); err != nil {
		a.log.Warn().Err(err).Msg("broadcast transaction failed")
	}
}

// RequestBlocksForTimeslot asks every connected peer for blocks staged at
// timeslot and returns the union of what they return. A peer that errors
// or times out simply contributes nothing.
func (a *Adapter) RequestBlocksForTimeslot(ctx context.Context, timeslot uint64) ([]types.Block, error) {
	var out []types.Block
	for _, p := range a.node.PeerList() {
		blocks, err := a.syncer.RequestBlocksForTimeslot(ctx, p.ID, timeslot)
		if err != nil {
			a.log.Debug().Err(err).Str("peer", p.ID.String()[:16]).Msg("blocks-by-timeslot request failed")
			continue
		}
		out = append(out, blocks...)
	}
	return out, nil
}

// SetupHandlers registers the block/tx gossip and sync/contacts stream
// handlers, decoding incoming gossip into the coordinator's queues.
func (a *Adapter) SetupHandlers(onBlock func(types.Block), onTx func(types.Transaction), blocksAtTimeslot func(uint64) []types.Block, contacts func() []string) {
	a.node.SetBlockHandler(func(_ peer.ID, data []byte) {
		var b types.Block
		if err := codec.Unmarshal(data, &b); err != nil {
			a.log.Debug().Err(err).Msg("dropping malformed gossiped block")
			return
		}
		onBlock(b)
	})
	a.node.SetTxHandler(func(_ peer.ID, data []byte) {
		var t types.Transaction
		if err := codec.Unmarshal(data, &t); err != nil {
			a.log.Debug().Err(err).Msg("dropping malformed gossiped transaction")
			return
		}
		onTx(t)
	})

	a.syncer.RegisterHandler(blocksAtTimeslot)
	a.syncer.RegisterContactsHandler(contacts)
}
