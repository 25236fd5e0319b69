package p2p

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/klingon-tech/plotchain/pkg/codec"
	"github.com/klingon-tech/plotchain/pkg/types"
)

const (
	// syncReadTimeout is the max time to read a sync response.
	syncReadTimeout = 30 * time.Second

	// maxSyncResponseBytes limits sync response size (10 MB).
	maxSyncResponseBytes = 10 * 1024 * 1024
)

// BlocksByTimeslotRequest asks a peer for every block it has staged at a
// given timeslot (spec §6).
type BlocksByTimeslotRequest struct {
	Timeslot uint64 `cbor:"1,keyasint"`
}

// BlocksByTimeslotResponse carries the blocks a peer returned.
type BlocksByTimeslotResponse struct {
	Blocks []types.Block `cbor:"1,keyasint"`
}

// Syncer handles timeslot-indexed block synchronization with peers.
type Syncer struct {
	node *Node
	host host.Host
}

// NewSyncer creates a new syncer attached to the given node.
func NewSyncer(node *Node) *Syncer {
	return &Syncer{
		node: node,
		host: node.host,
	}
}

// RegisterHandler registers the BlocksByTimeslot stream handler on the
// host. provider returns every block staged at the requested timeslot
// (the node wires the ledger's BlocksAtTimeslot; nil when none are staged).
func (s *Syncer) RegisterHandler(provider func(timeslot uint64) []types.Block) {
	s.host.SetStreamHandler(BlocksByTimeslotProtocol, func(stream network.Stream) {
		defer stream.Close()

		var req BlocksByTimeslotRequest
		data, err := io.ReadAll(io.LimitReader(stream, maxSyncResponseBytes))
		if err != nil {
			return
		}
		if err := codec.Unmarshal(data, &req); err != nil {
			return
		}

		resp := BlocksByTimeslotResponse{Blocks: provider(req.Timeslot)}
		out, err := codec.Marshal(&resp)
		if err != nil {
			return
		}
		stream.Write(out)
	})
}

// RequestBlocksForTimeslot asks a specific peer for blocks staged at timeslot.
func (s *Syncer) RequestBlocksForTimeslot(ctx context.Context, peerID peer.ID, timeslot uint64) ([]types.Block, error) {
	stream, err := s.host.NewStream(ctx, peerID, BlocksByTimeslotProtocol)
	if err != nil {
		return nil, fmt.Errorf("open sync stream: %w", err)
	}
	defer stream.Close()

	req := BlocksByTimeslotRequest{Timeslot: timeslot}
	data, err := codec.Marshal(&req)
	if err != nil {
		return nil, fmt.Errorf("marshal sync request: %w", err)
	}
	if _, err := stream.Write(data); err != nil {
		return nil, fmt.Errorf("send sync request: %w", err)
	}

	// Signal we're done writing.
	stream.CloseWrite()

	_ = stream.SetReadDeadline(time.Now().Add(syncReadTimeout))

	respData, err := io.ReadAll(io.LimitReader(stream, maxSyncResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read sync response: %w", err)
	}
	var resp BlocksByTimeslotResponse
	if err := codec.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("decode sync response: %w", err)
	}

	return resp.Blocks, nil
}
