package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
)

const (
	// TimeslotProtocol is the protocol ID for querying a peer's best
	// observed timeslot, the peer-liveness/sync-priority signal plotchain
	// uses in place of a "chain height" (there is no chain height: a
	// timeslot's arrival is wall-clock driven, not block-count driven).
	TimeslotProtocol = protocol.ID("/plotchain/timeslot/1.0.0")

	// timeslotReadTimeout is the max time to read a timeslot response.
	timeslotReadTimeout = 5 * time.Second
)

// TimeslotResponse contains a peer's best observed timeslot and the
// content-id of the chain head it is building on.
type TimeslotResponse struct {
	Timeslot uint64 `json:"timeslot"`
	HeadID   string `json:"head_id"`
}

// RegisterTimeslotHandler registers a stream handler that responds with
// the local best timeslot and head content-id.
func (s *Syncer) RegisterTimeslotHandler(timeslotFn func() (uint64, string)) {
	s.host.SetStreamHandler(TimeslotProtocol, func(stream network.Stream) {
		defer stream.Close()

		timeslot, headID := timeslotFn()
		resp := TimeslotResponse{Timeslot: timeslot, HeadID: headID}
		json.NewEncoder(stream).Encode(&resp)
	})
}

// RequestTimeslot queries a peer for its best timeslot and head content-id.
func (s *Syncer) RequestTimeslot(ctx context.Context, peerID peer.ID) (*TimeslotResponse, error) {
	stream, err := s.host.NewStream(ctx, peerID, TimeslotProtocol)
	if err != nil {
		return nil, fmt.Errorf("open timeslot stream: %w", err)
	}
	defer stream.Close()

	// Signal we're done writing (request is empty, just opening the stream).
	stream.CloseWrite()

	_ = stream.SetReadDeadline(time.Now().Add(timeslotReadTimeout))

	var resp TimeslotResponse
	if err := json.NewDecoder(io.LimitReader(stream, 1024)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read timeslot response: %w", err)
	}

	return &resp, nil
}
