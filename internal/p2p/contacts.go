package p2p

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/klingon-tech/plotchain/pkg/codec"
)

// contactsReadTimeout is the max time to read a contacts response.
const contactsReadTimeout = 5 * time.Second

// maxContactsResponseBytes limits contacts response size.
const maxContactsResponseBytes = 64 * 1024

// ContactsResponse carries the multiaddrs of peers a node knows about
// (spec §6's Contacts request/response).
type ContactsResponse struct {
	Addrs []string `cbor:"1,keyasint"`
}

// RegisterContactsHandler registers the Contacts stream handler. The
// request carries no payload: opening the stream is the request.
func (s *Syncer) RegisterContactsHandler(provider func() []string) {
	s.host.SetStreamHandler(ContactsProtocol, func(stream network.Stream) {
		defer stream.Close()

		resp := ContactsResponse{Addrs: provider()}
		out, err := codec.Marshal(&resp)
		if err != nil {
			return
		}
		stream.Write(out)
	})
}

// RequestContacts asks a peer for addresses of other peers it knows.
func (s *Syncer) RequestContacts(ctx context.Context, peerID peer.ID) ([]string, error) {
	stream, err := s.host.NewStream(ctx, peerID, ContactsProtocol)
	if err != nil {
		return nil, fmt.Errorf("open contacts stream: %w", err)
	}
	defer stream.Close()

	stream.CloseWrite()

	_ = stream.SetReadDeadline(time.Now().Add(contactsReadTimeout))

	data, err := io.ReadAll(io.LimitReader(stream, maxContactsResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read contacts response: %w", err)
	}
	var resp ContactsResponse
	if err := codec.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode contacts response: %w", err)
	}
	return resp.Addrs, nil
}
