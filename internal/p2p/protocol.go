package p2p

import (
	"github.com/libp2p/go-libp2p/core/protocol"
)

// GossipSub topic names (spec §6: BlockProposal/TxProposal gossip).
const (
	TopicTransactions = "/plotchain/tx/1.0.0"
	TopicBlocks       = "/plotchain/block/1.0.0"
)

// Handshake protocol constants.
const (
	// HandshakeProtocol is the stream protocol ID for peer compatibility checking.
	HandshakeProtocol = protocol.ID("/plotchain/handshake/1.0.0")

	// ProtocolVersion is the current protocol version advertised during handshake.
	ProtocolVersion uint32 = 1

	// MinProtocolVersion is the minimum protocol version we accept from peers.
	MinProtocolVersion uint32 = 1
)

// Request/response stream protocols (spec §6).
const (
	// BlocksByTimeslotProtocol asks a peer for every block it has staged
	// at a given timeslot.
	BlocksByTimeslotProtocol = protocol.ID("/plotchain/blocksbytimeslot/1.0.0")

	// ContactsProtocol asks a peer for addresses of other peers it knows.
	ContactsProtocol = protocol.ID("/plotchain/contacts/1.0.0")
)

// MessageType identifies the type of gossiped message.
type MessageType uint8

const (
	MsgTx    MessageType = iota + 1 // TxProposal broadcast.
	MsgBlock                        // BlockProposal broadcast.
)

// Message is a typed envelope: Payload is the CBOR encoding of a
// types.Transaction (MsgTx) or types.Block (MsgBlock). BroadcastTx and
// BroadcastBlock do not use it; they publish the bare encoding on the
// topic for its type.
type Message struct {
	Type    MessageType `cbor:"1,keyasint"`
	Payload []byte      `cbor:"2,keyasint"`
}
