package p2p

import (
	"fmt"

	"github.com/klingon-tech/plotchain/pkg/codec"
	"github.com/klingon-tech/plotchain/pkg/types"
)

// BroadcastTx publishes a TxProposal to the gossip network (spec §6).
func (n *Node) BroadcastTx(t types.Transaction) error {
	if n.topicTx == nil {
		return fmt.Errorf("p2p node not started")
	}

	data, err := codec.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal tx: %w", err)
	}

	return n.topicTx.Publish(n.ctx, data)
}

// BroadcastBlock publishes a BlockProposal to the gossip network (spec §6).
func (n *Node) BroadcastBlock(b types.Block) error {
	if n.topicBlock == nil {
		return fmt.Errorf("p2p node not started")
	}

	data, err := codec.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal block: %w", err)
	}

	return n.topicBlock.Publish(n.ctx, data)
}
