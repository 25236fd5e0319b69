package farmer

import (
	"fmt"

	"github.com/klingon-tech/plotchain/pkg/types"
)

// BuildBlock signs sol into a complete, ready-to-submit block (spec §4.4
// step 3): it fills the Proof, mints the coinbase, and signs both
// proof-id and content-id. parentContentID is the content-id the caller
// (normally the coordinator) has chosen to build on — ordinarily the
// current longest-chain head, or that head's own parent when a sibling
// at the same height has just been observed on the network. mempoolTxIDs
// is the caller's already-sorted pending credit tx-id list (spec: "tx_ids
// = coinbase followed by mempool ids sorted by id").
func (f *Farmer) BuildBlock(parentContentID types.Hash, epochIndex, timeslot uint64, randomness types.Hash, solutionRange uint64, mempoolTxIDs []types.Hash, sol Solution, timestampMs uint64) (types.Block, error) {
	proof := types.Proof{
		Randomness:    randomness,
		EpochIndex:    epochIndex,
		Timeslot:      timeslot,
		PublicKey:     f.pub,
		Tag:           sol.Tag,
		Nonce:         sol.Nonce,
		PieceIndex:    sol.PieceIndex,
		SolutionRange: solutionRange,
	}
	proofID, err := proof.ID()
	if err != nil {
		return types.Block{}, fmt.Errorf("farmer: proof id: %w", err)
	}
	proofSig, err := f.priv.Sign(proofID)
	if err != nil {
		return types.Block{}, fmt.Errorf("farmer: sign proof: %w", err)
	}

	coinbase := types.NewCoinbase(f.pub, f.blockReward, proofID)
	coinbaseID, err := coinbase.ID()
	if err != nil {
		return types.Block{}, fmt.Errorf("farmer: coinbase id: %w", err)
	}

	txIDs := make([]types.Hash, 0, 1+len(mempoolTxIDs))
	txIDs = append(txIDs, coinbaseID)
	txIDs = append(txIDs, mempoolTxIDs...)

	content := types.Content{
		ParentContentID: parentContentID,
		ProofID:         proofID,
		ProofSignature:  proofSig,
		TimestampMs:     timestampMs,
		TxIDs:           txIDs,
	}
	contentID, err := content.ID()
	if err != nil {
		return types.Block{}, fmt.Errorf("farmer: content id: %w", err)
	}
	contentSig, err := f.priv.Sign(contentID)
	if err != nil {
		return types.Block{}, fmt.Errorf("farmer: sign content: %w", err)
	}
	content.ContentSig = contentSig

	data := &types.Data{
		Encoding:    sol.Encoding,
		MerkleProof: sol.MerkleProof,
	}

	return types.Block{
		Proof:      proof,
		CoinbaseTx: coinbase,
		Content:    content,
		Data:       data,
	}, nil
}
