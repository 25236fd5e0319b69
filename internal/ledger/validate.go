package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/klingon-tech/plotchain/pkg/identity"
	"github.com/klingon-tech/plotchain/pkg/merkle"
	"github.com/klingon-tech/plotchain/pkg/sloth"
	"github.com/klingon-tech/plotchain/pkg/tag"
	"github.com/klingon-tech/plotchain/pkg/types"
)

// validateLocked runs the eight-stage validation contract (spec §4.5.2).
// Order matters: a cacheable failure (unknown parent, early, not yet
// syncing) has the side effect of caching the block for later retry.
// Caller must hold l.mu.
func (l *Ledger) validateLocked(block types.Block) error {
	proofID, err := block.Proof.ID()
	if err != nil {
		return fmt.Errorf("%w: proof id: %v", ErrInvalidBlock, err)
	}

	// Stage 1: recent-proof filter.
	if l.recentProofs.Contains(proofID) {
		return ErrDuplicateProof
	}

	// Stage 2: sync-cache check.
	if !l.timerRunning {
		l.cachedBlocksByParentContentID[block.Content.ParentContentID] = append(
			l.cachedBlocksByParentContentID[block.Content.ParentContentID], block)
		return ErrSyncing
	}

	// Stage 3: early/late timeslot window.
	if block.Proof.Timeslot > l.currentTimeslot {
		if block.Proof.Timeslot > l.currentTimeslot+l.params.MaxEarlyTimeslots {
			return ErrTooEarly
		}
		l.earlyBlocksByTimeslot[block.Proof.Timeslot] = append(
			l.earlyBlocksByTimeslot[block.Proof.Timeslot], block)
		return ErrTooEarly
	}
	if block.Proof.Timeslot+l.params.MaxLateTimeslots < l.currentTimeslot {
		return ErrTooLate
	}

	// Stage 4: parent present.
	parent, err := l.metablocks.GetByContentID(block.Content.ParentContentID)
	if err != nil {
		l.cachedBlocksByParentContentID[block.Content.ParentContentID] = append(
			l.cachedBlocksByParentContentID[block.Content.ParentContentID], block)
		return ErrUnknownParent
	}

	// Stage 5: parent.timeslot < block.timeslot.
	if parent.Block.Proof.Timeslot >= block.Proof.Timeslot {
		return fmt.Errorf("%w: parent timeslot %d not before block timeslot %d",
			ErrInvalidBlock, parent.Block.Proof.Timeslot, block.Proof.Timeslot)
	}

	// Stage 6: deep-fork rejection.
	if len(l.heads) > 0 && parent.Height+l.params.ConfirmationDepth < l.heads[0].BlockHeight {
		return fmt.Errorf("%w: deep fork, parent height %d + confirmation depth %d < longest head %d",
			ErrInvalidBlock, parent.Height, l.params.ConfirmationDepth, l.heads[0].BlockHeight)
	}

	// Stage 8 (fetched ahead of stage 7 since the challenge it produces is
	// needed by stage 7's range check): lookback epoch must be closed.
	lookback, ok := l.epochs.GetLookbackEpoch(block.Proof.EpochIndex)
	if !ok || !lookback.Closed {
		return ErrLookbackEpochNotClosed
	}

	// Stage 7: full cryptographic validity.
	if err := l.validateCryptoLocked(block, proofID, lookback); err != nil {
		return err
	}

	return nil
}

func (l *Ledger) validateCryptoLocked(block types.Block, proofID types.Hash, lookback types.Epoch) error {
	contentID, err := block.Content.ID()
	if err != nil {
		return fmt.Errorf("%w: content id: %v", ErrInvalidBlock, err)
	}

	if !identity.Verify(proofID, block.Content.ProofSignature, block.Proof.PublicKey) {
		return fmt.Errorf("%w: proof signature invalid", ErrInvalidBlock)
	}
	if !identity.Verify(contentID, block.Content.ContentSig, block.Proof.PublicKey) {
		return fmt.Errorf("%w: content signature invalid", ErrInvalidBlock)
	}

	if block.CoinbaseTx.Kind != types.TxCoinbase ||
		block.CoinbaseTx.Reward != l.params.BlockReward ||
		block.CoinbaseTx.To != block.Proof.PublicKey ||
		block.CoinbaseTx.ProofID != proofID {
		return fmt.Errorf("%w: malformed coinbase", ErrInvalidBlock)
	}

	if block.Data == nil {
		return fmt.Errorf("%w: no encoding data attached for validation", ErrInvalidBlock)
	}

	computedTag := tag.Compute(block.Data.Encoding[:], block.Proof.Nonce)
	if tag.ToUint64(computedTag) != block.Proof.Tag {
		return fmt.Errorf("%w: tag mismatch", ErrInvalidBlock)
	}

	if block.Proof.SolutionRange != lookback.SolutionRange {
		return fmt.Errorf("%w: proof solution range does not match the epoch's", ErrInvalidBlock)
	}

	slot := block.Proof.Timeslot % uint64(len(lookback.Challenges))
	challenge := lookback.Challenges[slot]
	challengeU64 := challengeToUint64(challenge)
	if !withinRange(block.Proof.Tag, challengeU64, block.Proof.SolutionRange) {
		return fmt.Errorf("%w: tag out of solution range", ErrInvalidBlock)
	}

	expandedIV := sloth.ExpandIV(block.Proof.PublicKey[:], types.PrimeSizeBytes)
	decoded := block.Data.Encoding
	if err := l.sloth.DecodePiece(decoded[:], expandedIV, types.SlothLayersProd); err != nil {
		return fmt.Errorf("%w: decode failed: %v", ErrInvalidBlock, err)
	}
	if decoded != l.genesisPiece {
		return fmt.Errorf("%w: decoded piece does not match genesis piece", ErrInvalidBlock)
	}

	leaf := hashPiece(decoded)
	if !merkle.Verify(leaf, block.Proof.PieceIndex, block.Data.MerkleProof, l.merkleRoot) {
		return fmt.Errorf("%w: merkle proof invalid", ErrInvalidBlock)
	}

	return nil
}

// challengeToUint64 follows the farmer's own target derivation (spec
// §4.4): the first 8 bytes of the challenge, big-endian.
func challengeToUint64(challenge types.Hash) uint64 {
	return binary.BigEndian.Uint64(challenge[:8])
}

// withinRange reports whether tagValue lies within rang/2 of target under
// u64 wrap-around distance, matching the plot store's find_by_range metric.
func withinRange(tagValue, target, rang uint64) bool {
	var diff uint64
	if tagValue >= target {
		diff = tagValue - target
	} else {
		diff = target - tagValue
	}
	wrapped := -diff // 2^64 - diff, the distance going the other way around
	dist := diff
	if wrapped < dist {
		dist = wrapped
	}
	return dist <= rang/2
}

func hashPiece(p [types.PieceSize]byte) types.Hash {
	return types.HashBytes(p[:])
}
