package ledger

import (
	"fmt"

	"github.com/klingon-tech/plotchain/pkg/types"
)

// SubmitBlock validates and, on success, stages block. The returned error
// is one of the sentinel kinds in errors.go; callers should treat
// ErrUnknownParent, ErrTooEarly, ErrTooLate, ErrSyncing, and
// ErrDuplicateProof as non-fatal (the block may already be cached for a
// later retry).
func (l *Ledger) SubmitBlock(block types.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.validateLocked(block); err != nil {
		return err
	}

	proofID, err := block.Proof.ID()
	if err != nil {
		return fmt.Errorf("%w: proof id: %v", ErrInvalidBlock, err)
	}
	l.recentProofs.Add(proofID, struct{}{})

	return l.stageLocked(block, proofID)
}

// stageLocked implements stage_block (spec §4.5.3). Caller must hold l.mu
// and have already validated block.
func (l *Ledger) stageLocked(block types.Block, proofID types.Hash) error {
	contentID, err := block.Content.ID()
	if err != nil {
		return fmt.Errorf("%w: content id: %v", ErrInvalidBlock, err)
	}
	blockID, err := block.ID()
	if err != nil {
		return fmt.Errorf("%w: block id: %v", ErrInvalidBlock, err)
	}

	// Step 3: a proof-id already bound to a different block-id is a fault,
	// not a crash — record and stop, leaving metablocks unchanged.
	if existing, err := l.metablocks.Get(proofID); err == nil {
		if existing.BlockID != blockID {
			l.log.Warn().
				Str("proof_id", proofID.String()).
				Str("existing_block_id", existing.BlockID.String()).
				Str("new_block_id", blockID.String()).
				Msg("fault: two contents bound to one proof-id")
			return ErrProofFault
		}
		// Already staged with the same block-id: idempotent no-op.
		return nil
	}

	coinbaseID, err := block.CoinbaseTx.ID()
	if err != nil {
		return fmt.Errorf("%w: coinbase tx id: %v", ErrInvalidBlock, err)
	}

	// Step 1: insert the coinbase tx into the known-tx set, and carry over
	// any mempool transaction this block's content references so
	// confirmation can find it later even if it is evicted from the
	// mempool by a sibling in the meantime.
	l.txs[coinbaseID] = block.CoinbaseTx
	for _, txID := range block.Content.TxIDs {
		if txID == coinbaseID {
			continue
		}
		if tx, ok := l.mempool[txID]; ok {
			l.txs[txID] = tx
		}
	}

	// Step 2: the staged copy drops Data — the encoding is one-time
	// validation material, not part of the durable chain.
	staged := block
	staged.Data = nil

	height := uint64(0)
	if !block.Content.ParentContentID.IsZero() {
		parent, err := l.metablocks.GetByContentID(block.Content.ParentContentID)
		if err != nil {
			return fmt.Errorf("%w: staging without a present parent", ErrConsistencyViolation)
		}
		height = parent.Height + 1
	}

	mb := types.MetaBlock{
		Block:     staged,
		BlockID:   blockID,
		ProofID:   proofID,
		ContentID: contentID,
		Height:    height,
	}

	// Step 4: save, index by timeslot, link as a child of the parent.
	if err := l.metablocks.Put(mb); err != nil {
		return fmt.Errorf("ledger: stage put: %w", err)
	}
	l.proofIDsByTimeslot[block.Proof.Timeslot] = append(l.proofIDsByTimeslot[block.Proof.Timeslot], proofID)
	if !block.Content.ParentContentID.IsZero() {
		parent, err := l.metablocks.GetByContentID(block.Content.ParentContentID)
		if err == nil {
			if err := l.metablocks.AddChild(parent.ProofID, proofID); err != nil {
				return fmt.Errorf("ledger: link child: %w", err)
			}
		}
	}

	// Step 5.
	l.updateHeadsLocked(block.Content.ParentContentID, contentID, height)

	// Step 6: walk parents to the confirmation horizon and confirm.
	if err := l.walkToConfirmLocked(contentID, height); err != nil {
		return err
	}

	// Step 7.
	l.epochs.AddBlockToEpoch(block.Proof.EpochIndex, block.Proof.Timeslot, blockID)

	l.log.Debug().
		Str("proof_id", proofID.String()).
		Uint64("height", height).
		Uint64("timeslot", block.Proof.Timeslot).
		Msg("staged block")

	l.stageCachedChildrenLocked(contentID)

	return nil
}

// updateHeadsLocked implements update_heads (spec §4.5.3 step 5).
func (l *Ledger) updateHeadsLocked(parentContentID, contentID types.Hash, height uint64) {
	for i, h := range l.heads {
		if h.ContentID == parentContentID {
			l.heads[i] = types.Head{ContentID: contentID, BlockHeight: height}
			if l.heads[i].BlockHeight > l.heads[0].BlockHeight {
				l.heads[0], l.heads[i] = l.heads[i], l.heads[0]
			}
			return
		}
	}
	l.heads = append(l.heads, types.Head{ContentID: contentID, BlockHeight: height})
	last := len(l.heads) - 1
	if l.heads[last].BlockHeight > l.heads[0].BlockHeight {
		l.heads[0], l.heads[last] = l.heads[last], l.heads[0]
	}
}

// walkToConfirmLocked walks up from (contentID, height) until it finds the
// ancestor CONFIRMATION_DEPTH below and confirms it, if that ancestor is
// not confirmed already.
func (l *Ledger) walkToConfirmLocked(contentID types.Hash, height uint64) error {
	if height < l.params.ConfirmationDepth {
		return nil
	}

	target := height - l.params.ConfirmationDepth
	cur, err := l.metablocks.GetByContentID(contentID)
	if err != nil {
		return fmt.Errorf("ledger: walk-to-confirm: %w", err)
	}
	for cur.Height > target {
		if cur.Block.Content.ParentContentID.IsZero() {
			return nil // reached genesis before the confirmation depth
		}
		cur, err = l.metablocks.GetByContentID(cur.Block.Content.ParentContentID)
		if err != nil {
			return fmt.Errorf("ledger: walk-to-confirm: %w", err)
		}
	}

	if _, confirmed := l.blocksOnLongestChain[cur.ProofID]; confirmed {
		return nil
	}
	return l.confirmBlockLocked(cur)
}

// stageCachedChildrenLocked releases every block cached waiting on
// parentContentID and re-attempts staging each, in arrival order.
func (l *Ledger) stageCachedChildrenLocked(parentContentID types.Hash) {
	waiting, ok := l.cachedBlocksByParentContentID[parentContentID]
	if !ok {
		return
	}
	delete(l.cachedBlocksByParentContentID, parentContentID)

	for _, child := range waiting {
		if err := l.validateLocked(child); err != nil {
			if err == ErrUnknownParent || err == ErrTooEarly || err == ErrSyncing {
				continue // re-cached by validateLocked itself
			}
			l.log.Warn().Err(err).Msg("cached child failed validation on release")
			continue
		}
		proofID, err := child.Proof.ID()
		if err != nil {
			continue
		}
		l.recentProofs.Add(proofID, struct{}{})
		if err := l.stageLocked(child, proofID); err != nil {
			l.log.Warn().Err(err).Msg("cached child failed staging on release")
		}
	}
}

// ReleaseEarlyBlocks stages every block cached for timeslot, clearing the
// cache entry. Call after the coordinator advances to timeslot.
func (l *Ledger) ReleaseEarlyBlocks(timeslot uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	blocks, ok := l.earlyBlocksByTimeslot[timeslot]
	if !ok {
		return
	}
	delete(l.earlyBlocksByTimeslot, timeslot)

	for _, block := range blocks {
		if err := l.validateLocked(block); err != nil {
			if err == ErrUnknownParent || err == ErrTooEarly || err == ErrSyncing {
				continue
			}
			l.log.Warn().Err(err).Msg("early block failed validation on release")
			continue
		}
		proofID, err := block.Proof.ID()
		if err != nil {
			continue
		}
		l.recentProofs.Add(proofID, struct{}{})
		if err := l.stageLocked(block, proofID); err != nil {
			l.log.Warn().Err(err).Msg("early block failed staging on release")
		}
	}
}

// AdvanceTimeslot moves the tracked current timeslot forward, releasing
// any blocks cached for the new timeslot.
func (l *Ledger) AdvanceTimeslot(timeslot uint64) {
	l.mu.Lock()
	l.currentTimeslot = timeslot
	l.mu.Unlock()

	l.ReleaseEarlyBlocks(timeslot)
}
