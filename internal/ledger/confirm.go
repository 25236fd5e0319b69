package ledger

import (
	"fmt"

	"github.com/klingon-tech/plotchain/internal/metrics"
	"github.com/klingon-tech/plotchain/pkg/identity"
	"github.com/klingon-tech/plotchain/pkg/types"
)

// confirmBlockLocked implements confirm_block (spec §4.5.4). Caller must
// hold l.mu.
func (l *Ledger) confirmBlockLocked(mb types.MetaBlock) error {
	// Step 1: every referenced tx-id must be known. An unknown tx-id here
	// is a structural bug upstream (staging is supposed to guarantee this),
	// not a recoverable condition.
	for _, txID := range mb.Block.Content.TxIDs {
		if _, ok := l.txs[txID]; !ok {
			return fmt.Errorf("%w: confirming block references unknown tx %s", ErrConsistencyViolation, txID)
		}
	}

	// Step 2.
	l.blocksOnLongestChain[mb.ProofID] = struct{}{}

	// Step 3: apply each transaction in list order.
	for _, txID := range mb.Block.Content.TxIDs {
		tx := l.txs[txID]
		if err := l.applyTransactionLocked(tx, txID); err != nil {
			return err
		}
	}

	l.log.Info().
		Str("proof_id", mb.ProofID.String()).
		Uint64("height", mb.Height).
		Msg("confirmed block")
	metrics.BlocksConfirmed.Inc()

	// Step 4: prune siblings and their descendants.
	return l.pruneSiblingsLocked(mb)
}

func (l *Ledger) applyTransactionLocked(tx types.Transaction, txID types.Hash) error {
	switch tx.Kind {
	case types.TxCoinbase:
		acct, err := l.getAccount(tx.To)
		if err != nil {
			return err
		}
		acct.Balance += tx.Reward
		return l.putAccount(tx.To, acct)

	case types.TxCredit:
		if _, inMempool := l.mempool[txID]; !inMempool {
			l.log.Warn().Str("tx_id", txID.String()).Msg("credit tx already applied by a sibling, skipping")
			return nil
		}

		if !identity.Verify(txID, tx.Signature, tx.From) {
			return fmt.Errorf("%w: invalid signature on credit %s", ErrInvalidBlock, txID)
		}

		sender, err := l.getAccount(tx.From)
		if err != nil {
			return err
		}
		if sender.Balance < tx.Amount {
			return fmt.Errorf("%w: insufficient balance for credit %s", ErrInvalidBlock, txID)
		}
		if sender.Nonce >= tx.Nonce {
			return fmt.Errorf("%w: stale nonce for credit %s", ErrInvalidBlock, txID)
		}

		receiver, err := l.getAccount(tx.To)
		if err != nil {
			return err
		}

		sender.Balance -= tx.Amount
		sender.Nonce = tx.Nonce
		receiver.Balance += tx.Amount

		if err := l.putAccount(tx.From, sender); err != nil {
			return err
		}
		if err := l.putAccount(tx.To, receiver); err != nil {
			return err
		}
		delete(l.mempool, txID)
		return nil

	default:
		return fmt.Errorf("%w: unknown tx kind %d", ErrConsistencyViolation, tx.Kind)
	}
}

// pruneSiblingsLocked removes every sibling of mb at its height (branches
// off the same parent that are not mb) and recursively their descendants,
// along with the heads that terminate each pruned branch. heads[0] is
// never pruned.
func (l *Ledger) pruneSiblingsLocked(mb types.MetaBlock) error {
	if mb.Block.Content.ParentContentID.IsZero() {
		return nil
	}
	parent, err := l.metablocks.GetByContentID(mb.Block.Content.ParentContentID)
	if err != nil {
		return fmt.Errorf("ledger: prune siblings: %w", err)
	}

	for _, siblingProofID := range parent.Children {
		if siblingProofID == mb.ProofID {
			continue
		}
		if err := l.pruneBranchLocked(siblingProofID); err != nil {
			return err
		}
	}

	// mb is now the only surviving child of its parent.
	parent.Children = []types.Hash{mb.ProofID}
	return l.metablocks.Put(parent)
}

// pruneBranchLocked removes proofID and every descendant from metablocks
// and prunes the head that terminates the branch, if any, never touching
// heads[0].
func (l *Ledger) pruneBranchLocked(proofID types.Hash) error {
	mb, err := l.metablocks.Get(proofID)
	if err != nil {
		return nil // already pruned
	}

	for _, childProofID := range mb.Children {
		if err := l.pruneBranchLocked(childProofID); err != nil {
			return err
		}
	}

	l.removeHeadLocked(mb.ContentID)
	delete(l.blocksOnLongestChain, mb.ProofID)

	if err := l.metablocks.Delete(mb.ProofID, mb.ContentID); err != nil {
		return fmt.Errorf("ledger: prune branch: %w", err)
	}
	return nil
}

func (l *Ledger) removeHeadLocked(contentID types.Hash) {
	for i, h := range l.heads {
		if i == 0 {
			continue // heads[0] is never pruned
		}
		if h.ContentID == contentID {
			l.heads = append(l.heads[:i], l.heads[i+1:]...)
			return
		}
	}
}
