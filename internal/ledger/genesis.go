package ledger

import (
	"fmt"

	"github.com/klingon-tech/plotchain/pkg/identity"
	"github.com/klingon-tech/plotchain/pkg/types"
)

// StageGenesis stages the genesis block directly, bypassing the normal
// validation contract: genesis has no parent to look up and no prior
// epoch to check against. It must be called at most once, before any
// other block is staged.
func (l *Ledger) StageGenesis(block types.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.heads) != 0 {
		return fmt.Errorf("%w: genesis staged after the ledger already has heads", ErrConsistencyViolation)
	}
	if !block.Content.ParentContentID.IsZero() {
		return fmt.Errorf("%w: genesis block must have a zero parent content-id", ErrInvalidBlock)
	}

	proofID, err := block.Proof.ID()
	if err != nil {
		return fmt.Errorf("%w: proof id: %v", ErrInvalidBlock, err)
	}
	l.recentProofs.Add(proofID, struct{}{})

	return l.stageLocked(block, proofID)
}

// CreditAccount sets pub's balance directly, outside of any transaction
// or consensus rule. Used to apply genesis allocations beyond what
// BootstrapGateway's coinbases already minted to the gateway itself —
// operator-configured extra balances a brand new network launches with.
func (l *Ledger) CreditAccount(pub types.PublicKey, balance uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, err := l.getAccount(pub)
	if err != nil {
		return fmt.Errorf("ledger: credit account: %w", err)
	}
	acct.Balance = balance
	return l.putAccount(pub, acct)
}

// BootstrapGateway implements init_from_genesis (spec §8 scenario 1): a
// gateway standing up a brand new chain stages CHALLENGE_LOOKBACK_EPOCHS
// full epochs of linked blocks before the live timer ever starts, each
// extending the last and minting one BLOCK_REWARD coinbase to
// gatewayKey's public key, so the first real challenge (derived from
// folded randomness, not a placeholder) is already available once
// ordinary operation begins. Grounded on
// original_source/src/ledger.rs's init_from_genesis, which runs the same
// nested epoch/timeslot loop and applies every block unconditionally as
// it goes rather than waiting out CONFIRMATION_DEPTH. Must be called at
// most once, before any other block is staged.
func (l *Ledger) BootstrapGateway(gatewayKey *identity.PrivateKey, genesisPiece [types.PieceSize]byte, timestampMs, timeslotDurationMs uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.heads) != 0 {
		return fmt.Errorf("%w: gateway bootstrap after the ledger already has heads", ErrConsistencyViolation)
	}

	pub, err := gatewayKey.PublicKey()
	if err != nil {
		return fmt.Errorf("ledger: bootstrap: gateway public key: %w", err)
	}
	genesisPieceHash := types.HashBytes(genesisPiece[:])

	var parentContentID types.Hash
	timestamp := timestampMs

	for i := uint64(0); i < l.params.ChallengeLookbackEpochs; i++ {
		epochIndex := l.epochs.AdvanceEpoch()
		e, ok := l.epochs.GetEpoch(epochIndex)
		if !ok {
			return fmt.Errorf("%w: bootstrap: advanced epoch %d not found", ErrConsistencyViolation, epochIndex)
		}

		for slot := uint64(0); slot < l.params.TimeslotsPerEpoch; slot++ {
			timeslot := epochIndex*l.params.TimeslotsPerEpoch + slot

			proof := types.Proof{
				Randomness:    genesisPieceHash,
				EpochIndex:    epochIndex,
				Timeslot:      timeslot,
				PublicKey:     pub,
				SolutionRange: e.SolutionRange,
			}
			proofID, err := proof.ID()
			if err != nil {
				return fmt.Errorf("ledger: bootstrap: proof id: %w", err)
			}
			proofSig, err := gatewayKey.Sign(proofID)
			if err != nil {
				return fmt.Errorf("ledger: bootstrap: sign proof: %w", err)
			}

			coinbase := types.NewCoinbase(pub, l.params.BlockReward, proofID)
			coinbaseID, err := coinbase.ID()
			if err != nil {
				return fmt.Errorf("ledger: bootstrap: coinbase id: %w", err)
			}

			content := types.Content{
				ParentContentID: parentContentID,
				ProofID:         proofID,
				ProofSignature:  proofSig,
				TimestampMs:     timestamp,
				TxIDs:           []types.Hash{coinbaseID},
			}
			contentID, err := content.ID()
			if err != nil {
				return fmt.Errorf("ledger: bootstrap: content id: %w", err)
			}
			contentSig, err := gatewayKey.Sign(contentID)
			if err != nil {
				return fmt.Errorf("ledger: bootstrap: sign content: %w", err)
			}
			content.ContentSig = contentSig

			block := types.Block{Proof: proof, CoinbaseTx: coinbase, Content: content}

			l.recentProofs.Add(proofID, struct{}{})
			if err := l.stageLocked(block, proofID); err != nil {
				return fmt.Errorf("ledger: bootstrap: stage block at timeslot %d: %w", timeslot, err)
			}

			// Genesis blocks have no siblings to wait out: apply each one
			// the moment it is staged instead of waiting for
			// CONFIRMATION_DEPTH, matching init_from_genesis's own
			// apply_referenced_blocks call inside the loop.
			mb, err := l.metablocks.GetByContentID(contentID)
			if err != nil {
				return fmt.Errorf("ledger: bootstrap: get staged block: %w", err)
			}
			if err := l.confirmBlockLocked(mb); err != nil {
				return fmt.Errorf("ledger: bootstrap: confirm block at timeslot %d: %w", timeslot, err)
			}

			parentContentID = contentID
			timestamp += timeslotDurationMs
		}
	}

	return nil
}
