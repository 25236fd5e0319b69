// Package farmer implements the solver loop (spec §4.4): for each
// timeslot challenge it audits the local plot for matching tags and, for
// every match, assembles and signs a candidate block.
package farmer

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/rs/zerolog"

	"github.com/klingon-tech/plotchain/internal/plot"
	"github.com/klingon-tech/plotchain/pkg/identity"
	"github.com/klingon-tech/plotchain/pkg/merkle"
	"github.com/klingon-tech/plotchain/pkg/sloth"
	"github.com/klingon-tech/plotchain/pkg/tag"
	"github.com/klingon-tech/plotchain/pkg/types"
)

// Solution is one plot match: a piece whose tag fell inside the
// timeslot's solution range, carrying everything needed to build a
// Proof and the Data attached for its one-time validation.
type Solution struct {
	PieceIndex      uint64
	Tag             uint64
	Nonce           uint64
	Encoding        [types.PieceSize]byte
	MerkleProof     [][]byte
	LeadingZeroBits int // how tight the match was against the target, for metrics only
}

// Farmer audits a plot store against per-timeslot challenges and signs
// winning solutions into candidate blocks, all under one node identity.
type Farmer struct {
	log zerolog.Logger

	store *plot.Store
	priv  *identity.PrivateKey
	pub   types.PublicKey

	sloth        *sloth.Sloth
	expandedIV   []byte
	tree         *merkle.Tree
	genesisPiece [types.PieceSize]byte
	blockReward  uint64
}

// New creates a farmer over store, signing with priv, auditing a plot
// committed to plotSize identical-leaf entries (every entry decodes to
// genesisPiece — spec §4.5.2 stage 7's validation check). The Merkle
// tree over those leaves is built once, since every leaf hashes the same
// content regardless of index.
func New(store *plot.Store, priv *identity.PrivateKey, genesisPiece [types.PieceSize]byte, plotSize uint64, blockReward uint64, log zerolog.Logger) (*Farmer, error) {
	pub, err := priv.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("farmer: public key: %w", err)
	}

	leaf := types.HashBytes(genesisPiece[:])
	leaves := make([]types.Hash, plotSize)
	for i := range leaves {
		leaves[i] = leaf
	}

	return &Farmer{
		log:          log.With().Str("component", "farmer").Logger(),
		store:        store,
		priv:         priv,
		pub:          pub,
		sloth:        sloth.NewDefault(),
		expandedIV:   sloth.ExpandIV(pub[:], types.PrimeSizeBytes),
		tree:         merkle.Build(leaves),
		genesisPiece: genesisPiece,
		blockReward:  blockReward,
	}, nil
}

// MerkleRoot returns the root committed over this farmer's plot, the
// value a ledger checks every proof's Merkle proof against.
func (f *Farmer) MerkleRoot() types.Hash {
	return f.tree.Root()
}

// PublicKey returns the farmer's own identity, the coinbase recipient of
// every block it mines.
func (f *Farmer) PublicKey() types.PublicKey {
	return f.pub
}

// Audit queries the plot for every entry whose tag falls within
// solutionRange of challenge's target (spec §4.4 step 1), and reads back
// each match's encoding to build a Solution.
func (f *Farmer) Audit(challenge types.Hash, solutionRange uint64) ([]Solution, error) {
	target := binary.BigEndian.Uint64(challenge[:8])

	matches, err := f.store.FindByRange(target, solutionRange)
	if err != nil {
		return nil, fmt.Errorf("farmer: find by range: %w", err)
	}

	solutions := make([]Solution, 0, len(matches))
	for _, m := range matches {
		encoding, err := f.store.Read(m.PieceIndex)
		if err != nil {
			f.log.Warn().Uint64("piece_index", m.PieceIndex).Err(err).Msg("matched tag but piece unreadable, skipping")
			continue
		}
		tagValue := tag.ToUint64(m.Tag)
		solutions = append(solutions, Solution{
			PieceIndex:      m.PieceIndex,
			Tag:             tagValue,
			Nonce:           plot.NonceForIndex(m.PieceIndex),
			Encoding:        encoding,
			MerkleProof:     f.tree.Proof(m.PieceIndex),
			LeadingZeroBits: leadingZeroBits(tagValue ^ target),
		})
	}
	return solutions, nil
}

// leadingZeroBits measures how tight a match was against its target: the
// original prototype's measure_quality, kept as a non-authoritative
// metric (spec.md never requires it for acceptance).
func leadingZeroBits(distance uint64) int {
	return bits.LeadingZeros64(distance)
}
