// Package merkle builds and verifies the Merkle tree over a plot's piece
// encodings. The plotter commits to every piece index up front; a farmer's
// solution then carries a proof tying its decoded piece back to that root,
// which the ledger checks during validation (spec §4.5.2 stage 7).
package merkle

import (
	"crypto/sha256"

	"github.com/klingon-tech/plotchain/pkg/types"
)

// HashConcat hashes two nodes together to produce their parent.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [2 * types.HashSize]byte
	copy(buf[:types.HashSize], a[:])
	copy(buf[types.HashSize:], b[:])
	return types.Hash(sha256.Sum256(buf[:]))
}

// Tree holds every level of a Merkle tree, leaves first, so a proof for
// any leaf index can be produced without rebuilding.
type Tree struct {
	levels [][]types.Hash
}

// Build constructs the full tree over leaves. An odd level duplicates its
// last element before pairing, matching the teacher's convention.
func Build(leaves []types.Hash) *Tree {
	if len(leaves) == 0 {
		return &Tree{levels: [][]types.Hash{{{}}}}
	}

	level := make([]types.Hash, len(leaves))
	copy(level, leaves)
	levels := [][]types.Hash{level}

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
			levels[len(levels)-1] = level
		}
		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = HashConcat(level[i], level[i+1])
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels}
}

// Root returns the tree's root hash.
func (t *Tree) Root() types.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Proof returns the sibling hash at each level needed to recompute the
// root from the leaf at index, as raw bytes (matching types.Data's
// MerkleProof field).
func (t *Tree) Proof(index uint64) [][]byte {
	var proof [][]byte
	idx := index
	for level := 0; level < len(t.levels)-1; level++ {
		nodes := t.levels[level]
		siblingIdx := idx ^ 1
		if int(siblingIdx) >= len(nodes) {
			siblingIdx = idx // odd-length level duplicated its last node
		}
		sibling := nodes[siblingIdx]
		proof = append(proof, sibling.Bytes())
		idx /= 2
	}
	return proof
}

// Verify recomputes the root from leaf, index and proof and reports
// whether it equals root.
func Verify(leaf types.Hash, index uint64, proof [][]byte, root types.Hash) bool {
	current := leaf
	idx := index
	for _, siblingBytes := range proof {
		if len(siblingBytes) != types.HashSize {
			return false
		}
		var sibling types.Hash
		copy(sibling[:], siblingBytes)

		if idx%2 == 0 {
			current = HashConcat(current, sibling)
		} else {
			current = HashConcat(sibling, current)
		}
		idx /= 2
	}
	return current == root
}
