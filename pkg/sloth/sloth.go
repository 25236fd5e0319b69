// Package sloth implements the sequential Sloth permutation that plotting
// uses to encode pieces at a cost asymmetric to decoding: encoding one
// block costs a modular exponentiation, decoding it costs one squaring.
// That asymmetry is what makes storing a plot cheaper than regenerating
// it on demand, which is the basis of proof-of-capacity farming.
package sloth

import (
	"fmt"
	"math/big"

	"github.com/klingon-tech/plotchain/pkg/types"
)

var (
	big0 = big.NewInt(0)
	big1 = big.NewInt(1)
	big2 = big.NewInt(2)
	big4 = big.NewInt(4)
	big3 = big.NewInt(3)
)

// Sloth holds the fixed prime and exponent for one block size. Deriving
// these is deterministic, so every node independently arrives at the same
// prime for a given bit length; Sloth need only be initialized once per
// process and reused across pieces.
type Sloth struct {
	blockSizeBits  int
	blockSizeBytes int
	prime          *big.Int
	exponent       *big.Int
}

// New derives the largest prime p < 2^bits with p ≡ 3 (mod 4) and its
// exponent e = (p+1)/4, used by sqrtPermutation's Tonelli-Shanks shortcut
// for p ≡ 3 (mod 4).
func New(bits int) *Sloth {
	prime := new(big.Int).Sub(new(big.Int).Lsh(big1, uint(bits)), big1)
	prevPrime(prime)
	for new(big.Int).Mod(prime, big4).Cmp(big3) != 0 {
		prevPrime(prime)
	}

	exponent := new(big.Int).Add(prime, big1)
	exponent.Rsh(exponent, 2) // (prime+1)/4; exact since prime ≡ 3 mod 4

	return &Sloth{
		blockSizeBits:  bits,
		blockSizeBytes: bits / 8,
		prime:          prime,
		exponent:       exponent,
	}
}

// NewDefault derives the reference 256-bit configuration shared by every
// node on the network (types.PrimeSizeBits / types.PrimeSizeBytes).
func NewDefault() *Sloth {
	return New(types.PrimeSizeBits)
}

// prevPrime steps prime down to the next-smaller probable prime, mutating
// it in place. Mirrors the reference plotter's prime search: step by 2 off
// an odd starting point (or 1 from an even one) to stay on odd candidates.
func prevPrime(prime *big.Int) {
	if prime.Bit(0) == 0 {
		prime.Sub(prime, big1)
	} else {
		prime.Sub(prime, big2)
	}
	for !prime.ProbablyPrime(25) {
		prime.Sub(prime, big2)
	}
}

// BlockSizeBytes returns the number of bytes per Sloth block (P).
func (s *Sloth) BlockSizeBytes() int {
	return s.blockSizeBytes
}

// sqrtPermutation computes a modular square root permutation of data in
// place, using the Jacobi symbol to pick the correct branch and a parity
// fix so the map is reversible by a single squaring (inverseSqrt).
func (s *Sloth) sqrtPermutation(data *big.Int) error {
	if data.Cmp(s.prime) >= 0 {
		return fmt.Errorf("sloth: block value %s is not smaller than the prime", data.String())
	}

	if big.Jacobi(data, s.prime) == 1 {
		data.Exp(data, s.exponent, s.prime)
		if data.Bit(0) == 1 {
			data.Sub(s.prime, data)
		}
	} else {
		data.Sub(s.prime, data)
		data.Exp(data, s.exponent, s.prime)
		if data.Bit(0) == 0 {
			data.Sub(s.prime, data)
		}
	}
	return nil
}

// inverseSqrt reverses sqrtPermutation with a single modular squaring and
// a parity-based sign correction, restoring whichever branch encoding took.
func (s *Sloth) inverseSqrt(data *big.Int) {
	wasOdd := data.Bit(0) == 1
	data.Mul(data, data)
	data.Mod(data, s.prime)
	if wasOdd {
		data.Sub(s.prime, data)
	}
}

// toBlocks splits piece into B little-endian integers of blockSizeBytes
// each.
func (s *Sloth) toBlocks(piece []byte) []*big.Int {
	count := len(piece) / s.blockSizeBytes
	blocks := make([]*big.Int, count)
	for i := 0; i < count; i++ {
		blocks[i] = leBytesToInt(piece[i*s.blockSizeBytes : (i+1)*s.blockSizeBytes])
	}
	return blocks
}

// writeBlocks serializes blocks back into piece as little-endian,
// zero-padded to blockSizeBytes each.
func (s *Sloth) writeBlocks(blocks []*big.Int, piece []byte) {
	for i, b := range blocks {
		intToLEBytes(b, piece[i*s.blockSizeBytes:(i+1)*s.blockSizeBytes])
	}
}

// leBytesToInt interprets b as a little-endian unsigned integer.
func leBytesToInt(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i, v := range b {
		be[len(b)-1-i] = v
	}
	return new(big.Int).SetBytes(be)
}

// intToLEBytes writes x into dst as little-endian, zero-padding any bytes
// beyond x's length.
func intToLEBytes(x *big.Int, dst []byte) {
	be := x.Bytes()
	for i := range dst {
		dst[i] = 0
	}
	for i, v := range be {
		dst[len(be)-1-i] = v
	}
}

// EncodePiece sequentially encodes piece in place. expandedIV seeds the
// feedback for the very first block of the very first layer; every block
// after that is fed back the previous block's post-permutation value, so
// the chain runs continuously across layer boundaries, not per layer.
func (s *Sloth) EncodePiece(piece []byte, expandedIV []byte, layers int) error {
	if len(piece)%s.blockSizeBytes != 0 {
		return fmt.Errorf("sloth: piece length %d is not a multiple of block size %d", len(piece), s.blockSizeBytes)
	}
	blocks := s.toBlocks(piece)
	feedback := leBytesToInt(expandedIV)

	for layer := 0; layer < layers; layer++ {
		for _, block := range blocks {
			block.Xor(block, feedback)
			if err := s.sqrtPermutation(block); err != nil {
				return err
			}
			feedback = new(big.Int).Set(block)
		}
	}

	s.writeBlocks(blocks, piece)
	return nil
}

// DecodePiece reverses EncodePiece. Each layer sweep visits blocks from
// last to first, inverting the squaring and peeling the XOR against the
// block one position back — which, walked in this order, still holds its
// encoded-time value. The very first block of the piece is only cleared
// of expandedIV after every layer has been undone.
func (s *Sloth) DecodePiece(piece []byte, expandedIV []byte, layers int) error {
	if len(piece)%s.blockSizeBytes != 0 {
		return fmt.Errorf("sloth: piece length %d is not a multiple of block size %d", len(piece), s.blockSizeBytes)
	}
	blocks := s.toBlocks(piece)
	n := len(blocks)

	for layer := 0; layer < layers; layer++ {
		for i := n - 1; i >= 0; i-- {
			if i == 0 {
				s.inverseSqrt(blocks[0])
				if layer != layers-1 {
					blocks[0].Xor(blocks[0], blocks[n-1])
				}
			} else {
				s.inverseSqrt(blocks[i])
				blocks[i].Xor(blocks[i], blocks[i-1])
			}
		}
	}

	iv := leBytesToInt(expandedIV)
	blocks[0].Xor(blocks[0], iv)

	s.writeBlocks(blocks, piece)
	return nil
}
