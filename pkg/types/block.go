package types

import "crypto/sha256"

// Block is the unit gossiped between nodes and staged into the ledger:
// a proof of capacity, its coinbase reward, the content it commits to, and
// (until staging strips it) the raw encoding and Merkle proof backing
// the proof.
//
// block_id = SHA-256(proof_id ‖ content_id). It is never hashed directly —
// callers compute proof_id and content_id first and combine them.
type Block struct {
	Proof      Proof       `cbor:"1,keyasint"`
	CoinbaseTx Transaction `cbor:"2,keyasint"`
	Content    Content     `cbor:"3,keyasint"`
	Data       *Data       `cbor:"4,keyasint,omitempty"`
}

// ID computes block_id = SHA-256(proof_id ‖ content_id).
func (b Block) ID() (Hash, error) {
	proofID, err := b.Proof.ID()
	if err != nil {
		return Hash{}, err
	}
	contentID, err := b.Content.ID()
	if err != nil {
		return Hash{}, err
	}
	var buf [2 * HashSize]byte
	copy(buf[:HashSize], proofID[:])
	copy(buf[HashSize:], contentID[:])
	return Hash(sha256.Sum256(buf[:])), nil
}
