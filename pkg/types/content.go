package types

import (
	"crypto/sha256"

	"github.com/klingon-tech/plotchain/pkg/codec"
)

// Content links a block to its parent and carries the ordered list of
// transaction ids the block commits to. It is signed separately from the
// Proof: a farmer signs proof_id once it has committed to an attempt, then
// signs content_id once the transaction set is final.
//
// content_id = SHA-256(canonical_encode(contentUnsigned)) — the signature
// field itself is never part of the hashed image.
type Content struct {
	ParentContentID Hash      `cbor:"1,keyasint"`
	ProofID         Hash      `cbor:"2,keyasint"`
	ProofSignature  Signature `cbor:"3,keyasint"`
	TimestampMs     uint64    `cbor:"4,keyasint"`
	TxIDs           []Hash    `cbor:"5,keyasint"`
	ContentSig      Signature `cbor:"6,keyasint,omitempty"`
}

// contentUnsigned mirrors Content minus ContentSig, for content_id hashing.
type contentUnsigned struct {
	ParentContentID Hash      `cbor:"1,keyasint"`
	ProofID         Hash      `cbor:"2,keyasint"`
	ProofSignature  Signature `cbor:"3,keyasint"`
	TimestampMs     uint64    `cbor:"4,keyasint"`
	TxIDs           []Hash    `cbor:"5,keyasint"`
}

// unsigned returns the struct whose canonical encoding is hashed for
// content_id: everything except the content's own signature.
func (c Content) unsigned() contentUnsigned {
	return contentUnsigned{
		ParentContentID: c.ParentContentID,
		ProofID:         c.ProofID,
		ProofSignature:  c.ProofSignature,
		TimestampMs:     c.TimestampMs,
		TxIDs:           c.TxIDs,
	}
}

// ID computes content_id = SHA-256(canonical_encode(content_without_signature)).
func (c Content) ID() (Hash, error) {
	b, err := codec.Marshal(c.unsigned())
	if err != nil {
		return Hash{}, err
	}
	return Hash(sha256.Sum256(b)), nil
}

// Data holds the material stripped from a block once it is staged: the
// raw piece encoding and the Merkle proof that ties it to the genesis
// Merkle root. A staged (and so also a confirmed) MetaBlock never retains
// Data.
type Data struct {
	Encoding    [PieceSize]byte `cbor:"1,keyasint"`
	MerkleProof [][]byte        `cbor:"2,keyasint"`
}
