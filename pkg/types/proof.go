package types

import (
	"crypto/sha256"

	"github.com/klingon-tech/plotchain/pkg/codec"
)

// Proof identifies one block attempt: a farmer's claim that it holds a
// piece whose tag falls inside the timeslot's solution range.
//
// proof_id = SHA-256(canonical_encode(Proof)) — spec §3.
type Proof struct {
	Randomness    Hash      `cbor:"1,keyasint"` // epoch randomness active for this timeslot
	EpochIndex    uint64    `cbor:"2,keyasint"`
	Timeslot      uint64    `cbor:"3,keyasint"`
	PublicKey     PublicKey `cbor:"4,keyasint"` // farmer identity / reward recipient
	Tag           uint64    `cbor:"5,keyasint"` // big-endian tag value, as an integer
	Nonce         uint64    `cbor:"6,keyasint"`
	PieceIndex    uint64    `cbor:"7,keyasint"`
	SolutionRange uint64    `cbor:"8,keyasint"`
}

// ID computes proof_id = SHA-256(canonical_encode(proof)).
func (p Proof) ID() (Hash, error) {
	b, err := codec.Marshal(p)
	if err != nil {
		return Hash{}, err
	}
	return Hash(sha256.Sum256(b)), nil
}
