package types

// Epoch accumulates the block-ids seen at each timeslot within it and, once
// closed, exposes the per-timeslot challenges derived from its folded
// randomness. Challenges become usable for validation only
// CHALLENGE_LOOKBACK_EPOCHS after the epoch that produced them closes.
type Epoch struct {
	Closed        bool              `cbor:"1,keyasint"`
	Timeslots     map[uint64][]Hash `cbor:"2,keyasint"` // timeslot_index % TIMESLOTS_PER_EPOCH -> block ids
	Challenges    []Hash            `cbor:"3,keyasint,omitempty"`
	Randomness    Hash              `cbor:"4,keyasint"`
	SolutionRange uint64            `cbor:"5,keyasint"`
}

// NewEpoch starts an open epoch seeded with randomness derived from its
// own index (spec §4.3: randomness = SHA-256(epoch_index_LE), folded with
// block-ids and re-hashed at close).
func NewEpoch(randomness Hash, solutionRange uint64) Epoch {
	return Epoch{
		Closed:        false,
		Timeslots:     make(map[uint64][]Hash),
		Randomness:    randomness,
		SolutionRange: solutionRange,
	}
}
