// Package epoch tracks epochs and the per-timeslot challenges derived
// from them once closed. A fixed CHALLENGE_LOOKBACK_EPOCHS delay between
// an epoch starting and its randomness becoming usable for validation (it
// is closed, and its challenges derived, when the epoch using it begins) is
// what keeps a farmer from grinding its own blocks to bias the next
// challenge: by the time randomness is visible, every block that could
// influence it is already irreversibly committed.
package epoch

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/klingon-tech/plotchain/pkg/types"
)

// Tracker owns every epoch seen so far, serialized behind a single lock —
// spec §5 requires advancing and closing an epoch to be atomic with
// adding blocks to it.
type Tracker struct {
	mu sync.Mutex
	log zerolog.Logger

	timeslotsPerEpoch     uint64
	challengeLookbackEpochs uint64

	epochs            map[uint64]*types.Epoch
	currentEpochIndex uint64
	solutionRange     uint64
	started           bool
}

// New creates a tracker for a network whose epoch length is
// timeslotsPerEpoch and whose lookback is challengeLookbackEpochs, seeded
// with the genesis solution range.
func New(timeslotsPerEpoch, challengeLookbackEpochs, initialSolutionRange uint64, log zerolog.Logger) *Tracker {
	return &Tracker{
		log:                     log.With().Str("component", "epoch").Logger(),
		timeslotsPerEpoch:       timeslotsPerEpoch,
		challengeLookbackEpochs: challengeLookbackEpochs,
		epochs:                  make(map[uint64]*types.Epoch),
		solutionRange:           initialSolutionRange,
	}
}

// AdvanceEpoch creates the next epoch (or the first, if none exist yet)
// and closes the epoch CHALLENGE_LOOKBACK_EPOCHS behind it, if any. It
// returns the newly created epoch's index.
func (t *Tracker) AdvanceEpoch() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var nextIndex uint64
	if t.started {
		nextIndex = t.currentEpochIndex + 1
	}
	t.currentEpochIndex = nextIndex
	t.started = true

	randomness := epochSeedRandomness(nextIndex)
	newEpoch := types.NewEpoch(randomness, t.solutionRange)
	t.epochs[nextIndex] = &newEpoch

	if nextIndex >= t.challengeLookbackEpochs {
		lookbackIndex := nextIndex - t.challengeLookbackEpochs
		if e, ok := t.epochs[lookbackIndex]; ok && !e.Closed {
			t.closeLocked(e)
			t.log.Debug().Uint64("epoch", lookbackIndex).Msg("closed epoch randomness")
		}
	}

	return nextIndex
}

// epochSeedRandomness derives an epoch's initial randomness from its own
// index, before any block-ids are folded in at close (spec §4.3).
func epochSeedRandomness(index uint64) types.Hash {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], index)
	return types.Hash(sha256.Sum256(b[:]))
}

// AddBlockToEpoch records blockID at timeslot % TIMESLOTS_PER_EPOCH in
// the named epoch. A no-op with a logged warning if the epoch is already
// closed — challenges must never mutate after close.
func (t *Tracker) AddBlockToEpoch(epochIndex, timeslot uint64, blockID types.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.epochs[epochIndex]
	if !ok {
		t.log.Warn().Uint64("epoch", epochIndex).Msg("add block to unknown epoch, ignoring")
		return
	}
	if e.Closed {
		t.log.Warn().Uint64("epoch", epochIndex).Msg("add block to closed epoch, ignoring")
		return
	}

	slot := timeslot % t.timeslotsPerEpoch
	e.Timeslots[slot] = append(e.Timeslots[slot], blockID)
}

// GetEpoch returns the epoch at index, if known.
func (t *Tracker) GetEpoch(index uint64) (types.Epoch, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.epochs[index]
	if !ok {
		return types.Epoch{}, false
	}
	return *e, true
}

// GetLookbackEpoch returns the epoch whose randomness is authoritative
// for validating blocks in epoch index — CHALLENGE_LOOKBACK_EPOCHS
// behind it.
func (t *Tracker) GetLookbackEpoch(index uint64) (types.Epoch, bool) {
	if index < t.challengeLookbackEpochs {
		return types.Epoch{}, false
	}
	return t.GetEpoch(index - t.challengeLookbackEpochs)
}

// closeLocked folds every block-id recorded in e by XOR into its seed
// randomness, hashes the result, derives one challenge per timeslot, and
// marks e closed. Caller must hold t.mu.
func (t *Tracker) closeLocked(e *types.Epoch) {
	folded := e.Randomness
	for slot := uint64(0); slot < t.timeslotsPerEpoch; slot++ {
		for _, blockID := range e.Timeslots[slot] {
			for i := range folded {
				folded[i] ^= blockID[i]
			}
		}
	}
	e.Randomness = types.Hash(sha256.Sum256(folded[:]))

	e.Challenges = make([]types.Hash, t.timeslotsPerEpoch)
	for slot := uint64(0); slot < t.timeslotsPerEpoch; slot++ {
		var slotBytes [8]byte
		binary.LittleEndian.PutUint64(slotBytes[:], slot)

		var seed [types.HashSize + 8]byte
		copy(seed[:types.HashSize], e.Randomness[:])
		copy(seed[types.HashSize:], slotBytes[:])
		e.Challenges[slot] = types.Hash(sha256.Sum256(seed[:]))
	}

	e.Closed = true
}

// ChallengeForTimeslot returns the challenge for timeslot within a closed
// epoch.
func ChallengeForTimeslot(e types.Epoch, timeslot, timeslotsPerEpoch uint64) (types.Hash, error) {
	if !e.Closed {
		return types.Hash{}, fmt.Errorf("epoch: epoch is not closed, has no challenges yet")
	}
	slot := timeslot % timeslotsPerEpoch
	if int(slot) >= len(e.Challenges) {
		return types.Hash{}, fmt.Errorf("epoch: timeslot %d out of range for %d challenges", timeslot, len(e.Challenges))
	}
	return e.Challenges[slot], nil
}

// CurrentEpochIndex returns the index of the most recently advanced-to
// epoch.
func (t *Tracker) CurrentEpochIndex() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentEpochIndex
}
