package ledger

import "errors"

// Error kinds from the validation and staging contract. Transient kinds
// (UnknownParent, TooEarly, TooLate, DuplicateProof, ProofFault,
// StorageNotFound) are recovered locally by the caller — caching,
// retrying, or re-requesting. ErrConsistencyViolation marks a programmer
// error: a structural invariant broken by the caller, not by network
// input, and is not expected to be recovered from.
var (
	ErrInvalidBlock          = errors.New("ledger: invalid block")
	ErrUnknownParent         = errors.New("ledger: parent not present, cached as orphan")
	ErrTooEarly              = errors.New("ledger: block timeslot too far ahead, cached")
	ErrTooLate               = errors.New("ledger: block timeslot too far behind, rejected")
	ErrDuplicateProof        = errors.New("ledger: proof-id already observed recently")
	ErrProofFault            = errors.New("ledger: two different contents bound to one proof-id")
	ErrStorageNotFound       = errors.New("ledger: storage lookup not found")
	ErrSyncing               = errors.New("ledger: not yet tracking current timeslot, cached")
	ErrLookbackEpochNotClosed = errors.New("ledger: lookback epoch is not closed yet")
	ErrConsistencyViolation  = errors.New("ledger: consistency violation")
)
