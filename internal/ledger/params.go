package ledger

// Params are the network-agreed tunables spec.md §6 calls "implementation
// parameters" — not compiled-in wire constants like PieceSize, but values
// every node on one network must still agree on (normally carried in
// genesis configuration).
type Params struct {
	TimeslotsPerEpoch       uint64
	ChallengeLookbackEpochs uint64
	ConfirmationDepth       uint64
	MaxEarlyTimeslots       uint64
	MaxLateTimeslots        uint64
	SolutionRange           uint64
	BlockReward             uint64
}
