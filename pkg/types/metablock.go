package types

// MetaBlock is the ledger's persisted view of a staged block: the block
// itself (with Data stripped once staged), its three derived ids, the
// proof-ids of blocks that named it as parent, and its height above
// genesis. The metablocks registry is keyed by proof-id — see the
// invariant that a proof-id uniquely determines a block.
type MetaBlock struct {
	Block     Block  `cbor:"1,keyasint"`
	BlockID   Hash   `cbor:"2,keyasint"`
	ProofID   Hash   `cbor:"3,keyasint"`
	ContentID Hash   `cbor:"4,keyasint"`
	Children  []Hash `cbor:"5,keyasint"` // proof-ids of staged children
	Height    uint64 `cbor:"6,keyasint"`
}

// Head is a fork tip tracked by the ledger. heads[0] is always the
// longest-chain tip.
type Head struct {
	ContentID   Hash   `cbor:"1,keyasint"`
	BlockHeight uint64 `cbor:"2,keyasint"`
}
