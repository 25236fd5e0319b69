package types

// Constants normative for cross-node compatibility (spec §6). All nodes on
// a network must agree on these values; they are also carried in Genesis
// for documentation but are compiled in since changing them changes the
// wire format of a Piece.
const (
	// PieceSize is the fixed payload size of a piece, in bytes.
	PieceSize = 4096

	// PrimeSizeBits is the bit length the Sloth prime is derived from.
	PrimeSizeBits = 256
	// PrimeSizeBytes is PrimeSizeBits in bytes — also the Sloth block size.
	PrimeSizeBytes = PrimeSizeBits / 8

	// BlocksPerPiece is the number of Sloth blocks in one piece.
	BlocksPerPiece = PieceSize / PrimeSizeBytes

	// PieceCount is the number of distinct piece indices in a replica.
	PieceCount = 256
	// ReplicationFactor is the number of distinct nonces encoded per piece index.
	ReplicationFactor = 256

	// TagSize is the length of a piece tag in bytes.
	TagSize = 8

	// SlothLayersProd is the production layer count for Sloth
	// encode/decode: one pass per block in the piece, the same value the
	// original prototype calls ENCODING_LAYERS_PROD.
	SlothLayersProd = BlocksPerPiece
)
