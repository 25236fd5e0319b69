package farmer

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/klingon-tech/plotchain/internal/plot"
	"github.com/klingon-tech/plotchain/pkg/identity"
	"github.com/klingon-tech/plotchain/pkg/sloth"
	"github.com/klingon-tech/plotchain/pkg/types"
)

func TestFarmer_AuditAndBuildBlock(t *testing.T) {
	store, err := plot.Open(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("plot.Open() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	priv, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate() error: %v", err)
	}
	pub, err := priv.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey() error: %v", err)
	}

	var genesisPiece [types.PieceSize]byte
	for i := range genesisPiece {
		genesisPiece[i] = byte(i * 7)
	}

	expandedIV := sloth.ExpandIV(pub[:], types.PrimeSizeBytes)
	encoding := genesisPiece
	s := sloth.NewDefault()
	if err := s.EncodePiece(encoding[:], expandedIV, types.SlothLayersProd); err != nil {
		t.Fatalf("EncodePiece() error: %v", err)
	}

	const plotSize = 4
	nonce := plot.NonceForIndex(0)
	if err := store.Write(0, nonce, encoding); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	f, err := New(store, priv, genesisPiece, plotSize, 1, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	var challenge types.Hash // target 0 always matches under a max solution range
	solutions, err := f.Audit(challenge, ^uint64(0))
	if err != nil {
		t.Fatalf("Audit() error: %v", err)
	}
	if len(solutions) != 1 {
		t.Fatalf("Audit() solutions = %d, want 1", len(solutions))
	}
	sol := solutions[0]
	if sol.PieceIndex != 0 {
		t.Errorf("PieceIndex = %d, want 0", sol.PieceIndex)
	}
	if sol.Nonce != nonce {
		t.Errorf("Nonce = %d, want %d", sol.Nonce, nonce)
	}

	block, err := f.BuildBlock(types.Hash{}, 0, 0, types.Hash{}, ^uint64(0), nil, sol, 12345)
	if err != nil {
		t.Fatalf("BuildBlock() error: %v", err)
	}

	proofID, err := block.Proof.ID()
	if err != nil {
		t.Fatalf("Proof.ID() error: %v", err)
	}
	if !identity.Verify(proofID, block.Content.ProofSignature, block.Proof.PublicKey) {
		t.Errorf("proof signature does not verify")
	}
	contentID, err := block.Content.ID()
	if err != nil {
		t.Fatalf("Content.ID() error: %v", err)
	}
	if !identity.Verify(contentID, block.Content.ContentSig, block.Proof.PublicKey) {
		t.Errorf("content signature does not verify")
	}
	if block.Content.TxIDs[0] == (types.Hash{}) {
		t.Errorf("first tx id should be the coinbase id, got zero hash")
	}
	if block.Data == nil || block.Data.Encoding != encoding {
		t.Errorf("block data does not carry the plotted encoding")
	}
}
