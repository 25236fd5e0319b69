package ledger

import (
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/klingon-tech/plotchain/internal/epoch"
	"github.com/klingon-tech/plotchain/internal/metablocks"
	"github.com/klingon-tech/plotchain/internal/storage"
	"github.com/klingon-tech/plotchain/pkg/identity"
	"github.com/klingon-tech/plotchain/pkg/merkle"
	"github.com/klingon-tech/plotchain/pkg/sloth"
	"github.com/klingon-tech/plotchain/pkg/tag"
	"github.com/klingon-tech/plotchain/pkg/types"
)

// testFixture wires a ledger against a trivial one-piece plot: a single
// genesis piece at index 0, with a one-leaf Merkle tree over it.
type testFixture struct {
	ledger       *Ledger
	epochs       *epoch.Tracker
	genesisPiece [types.PieceSize]byte
	merkleRoot   types.Hash
}

func newTestFixture(t *testing.T, params Params) *testFixture {
	t.Helper()

	var genesisPiece [types.PieceSize]byte
	for i := range genesisPiece {
		genesisPiece[i] = byte(i)
	}
	leaf := hashPiece(genesisPiece)
	tree := merkle.Build([]types.Hash{leaf})
	root := tree.Root()

	mb := metablocks.New(storage.NewMemory())
	epochs := epoch.New(params.TimeslotsPerEpoch, params.ChallengeLookbackEpochs, params.SolutionRange, zerolog.Nop())
	balances := storage.NewMemory()

	l, err := New(params, mb, epochs, balances, root, genesisPiece, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return &testFixture{ledger: l, epochs: epochs, genesisPiece: genesisPiece, merkleRoot: root}
}

// buildBlock produces a fully valid block at timeslot, parented at
// parentContentID (zero for genesis), whose lookback epoch is epochIndex.
func (f *testFixture) buildBlock(t *testing.T, priv *identity.PrivateKey, parentContentID types.Hash, epochIndex, timeslot uint64, extraTxIDs []types.Hash, nonce uint64) types.Block {
	t.Helper()

	pub, err := priv.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey() error: %v", err)
	}

	encoding := f.genesisPiece
	expandedIV := sloth.ExpandIV(pub[:], types.PrimeSizeBytes)
	s := sloth.NewDefault()
	if err := s.EncodePiece(encoding[:], expandedIV, types.SlothLayersProd); err != nil {
		t.Fatalf("EncodePiece() error: %v", err)
	}

	computedTag := tag.Compute(encoding[:], nonce)

	proof := types.Proof{
		EpochIndex:    epochIndex,
		Timeslot:      timeslot,
		PublicKey:     pub,
		Tag:           tag.ToUint64(computedTag),
		Nonce:         nonce,
		PieceIndex:    0,
		SolutionRange: math.MaxUint64,
	}
	proofID, err := proof.ID()
	if err != nil {
		t.Fatalf("Proof.ID() error: %v", err)
	}
	proofSig, err := priv.Sign(proofID)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	coinbase := types.NewCoinbase(pub, f.ledger.params.BlockReward, proofID)
	coinbaseID, err := coinbase.ID()
	if err != nil {
		t.Fatalf("coinbase.ID() error: %v", err)
	}

	content := types.Content{
		ParentContentID: parentContentID,
		ProofID:         proofID,
		ProofSignature:  proofSig,
		TxIDs:           append([]types.Hash{coinbaseID}, extraTxIDs...),
	}
	contentID, err := content.ID()
	if err != nil {
		t.Fatalf("content.ID() error: %v", err)
	}
	contentSig, err := priv.Sign(contentID)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	content.ContentSig = contentSig

	tree := merkle.Build([]types.Hash{hashPiece(f.genesisPiece)})
	data := types.Data{
		Encoding:    encoding,
		MerkleProof: tree.Proof(0),
	}

	return types.Block{
		Proof:      proof,
		CoinbaseTx: coinbase,
		Content:    content,
		Data:       &data,
	}
}

func testParams() Params {
	return Params{
		TimeslotsPerEpoch:       4,
		ChallengeLookbackEpochs: 1,
		ConfirmationDepth:       2,
		MaxEarlyTimeslots:       3,
		MaxLateTimeslots:        10,
		SolutionRange:           math.MaxUint64,
		BlockReward:             1,
	}
}

func TestLedger_StageGenesis(t *testing.T) {
	params := testParams()
	f := newTestFixture(t, params)
	f.ledger.SetTimerRunning(true)

	f.epochs.AdvanceEpoch() // epoch 0
	f.epochs.AdvanceEpoch() // epoch 1, closes epoch 0

	priv, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	block := f.buildBlock(t, priv, types.Hash{}, 1, 0, nil, 1)
	if err := f.ledger.StageGenesis(block); err != nil {
		t.Fatalf("StageGenesis() error: %v", err)
	}

	heads := f.ledger.Heads()
	if len(heads) != 1 || heads[0].BlockHeight != 0 {
		t.Fatalf("Heads() = %+v, want one head at height 0", heads)
	}
}

func TestLedger_DuplicateProof(t *testing.T) {
	params := testParams()
	f := newTestFixture(t, params)
	f.ledger.SetTimerRunning(true)
	f.epochs.AdvanceEpoch()
	f.epochs.AdvanceEpoch()

	priv, _ := identity.Generate()
	block := f.buildBlock(t, priv, types.Hash{}, 1, 0, nil, 1)
	if err := f.ledger.StageGenesis(block); err != nil {
		t.Fatalf("StageGenesis() error: %v", err)
	}

	if err := f.ledger.SubmitBlock(block); err != ErrDuplicateProof {
		t.Errorf("SubmitBlock() duplicate = %v, want ErrDuplicateProof", err)
	}
}

func TestLedger_UnknownParentCaches(t *testing.T) {
	params := testParams()
	f := newTestFixture(t, params)
	f.ledger.SetTimerRunning(true)
	f.epochs.AdvanceEpoch()
	f.epochs.AdvanceEpoch()

	priv, _ := identity.Generate()
	var unknownParent types.Hash
	unknownParent[0] = 0xEE

	f.ledger.AdvanceTimeslot(1)
	child := f.buildBlock(t, priv, unknownParent, 1, 1, nil, 2)
	if err := f.ledger.SubmitBlock(child); err != ErrUnknownParent {
		t.Fatalf("SubmitBlock() orphan = %v, want ErrUnknownParent", err)
	}

	f.ledger.mu.Lock()
	cached := f.ledger.cachedBlocksByParentContentID[unknownParent]
	f.ledger.mu.Unlock()
	if len(cached) != 1 {
		t.Fatalf("cached blocks for unknown parent = %d, want 1", len(cached))
	}
}

func TestLedger_EarlyThenArrived(t *testing.T) {
	params := testParams()
	f := newTestFixture(t, params)
	f.ledger.SetTimerRunning(true)
	f.epochs.AdvanceEpoch()
	f.epochs.AdvanceEpoch()

	priv, _ := identity.Generate()
	genesis := f.buildBlock(t, priv, types.Hash{}, 1, 0, nil, 1)
	if err := f.ledger.StageGenesis(genesis); err != nil {
		t.Fatalf("StageGenesis() error: %v", err)
	}
	genesisContentID, _ := genesis.Content.ID()

	early := f.buildBlock(t, priv, genesisContentID, 1, 3, nil, 2)
	if err := f.ledger.SubmitBlock(early); err != ErrTooEarly {
		t.Fatalf("SubmitBlock() early = %v, want ErrTooEarly", err)
	}

	f.ledger.AdvanceTimeslot(3)

	earlyContentID, _ := early.Content.ID()
	if _, err := f.ledger.metablocks.GetByContentID(earlyContentID); err != nil {
		t.Errorf("early block was not staged after AdvanceTimeslot: %v", err)
	}
}

func TestLedger_CoinbaseCreditsBalanceAtConfirmation(t *testing.T) {
	params := testParams()
	params.ConfirmationDepth = 1
	f := newTestFixture(t, params)
	f.ledger.SetTimerRunning(true)
	f.epochs.AdvanceEpoch()
	f.epochs.AdvanceEpoch()

	priv, _ := identity.Generate()
	pub, _ := priv.PublicKey()

	genesis := f.buildBlock(t, priv, types.Hash{}, 1, 0, nil, 1)
	if err := f.ledger.StageGenesis(genesis); err != nil {
		t.Fatalf("StageGenesis() error: %v", err)
	}
	genesisContentID, _ := genesis.Content.ID()

	f.ledger.AdvanceTimeslot(1)
	child := f.buildBlock(t, priv, genesisContentID, 1, 1, nil, 2)
	if err := f.ledger.SubmitBlock(child); err != nil {
		t.Fatalf("SubmitBlock() child error: %v", err)
	}

	acct, err := f.ledger.getAccount(pub)
	if err != nil {
		t.Fatalf("getAccount() error: %v", err)
	}
	if acct.Balance != params.BlockReward {
		t.Errorf("balance after confirmation = %d, want %d", acct.Balance, params.BlockReward)
	}
}
