package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/klingon-tech/plotchain/internal/ledger"
	"github.com/klingon-tech/plotchain/pkg/merkle"
	"github.com/klingon-tech/plotchain/pkg/types"
)

// Denomination constants. 1 coin = 10^9 base units.
const (
	Decimals  = 9
	Coin      = 1_000_000_000 // 10^9 base units per coin
	MilliCoin = 1_000_000     // 10^6
)

// totalPlotLeaves is the number of piece slots every farmer's Merkle tree
// commits to: piece count times replication factor (spec §3, §4.4). The
// genesis Merkle root is computed over this many identical leaves, since
// every plotted entry decodes back to the same genesis piece until a
// farmer solves and the ledger accepts a block replacing part of that
// assumption is out of scope — see spec.md §4.5.2 stage 7.
const totalPlotLeaves = types.PieceCount * types.ReplicationFactor

// Genesis holds the genesis block configuration and protocol rules. This
// is immutable after chain launch: every node on a network must agree on
// every field here or consensus breaks.
type Genesis struct {
	// Chain identity
	ChainID   string `json:"chain_id"`
	ChainName string `json:"chain_name"`
	Symbol    string `json:"symbol,omitempty"` // Native coin symbol (e.g., "PLOT")

	// Genesis block
	TimestampMs uint64 `json:"timestamp_ms"`
	ExtraData   string `json:"extra_data,omitempty"`

	// GenesisPiece is the fixed piece content every farmer's plot encodes
	// before any real data exists (spec §4.5.2 stage 7's "every piece
	// decodes to genesis_piece" validation check). Hex-encoded in JSON.
	GenesisPiece [types.PieceSize]byte `json:"-"`

	// Initial allocations: hex-encoded public key -> balance in base units.
	Alloc map[string]uint64 `json:"alloc"`

	// Protocol rules
	Protocol ProtocolRules `json:"protocol"`
}

// genesisJSON is Genesis's on-disk shape: GenesisPiece needs an explicit
// hex encoding since a [4096]byte array has no natural JSON form.
type genesisJSON struct {
	ChainID      string            `json:"chain_id"`
	ChainName    string            `json:"chain_name"`
	Symbol       string            `json:"symbol,omitempty"`
	TimestampMs  uint64            `json:"timestamp_ms"`
	ExtraData    string            `json:"extra_data,omitempty"`
	GenesisPiece string            `json:"genesis_piece"`
	Alloc        map[string]uint64 `json:"alloc"`
	Protocol     ProtocolRules     `json:"protocol"`
}

// MarshalJSON encodes GenesisPiece as a hex string alongside every other field.
func (g Genesis) MarshalJSON() ([]byte, error) {
	return json.Marshal(genesisJSON{
		ChainID:      g.ChainID,
		ChainName:    g.ChainName,
		Symbol:       g.Symbol,
		TimestampMs:  g.TimestampMs,
		ExtraData:    g.ExtraData,
		GenesisPiece: hex.EncodeToString(g.GenesisPiece[:]),
		Alloc:        g.Alloc,
		Protocol:     g.Protocol,
	})
}

// UnmarshalJSON decodes the hex-encoded GenesisPiece back into its array form.
func (g *Genesis) UnmarshalJSON(data []byte) error {
	var gj genesisJSON
	if err := json.Unmarshal(data, &gj); err != nil {
		return err
	}
	raw, err := hex.DecodeString(gj.GenesisPiece)
	if err != nil {
		return fmt.Errorf("genesis_piece: %w", err)
	}
	if len(raw) != types.PieceSize {
		return fmt.Errorf("genesis_piece must be %d bytes, got %d", types.PieceSize, len(raw))
	}
	g.ChainID = gj.ChainID
	g.ChainName = gj.ChainName
	g.Symbol = gj.Symbol
	g.TimestampMs = gj.TimestampMs
	g.ExtraData = gj.ExtraData
	copy(g.GenesisPiece[:], raw)
	g.Alloc = gj.Alloc
	g.Protocol = gj.Protocol
	return nil
}

// ProtocolRules are the network-agreed tunables spec.md §6 calls
// "implementation parameters" — values every node on a network must
// agree on, normally carried here in genesis. TimeslotsPerEpoch,
// ChallengeLookbackEpochs, ConfirmationDepth, MaxEarlyTimeslots,
// MaxLateTimeslots, InitialSolutionRange, and BlockReward map directly
// onto internal/ledger.Params's fields of the same meaning.
type ProtocolRules struct {
	TimeslotDurationMs      uint64 `json:"timeslot_duration_ms"`
	TimeslotsPerEpoch       uint64 `json:"timeslots_per_epoch"`
	ChallengeLookbackEpochs uint64 `json:"challenge_lookback_epochs"`
	ConfirmationDepth       uint64 `json:"confirmation_depth"`
	MaxEarlyTimeslots       uint64 `json:"max_early_timeslots"`
	MaxLateTimeslots        uint64 `json:"max_late_timeslots"`
	InitialSolutionRange    uint64 `json:"initial_solution_range"`
	BlockReward             uint64 `json:"block_reward"`
}

// LedgerParams projects the protocol rules onto internal/ledger.Params.
func (r ProtocolRules) LedgerParams() ledger.Params {
	return ledger.Params{
		TimeslotsPerEpoch:       r.TimeslotsPerEpoch,
		ChallengeLookbackEpochs: r.ChallengeLookbackEpochs,
		ConfirmationDepth:       r.ConfirmationDepth,
		MaxEarlyTimeslots:       r.MaxEarlyTimeslots,
		MaxLateTimeslots:        r.MaxLateTimeslots,
		SolutionRange:           r.InitialSolutionRange,
		BlockReward:             r.BlockReward,
	}
}

// =============================================================================
// Pre-defined genesis configurations
// =============================================================================

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		ChainID:     "plotchain-mainnet-1",
		ChainName:   "Plotchain Mainnet",
		Symbol:      "PLOT",
		TimestampMs: 1770734103000, // 2026-02-10
		ExtraData:   "Plotchain Genesis",
		Alloc:       map[string]uint64{},
		Protocol: ProtocolRules{
			TimeslotDurationMs:      4_000,
			TimeslotsPerEpoch:       2016,
			ChallengeLookbackEpochs: 1,
			ConfirmationDepth:       6,
			MaxEarlyTimeslots:       1,
			MaxLateTimeslots:        20,
			InitialSolutionRange:    1 << 48,
			BlockReward:             100 * MilliCoin,
		},
	}
}

// TestnetGenesis returns the testnet genesis configuration: the same
// protocol shape as mainnet but relaxed for fast local iteration.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.ChainID = "plotchain-testnet-1"
	g.ChainName = "Plotchain Testnet"
	g.ExtraData = "Plotchain Testnet Genesis"

	g.Protocol.TimeslotDurationMs = 1_000
	g.Protocol.TimeslotsPerEpoch = 64
	g.Protocol.ConfirmationDepth = 2
	g.Protocol.MaxLateTimeslots = 5
	g.Protocol.InitialSolutionRange = 1 << 56 // wide range: easy solves for testing

	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	if g.Protocol.TimeslotDurationMs == 0 {
		return fmt.Errorf("timeslot_duration_ms must be positive")
	}
	if g.Protocol.TimeslotsPerEpoch == 0 {
		return fmt.Errorf("timeslots_per_epoch must be positive")
	}
	if g.Protocol.ChallengeLookbackEpochs == 0 {
		return fmt.Errorf("challenge_lookback_epochs must be positive")
	}
	if g.Protocol.InitialSolutionRange == 0 {
		return fmt.Errorf("initial_solution_range must be positive")
	}
	if g.Protocol.BlockReward == 0 {
		return fmt.Errorf("block_reward must be positive")
	}
	if g.Protocol.MaxLateTimeslots == 0 {
		return fmt.Errorf("max_late_timeslots must be positive")
	}

	for keyHex := range g.Alloc {
		raw, err := hex.DecodeString(keyHex)
		if err != nil || len(raw) != types.PublicKeySize {
			return fmt.Errorf("invalid alloc public key %q", keyHex)
		}
	}

	return nil
}

// Hash returns a SHA-256 hash of the genesis configuration's JSON
// encoding, used to identify the chain and detect genesis mismatches
// during the P2P handshake.
func (g *Genesis) Hash() (types.Hash, error) {
	b, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return types.Hash(sha256.Sum256(b)), nil
}

// MerkleRoot computes the Merkle root committed to by every farmer's
// plot before any piece has been solved: totalPlotLeaves copies of
// GenesisPiece's hash, the same tree shape internal/farmer.Farmer builds
// for its own plot.
func (g *Genesis) MerkleRoot() types.Hash {
	leaf := types.HashBytes(g.GenesisPiece[:])
	leaves := make([]types.Hash, totalPlotLeaves)
	for i := range leaves {
		leaves[i] = leaf
	}
	return merkle.Build(leaves).Root()
}

