// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules (Genesis): immutable, must match across every node on
//     a network.
//   - Node settings (Config): runtime configuration, can vary per node.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Role selects what a node does with its plot and its network connection.
// A single process may combine roles (e.g. a farmer is also a peer).
type Role string

const (
	RoleGateway Role = "gateway" // RPC-facing node; does not farm
	RolePeer    Role = "peer"    // relays and validates, does not farm
	RoleFarmer  Role = "farmer"  // plots, audits challenges, produces blocks
)

// MaxBlockSize bounds the libp2p pubsub message size for a gossiped block:
// proof, coinbase, content, and (pre-confirmation) the piece encoding and
// Merkle proof backing it. Consensus-relevant only insofar as a block
// that cannot be gossiped cannot reach other nodes; it is not a wire
// validation rule.
const MaxBlockSize = 2_000_000

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration. These settings can
// vary between nodes without breaking consensus.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`
	Role    Role        `conf:"role"`

	// P2P networking
	P2P P2PConfig

	// RPC server
	RPC RPCConfig

	// Wallet
	Wallet WalletConfig

	// Farming (operational — whether and how this node plots/solves)
	Farming FarmingConfig

	// Prometheus metrics feed
	Metrics MetricsConfig

	// Console/TUI websocket feed
	ConsoleFeed ConsoleFeedConfig

	// Logging
	Log LogConfig

	// Maintenance (not persisted in config file)
	RebuildIndexes bool
}

// P2PConfig holds peer-to-peer network settings.
type P2PConfig struct {
	Enabled    bool     `conf:"p2p.enabled"`
	ListenAddr string   `conf:"p2p.listen"`
	Port       int      `conf:"p2p.port"`
	Seeds      []string `conf:"p2p.seeds"`
	MaxPeers   int      `conf:"p2p.maxpeers"`
	NoDiscover bool     `conf:"p2p.nodiscover"`
	DHTServer  bool     `conf:"p2p.dhtserver"` // Run DHT in server mode (for seeds)
	ClearBans  bool     // Clear all peer bans on startup (not persisted).
}

// RPCConfig holds RPC server settings. Mirrors internal/rpc.Config's
// IP-filtering and CORS fields directly.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// WalletConfig holds wallet settings.
type WalletConfig struct {
	Enabled  bool   `conf:"wallet.enabled"`
	FilePath string `conf:"wallet.file"`
}

// FarmingConfig holds block-production settings. Whether to farm is a
// node choice; how a solution is validated is protocol (Genesis).
type FarmingConfig struct {
	Enabled  bool   `conf:"farming.enabled"`
	WalletID string `conf:"farming.wallet"` // keystore entry backing the farmer's identity
	PlotSize uint64 `conf:"farming.plotsize"` // number of piece slots to plot
}

// MetricsConfig controls the Prometheus feed mounted at GET /metrics.
type MetricsConfig struct {
	Enabled         bool   `conf:"metrics.enabled"`
	SampleIntervalS int    `conf:"metrics.interval"` // seconds between gauge samples
}

// ConsoleFeedConfig controls the websocket push feed mounted at GET /feed.
type ConsoleFeedConfig struct {
	Enabled         bool     `conf:"feed.enabled"`
	AllowedOrigins  []string `conf:"feed.origins"` // empty = allow all
	SampleIntervalS int      `conf:"feed.interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.plotchain
//	macOS:   ~/Library/Application Support/Plotchain
//	Windows: %APPDATA%\Plotchain
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".plotchain"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Plotchain")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Plotchain")
		}
		return filepath.Join(home, "AppData", "Roaming", "Plotchain")
	default:
		return filepath.Join(home, ".plotchain")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// LedgerDir returns the ledger database directory (metablocks, heads,
// balances, mempool, recent-proof set).
func (c *Config) LedgerDir() string {
	return filepath.Join(c.ChainDataDir(), "ledger")
}

// PlotDir returns the farmer's plot storage directory.
func (c *Config) PlotDir() string {
	return filepath.Join(c.ChainDataDir(), "plot")
}

// P2PDir returns the directory holding the node's libp2p identity key,
// peer store, and ban store.
func (c *Config) P2PDir() string {
	return filepath.Join(c.ChainDataDir(), "p2p")
}

// WalletDir returns the wallet storage directory.
func (c *Config) WalletDir() string {
	return filepath.Join(c.ChainDataDir(), "wallet")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.WalletDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "plotchain.conf")
}
