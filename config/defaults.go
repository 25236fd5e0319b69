package config

// DefaultMainnet returns the default node configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Role:    RolePeer,
		P2P: P2PConfig{
			Enabled:    true,
			ListenAddr: "0.0.0.0",
			Port:       30303,
			MaxPeers:   50,
			// Seeds are bootstrap peers as libp2p multiaddrs, e.g.:
			//   "/ip4/203.0.113.1/tcp/30303/p2p/12D3KooW..."
			//   "/dns4/seed1.plotchain.io/tcp/30303/p2p/12D3KooW..."
			// Run seed nodes with --dht-server for optimal DHT performance.
			Seeds: []string{},
		},
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       8545,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Wallet: WalletConfig{
			Enabled: false,
		},
		Farming: FarmingConfig{
			Enabled:  false,
			PlotSize: totalPlotLeaves,
		},
		Metrics: MetricsConfig{
			Enabled:         true,
			SampleIntervalS: 10,
		},
		ConsoleFeed: ConsoleFeedConfig{
			Enabled:         true,
			SampleIntervalS: 5,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default node configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.P2P.Port = 30304
	cfg.RPC.Port = 8645
	return cfg
}

// Default returns the default node configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
