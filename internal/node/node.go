// Package node wires every plotchain subsystem — ledger, epoch tracker,
// farmer, P2P transport, RPC server, metrics and console feed — into one
// process lifecycle. It owns no consensus logic of its own; it only
// constructs the collaborators internal/coordinator drives and starts or
// stops them together.
package node

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/klingon-tech/plotchain/config"
	"github.com/klingon-tech/plotchain/internal/consolefeed"
	"github.com/klingon-tech/plotchain/internal/coordinator"
	"github.com/klingon-tech/plotchain/internal/epoch"
	"github.com/klingon-tech/plotchain/internal/farmer"
	"github.com/klingon-tech/plotchain/internal/ledger"
	klog "github.com/klingon-tech/plotchain/internal/log"
	"github.com/klingon-tech/plotchain/internal/metablocks"
	"github.com/klingon-tech/plotchain/internal/metrics"
	"github.com/klingon-tech/plotchain/internal/p2p"
	"github.com/klingon-tech/plotchain/internal/plot"
	"github.com/klingon-tech/plotchain/internal/rpc"
	"github.com/klingon-tech/plotchain/internal/storage"
	"github.com/klingon-tech/plotchain/internal/wallet"
	"github.com/klingon-tech/plotchain/pkg/identity"
	"github.com/klingon-tech/plotchain/pkg/types"
)

// Node is a fully-initialized plotchain node, ready to Start.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	// Core
	db         storage.DB
	metablocks *metablocks.Registry
	epochs     *epoch.Tracker
	ledger     *ledger.Ledger

	// Farming
	plotStore *plot.Store
	farmKey   *identity.PrivateKey
	farmer    *farmer.Farmer

	// Networking
	p2pNode *p2p.Node
	syncer  *p2p.Syncer
	adapter *p2p.Adapter

	// Coordination
	coordinator *coordinator.Coordinator

	// RPC / observability
	rpcServer      *rpc.Server
	metricsSampler *metrics.Sampler
	feedHub        *consolefeed.Hub
	feedPublisher  *consolefeed.SnapshotPublisher

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// offlineNetwork is the coordinator.Network used when P2P is disabled: a
// single node still runs its own timeslot timer and farms against
// itself, it just never hears about blocks from anyone else.
type offlineNetwork struct{}

func (offlineNetwork) BroadcastBlock(types.Block)             {}
func (offlineNetwork) BroadcastTransaction(types.Transaction) {}
func (offlineNetwork) RequestBlocksForTimeslot(context.Context, uint64) ([]types.Block, error) {
	return nil, nil
}

// New builds every subsystem cfg names but does not start any of them.
// On failure it unwinds whatever it already constructed, in reverse
// order, before returning the error.
func New(cfg *config.Config) (*Node, error) {
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	logger := klog.WithComponent("node")

	genesis := config.GenesisFor(cfg.Network)
	genesisHash, err := genesis.Hash()
	if err != nil {
		return nil, fmt.Errorf("genesis hash: %w", err)
	}

	n := &Node{
		cfg:     cfg,
		genesis: genesis,
		logger:  logger,
	}

	// ── 1. Ledger database ──────────────────────────────────────────
	db, err := storage.NewBadger(cfg.LedgerDir())
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	n.db = db

	// ── 2. Metablock registry, epoch tracker, ledger ────────────────
	n.metablocks = metablocks.New(db)
	n.epochs = epoch.New(genesis.Protocol.TimeslotsPerEpoch, genesis.Protocol.ChallengeLookbackEpochs,
		genesis.Protocol.InitialSolutionRange, logger)

	l, err := ledger.New(genesis.Protocol.LedgerParams(), n.metablocks, n.epochs, db,
		genesis.MerkleRoot(), genesis.GenesisPiece, logger)
	if err != nil {
		n.unwind()
		return nil, fmt.Errorf("create ledger: %w", err)
	}
	n.ledger = l

	if err := stageGenesisIfNeeded(cfg, l, genesis, logger); err != nil {
		n.unwind()
		return nil, fmt.Errorf("stage genesis: %w", err)
	}

	// ── 3. Farming (plot store, identity, farmer) ───────────────────
	if cfg.Farming.Enabled {
		store, err := plot.Open(cfg.PlotDir(), logger)
		if err != nil {
			n.unwind()
			return nil, fmt.Errorf("open plot store: %w", err)
		}
		n.plotStore = store

		walletName := cfg.Farming.WalletID
		if walletName == "" {
			walletName = "default"
		}
		key, err := loadIdentity(cfg, walletName, logger)
		if err != nil {
			n.unwind()
			return nil, fmt.Errorf("load farmer identity: %w", err)
		}
		n.farmKey = key

		f, err := farmer.New(store, key, genesis.GenesisPiece, cfg.Farming.PlotSize, genesis.Protocol.BlockReward, logger)
		if err != nil {
			n.unwind()
			return nil, fmt.Errorf("create farmer: %w", err)
		}
		n.farmer = f
		logger.Info().Str("range", formatRange(genesis.Protocol.InitialSolutionRange)).Msg("farming enabled")
	}

	// ── 4. P2P transport ─────────────────────────────────────────────
	var network coordinator.Network = offlineNetwork{}
	if cfg.P2P.Enabled {
		p2pDB, err := storage.NewBadger(cfg.P2PDir())
		if err != nil {
			n.unwind()
			return nil, fmt.Errorf("open p2p db: %w", err)
		}

		p2pNode := p2p.New(p2p.Config{
			ListenAddr: cfg.P2P.ListenAddr,
			Port:       cfg.P2P.Port,
			Seeds:      cfg.P2P.Seeds,
			MaxPeers:   cfg.P2P.MaxPeers,
			NoDiscover: cfg.P2P.NoDiscover,
			DB:         p2pDB,
			DHTServer:  cfg.P2P.DHTServer,
			NetworkID:  genesis.ChainID,
			DataDir:    cfg.P2PDir(),
		})
		p2pNode.SetGenesisHash(genesisHash)
		p2pNode.SetBestTimeslotFn(l.CurrentTimeslot)
		if err := p2pNode.Start(); err != nil {
			n.unwind()
			return nil, fmt.Errorf("start p2p: %w", err)
		}
		n.p2pNode = p2pNode

		syncer := p2p.NewSyncer(p2pNode)
		adapter := p2p.NewAdapter(p2pNode, syncer, logger)
		n.syncer = syncer
		n.adapter = adapter
		network = adapter
	}

	// ── 5. Coordinator ───────────────────────────────────────────────
	coordParams := coordinator.Params{
		GenesisTimestampMs: genesis.TimestampMs,
		TimeslotDuration:   time.Duration(genesis.Protocol.TimeslotDurationMs) * time.Millisecond,
		TimeslotsPerEpoch:  genesis.Protocol.TimeslotsPerEpoch,
	}
	coord := coordinator.New(coordParams, l, n.epochs, n.farmer, network, logger)
	n.coordinator = coord

	if n.adapter != nil {
		n.adapter.SetupHandlers(coord.SubmitRemoteBlock, coord.SubmitRemoteTransaction,
			l.BlocksAtTimeslot, n.contacts)
	}

	// ── 6. Console feed (built before RPC so the hub can be attached) ─
	if cfg.ConsoleFeed.Enabled {
		n.feedHub = consolefeed.New(cfg.ConsoleFeed.AllowedOrigins)
		var peerSource consolefeed.PeerSource
		if n.p2pNode != nil {
			peerSource = n.p2pNode
		}
		n.feedPublisher = consolefeed.NewSnapshotPublisher(n.feedHub, l, n.epochs, peerSource)
		coord.SetSolutionObserver(func(sol farmer.Solution) {
			n.feedHub.PublishSolution(consolefeed.SolutionEvent{
				LeadingZeroBits: sol.LeadingZeroBits,
			})
		})
		coord.SetBlockProducedObserver(n.publishBlockEvent)
	}

	// ── 7. RPC server ────────────────────────────────────────────────
	if cfg.RPC.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
		srv := rpc.New(addr, genesis.ChainName, genesis.Symbol, genesisHash, l, n.epochs, n.p2pNode, rpc.Config{
			AllowedIPs:  cfg.RPC.AllowedIPs,
			CORSOrigins: cfg.RPC.CORSOrigins,
		})
		if n.p2pNode != nil {
			srv.SetBanManager(n.p2pNode.BanManager)
		}
		if n.feedHub != nil {
			srv.SetFeedHub(n.feedHub)
		}
		if err := srv.Start(); err != nil {
			n.unwind()
			return nil, fmt.Errorf("start rpc: %w", err)
		}
		n.rpcServer = srv
	}

	// ── 8. Metrics sampler ───────────────────────────────────────────
	if cfg.Metrics.Enabled {
		var peerSource metrics.PeerSource
		if n.p2pNode != nil {
			peerSource = n.p2pNode
		}
		n.metricsSampler = metrics.NewSampler(l, n.epochs, peerSource)
	}

	return n, nil
}

// Start launches every background loop: the coordinator's sync-then-live
// loop, the metrics sampler, and the console feed hub/publisher. It
// returns immediately; the loops run until Stop cancels them.
func (n *Node) Start() error {
	n.ctx, n.cancel = context.WithCancel(context.Background())

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.coordinator.Run(n.ctx); err != nil && err != context.Canceled {
			n.logger.Error().Err(err).Msg("coordinator loop exited")
		}
	}()

	if n.metricsSampler != nil {
		interval := time.Duration(n.cfg.Metrics.SampleIntervalS) * time.Second
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.metricsSampler.Run(n.ctx, interval)
		}()
	}

	if n.feedHub != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.feedHub.Run(n.ctx)
		}()
	}

	if n.feedPublisher != nil {
		interval := time.Duration(n.cfg.ConsoleFeed.SampleIntervalS) * time.Second
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.feedPublisher.Run(n.ctx, interval)
		}()
	}

	n.logger.Info().Str("chain", n.genesis.ChainName).Str("network", string(n.cfg.Network)).Msg("node started")
	return nil
}

// Stop cancels every background loop, waits for them to exit, then tears
// down subsystems in reverse construction order.
func (n *Node) Stop() error {
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
	n.unwind()
	n.logger.Info().Msg("Goodbye!")
	return nil
}

// unwind closes whatever subsystems were constructed, in reverse order.
// Safe to call on a partially-built Node (failed New) or a fully running
// one (Stop); every field check is nil-safe.
func (n *Node) unwind() {
	if n.rpcServer != nil {
		if err := n.rpcServer.Stop(); err != nil {
			n.logger.Warn().Err(err).Msg("rpc shutdown error")
		}
		n.rpcServer = nil
	}
	if n.p2pNode != nil {
		if err := n.p2pNode.Stop(); err != nil {
			n.logger.Warn().Err(err).Msg("p2p shutdown error")
		}
		n.p2pNode = nil
	}
	if n.farmKey != nil {
		n.farmKey.Zero()
		n.farmKey = nil
	}
	if n.plotStore != nil {
		if err := n.plotStore.Close(); err != nil {
			n.logger.Warn().Err(err).Msg("plot store close error")
		}
		n.plotStore = nil
	}
	if n.db != nil {
		if err := n.db.Close(); err != nil {
			n.logger.Warn().Err(err).Msg("ledger db close error")
		}
		n.db = nil
	}
}

// contacts lists every connected peer's full multiaddr, the response
// internal/p2p's Syncer gives out when a peer asks this node for
// contacts to expand its own peer set.
func (n *Node) contacts() []string {
	if n.p2pNode == nil {
		return nil
	}
	var out []string
	for _, peer := range n.p2pNode.PeerList() {
		for _, addr := range n.p2pNode.Host().Peerstore().Addrs(peer.ID) {
			out = append(out, fmt.Sprintf("%s/p2p/%s", addr, peer.ID))
		}
	}
	return out
}

// publishBlockEvent pushes a console-feed block event for a
// locally-produced block, resolving its height from the ledger's own
// record rather than requiring the caller to recompute it.
func (n *Node) publishBlockEvent(b types.Block) {
	proofID, err := b.Proof.ID()
	if err != nil {
		return
	}
	contentID, err := b.Content.ID()
	if err != nil {
		return
	}
	mb, err := n.ledger.GetBlockByProofID(proofID)
	if err != nil {
		return
	}
	n.feedHub.PublishBlock(consolefeed.BlockEvent{
		ProofID:   proofID.String(),
		ContentID: contentID.String(),
		Height:    mb.Height,
	})
}

// stageGenesisIfNeeded brings up chain state the first time a data
// directory is used. On every later startup the ledger already has heads
// and this is a no-op.
//
// A gateway node is the one that stands a network up: it runs
// init_from_genesis (Ledger.BootstrapGateway), staging and immediately
// confirming CHALLENGE_LOOKBACK_EPOCHS full epochs of linked blocks so a
// real lookback-epoch challenge already exists once the live timer
// starts (spec §8 scenario 1). Every other role only ever receives
// genesis as the first block synced from a peer, staged through the
// ordinary single-block StageGenesis path coordinator.stageBlock already
// uses for that; it is never minted locally.
func stageGenesisIfNeeded(cfg *config.Config, l *ledger.Ledger, genesis *config.Genesis, logger zerolog.Logger) error {
	if len(l.Heads()) != 0 {
		return nil
	}

	if cfg.Role != config.RoleGateway {
		return nil
	}

	gatewayKey, err := loadIdentity(cfg, "gateway", logger)
	if err != nil {
		return fmt.Errorf("load gateway identity: %w", err)
	}
	defer gatewayKey.Zero()

	if err := l.BootstrapGateway(gatewayKey, genesis.GenesisPiece, genesis.TimestampMs, genesis.Protocol.TimeslotDurationMs); err != nil {
		return fmt.Errorf("bootstrap gateway genesis: %w", err)
	}

	alloc, err := decodeAlloc(genesis.Alloc)
	if err != nil {
		return fmt.Errorf("decode genesis alloc: %w", err)
	}
	for pub, extra := range alloc {
		acct, err := l.AccountState(pub)
		if err != nil {
			return fmt.Errorf("read alloc account: %w", err)
		}
		if err := l.CreditAccount(pub, acct.Balance+extra); err != nil {
			return fmt.Errorf("apply genesis alloc: %w", err)
		}
	}

	logger.Info().
		Str("chain_id", genesis.ChainID).
		Uint64("blocks", l.Heads()[0].BlockHeight+1).
		Int("extra_accounts", len(alloc)).
		Msg("gateway bootstrapped genesis chain")
	return nil
}

// decodeAlloc parses genesis.Alloc's hex-encoded public keys into the map
// stageGenesisIfNeeded credits on top of a gateway's bootstrap coinbases.
// Genesis.Validate already rejects malformed keys before a node would
// normally reach here, but this runs independently of that validation
// path, so errors are still handled, not assumed away.
func decodeAlloc(alloc map[string]uint64) (map[types.PublicKey]uint64, error) {
	out := make(map[types.PublicKey]uint64, len(alloc))
	for keyHex, balance := range alloc {
		raw, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("alloc key %q: %w", keyHex, err)
		}
		pub, err := types.PublicKeyFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("alloc key %q: %w", keyHex, err)
		}
		out[pub] = balance
	}
	return out, nil
}

// loadIdentity unlocks the keystore entry named walletName, deriving the
// private key a farmer signs blocks with or a gateway signs its
// genesis-bootstrap blocks with. Both uses share one keystore and one
// unlock password so a single `plotchain-cli wallet create` is enough to
// either farm or stand up a new network.
func loadIdentity(cfg *config.Config, walletName string, logger zerolog.Logger) (*identity.PrivateKey, error) {
	ks, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}

	password, err := farmWalletPassword()
	if err != nil {
		return nil, err
	}

	seed, err := ks.Load(walletName, password)
	if err != nil {
		return nil, fmt.Errorf("unlock wallet %q: %w", walletName, err)
	}

	key, err := wallet.IdentityFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("derive identity from seed: %w", err)
	}

	logger.Info().Str("wallet", walletName).Msg("identity unlocked")
	return key, nil
}
