// Package coordinator runs the cooperative loop that drives timer ticks,
// network events, and local solver events against the ledger and epoch
// tracker (spec §4.6). It owns no consensus logic of its own — it only
// sequences calls into internal/epoch, internal/farmer and internal/ledger
// in the order spec §5 requires.
package coordinator

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/klingon-tech/plotchain/internal/epoch"
	"github.com/klingon-tech/plotchain/internal/farmer"
	"github.com/klingon-tech/plotchain/internal/ledger"
	"github.com/klingon-tech/plotchain/internal/metrics"
	"github.com/klingon-tech/plotchain/pkg/types"
)

// Network is the coordinator's view of the transport layer (internal/p2p
// implements it). Out of the core per spec §1; the coordinator depends
// only on this interface so the core can be exercised without a live
// network.
type Network interface {
	BroadcastBlock(block types.Block)
	BroadcastTransaction(tx types.Transaction)
	// RequestBlocksForTimeslot asks peers for every block they have
	// staged at timeslot, for sync. An empty, nil-error result means no
	// peer has anything for that timeslot.
	RequestBlocksForTimeslot(ctx context.Context, timeslot uint64) ([]types.Block, error)
}

// Params are the timing constants genesis configuration fixes (spec §6).
type Params struct {
	GenesisTimestampMs uint64
	TimeslotDuration   time.Duration
	TimeslotsPerEpoch  uint64
}

// Coordinator sequences timer ticks, inbound network events, and local
// solver events into calls against the epoch tracker, farmer, and ledger.
type Coordinator struct {
	log zerolog.Logger

	clock   clock.Clock
	params  Params
	ledger  *ledger.Ledger
	epochs  *epoch.Tracker
	farmer  *farmer.Farmer
	network Network

	blocks chan types.Block
	txs    chan types.Transaction

	onSolution      func(farmer.Solution)
	onBlockProduced func(types.Block)
}

// SetSolutionObserver registers a callback fired for every winning audit
// result, before the block built from it is submitted. Used by
// internal/consolefeed to push solution events to the console feed; nil
// by default (no observer).
func (c *Coordinator) SetSolutionObserver(fn func(farmer.Solution)) {
	c.onSolution = fn
}

// SetBlockProducedObserver registers a callback fired after a
// locally-produced block is staged and broadcast.
func (c *Coordinator) SetBlockProducedObserver(fn func(types.Block)) {
	c.onBlockProduced = fn
}

// New creates a coordinator over the given collaborators, using the
// system clock. Use NewWithClock in tests to inject a mock clock.
func New(params Params, l *ledger.Ledger, epochs *epoch.Tracker, f *farmer.Farmer, network Network, log zerolog.Logger) *Coordinator {
	return NewWithClock(params, l, epochs, f, network, clock.New(), log)
}

// NewWithClock is New with an injectable clock, for deterministic tests.
func NewWithClock(params Params, l *ledger.Ledger, epochs *epoch.Tracker, f *farmer.Farmer, network Network, clk clock.Clock, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		log:     log.With().Str("component", "coordinator").Logger(),
		clock:   clk,
		params:  params,
		ledger:  l,
		epochs:  epochs,
		farmer:  f,
		network: network,
		blocks:  make(chan types.Block, 256),
		txs:     make(chan types.Transaction, 256),
	}
}

// SubmitRemoteBlock queues a gossiped block for the coordinator's loop.
// Called by the network layer; never blocks indefinitely since the
// channel is buffered and the loop drains it continuously.
func (c *Coordinator) SubmitRemoteBlock(block types.Block) {
	c.blocks <- block
}

// SubmitRemoteTransaction queues a gossiped transaction.
func (c *Coordinator) SubmitRemoteTransaction(tx types.Transaction) {
	c.txs <- tx
}

// arrivalTime returns the wall-clock time timeslot begins, anchored at
// GenesisTimestampMs.
func (c *Coordinator) arrivalTime(timeslot uint64) time.Time {
	offset := time.Duration(timeslot) * c.params.TimeslotDuration
	return time.UnixMilli(int64(c.params.GenesisTimestampMs)).Add(offset)
}

// Run drives the coordinator until ctx is cancelled: it first catches up
// via sync, then switches to the live timer/network/solver loop.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.sync(ctx); err != nil {
		return err
	}
	c.ledger.SetTimerRunning(true)
	c.log.Info().Msg("caught up, switching to live timeslot timer")
	return c.liveLoop(ctx)
}

// sync repeatedly requests "blocks for timeslot T" starting at 0,
// staging each batch in arrival order and advancing the ledger/epoch
// tracker, until the next expected timeslot's arrival time is still in
// the future — at which point the node is caught up (spec §4.6).
func (c *Coordinator) sync(ctx context.Context) error {
	var timeslot uint64
	for {
		if c.clock.Now().Before(c.arrivalTime(timeslot)) {
			return nil
		}

		blocks, err := c.network.RequestBlocksForTimeslot(ctx, timeslot)
		if err != nil {
			return err
		}
		for _, b := range blocks {
			c.stageBlock(b)
		}
		c.advanceTimeslot(timeslot)
		timeslot++

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// advanceTimeslot moves the ledger to timeslot and, on an epoch
// boundary, advances the epoch tracker.
func (c *Coordinator) advanceTimeslot(timeslot uint64) {
	c.ledger.AdvanceTimeslot(timeslot)
	if timeslot%c.params.TimeslotsPerEpoch == 0 {
		c.epochs.AdvanceEpoch()
	}
}

// stageBlock stages block as genesis if the ledger has no heads yet,
// otherwise through the normal validation contract. Cacheable rejections
// are expected during sync and are logged at debug, not warn.
func (c *Coordinator) stageBlock(block types.Block) {
	if len(c.ledger.Heads()) == 0 {
		if err := c.ledger.StageGenesis(block); err != nil {
			c.log.Warn().Err(err).Msg("failed to stage genesis block")
		}
		return
	}
	if err := c.ledger.SubmitBlock(block); err != nil {
		c.log.Debug().Err(err).Msg("block not staged")
	}
}

// liveLoop is the steady-state cooperative loop: timer ticks, gossiped
// blocks/transactions, and the solver all drive ledger/epoch state
// through the same three channels.
func (c *Coordinator) liveLoop(ctx context.Context) error {
	ticker := c.clock.Ticker(c.params.TimeslotDuration)
	defer ticker.Stop()

	timeslot := c.ledger.CurrentTimeslot()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			timeslot++
			c.advanceTimeslot(timeslot)
			c.onTick(timeslot)
		case block := <-c.blocks:
			c.stageBlock(block)
		case tx := <-c.txs:
			if err := c.ledger.AddTransaction(tx); err != nil {
				c.log.Warn().Err(err).Msg("failed to admit gossiped transaction")
			}
		}
	}
}

// onTick runs the farmer's audit for timeslot's challenge and submits
// every winning solution as a signed block (spec §4.4).
func (c *Coordinator) onTick(timeslot uint64) {
	if c.farmer == nil {
		return
	}

	epochIndex := c.epochs.CurrentEpochIndex()
	lookback, ok := c.epochs.GetLookbackEpoch(epochIndex)
	if !ok || !lookback.Closed {
		c.log.Debug().Uint64("epoch", epochIndex).Msg("lookback epoch not closed yet, skipping audit")
		return
	}
	challenge, err := epoch.ChallengeForTimeslot(lookback, timeslot, c.params.TimeslotsPerEpoch)
	if err != nil {
		c.log.Warn().Err(err).Msg("no challenge for this timeslot")
		return
	}

	solutions, err := c.farmer.Audit(challenge, lookback.SolutionRange)
	if err != nil {
		c.log.Warn().Err(err).Msg("audit failed")
		return
	}

	heads := c.ledger.Heads()
	if len(heads) == 0 {
		return // no chain to extend yet; genesis is staged externally
	}
	parentContentID := heads[0].ContentID

	for _, sol := range solutions {
		metrics.RecordSolution(sol.LeadingZeroBits)
		if c.onSolution != nil {
			c.onSolution(sol)
		}

		block, err := c.farmer.BuildBlock(parentContentID, epochIndex, timeslot, lookback.Randomness,
			lookback.SolutionRange, c.ledger.MempoolTxIDsSorted(), sol, uint64(c.clock.Now().UnixMilli()))
		if err != nil {
			c.log.Warn().Err(err).Msg("failed to build block from solution")
			continue
		}
		if err := c.ledger.SubmitBlock(block); err != nil {
			c.log.Warn().Err(err).Msg("failed to stage own block")
			continue
		}
		metrics.BlocksProduced.Inc()
		c.network.BroadcastBlock(block)
		if c.onBlockProduced != nil {
			c.onBlockProduced(block)
		}
	}
}
