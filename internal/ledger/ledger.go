// Package ledger runs the block lifecycle state machine: validation,
// staging, confirmation, and transaction application. All mutations are
// serialized behind a single lock (spec §5): staging, confirmation,
// fork-head update, mempool changes, and balance application happen
// atomically per block.
package ledger

import (
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/klingon-tech/plotchain/internal/epoch"
	"github.com/klingon-tech/plotchain/internal/metablocks"
	"github.com/klingon-tech/plotchain/internal/storage"
	"github.com/klingon-tech/plotchain/pkg/codec"
	"github.com/klingon-tech/plotchain/pkg/sloth"
	"github.com/klingon-tech/plotchain/pkg/types"
)

const recentProofFilterSize = 8192

// Ledger is the block lifecycle state machine. A zero Ledger is not
// usable; construct one with New.
type Ledger struct {
	mu  sync.Mutex
	log zerolog.Logger

	params Params

	metablocks *metablocks.Registry
	epochs     *epoch.Tracker
	balances   storage.DB

	sloth        *sloth.Sloth
	merkleRoot   types.Hash
	genesisPiece [types.PieceSize]byte

	mempool map[types.Hash]types.Transaction
	txs     map[types.Hash]types.Transaction

	heads                          []types.Head
	earlyBlocksByTimeslot          map[uint64][]types.Block
	cachedBlocksByParentContentID  map[types.Hash][]types.Block
	proofIDsByTimeslot             map[uint64][]types.Hash
	blocksOnLongestChain           map[types.Hash]struct{}
	recentProofs                   *lru.Cache[types.Hash, struct{}]

	currentTimeslot uint64
	timerRunning    bool
}

// New creates a ledger over the given registry, epoch tracker, and
// balance store. merkleRoot is the plot's committed Merkle root over
// piece hashes, checked during validation stage 7.
func New(params Params, mb *metablocks.Registry, epochs *epoch.Tracker, balances storage.DB, merkleRoot types.Hash, genesisPiece [types.PieceSize]byte, log zerolog.Logger) (*Ledger, error) {
	cache, err := lru.New[types.Hash, struct{}](recentProofFilterSize)
	if err != nil {
		return nil, fmt.Errorf("ledger: recent-proof cache: %w", err)
	}

	return &Ledger{
		log:                           log.With().Str("component", "ledger").Logger(),
		params:                        params,
		metablocks:                    mb,
		epochs:                        epochs,
		balances:                      balances,
		sloth:                         sloth.NewDefault(),
		merkleRoot:                    merkleRoot,
		genesisPiece:                  genesisPiece,
		mempool:                       make(map[types.Hash]types.Transaction),
		txs:                           make(map[types.Hash]types.Transaction),
		earlyBlocksByTimeslot:         make(map[uint64][]types.Block),
		cachedBlocksByParentContentID: make(map[types.Hash][]types.Block),
		proofIDsByTimeslot:            make(map[uint64][]types.Hash),
		blocksOnLongestChain:          make(map[types.Hash]struct{}),
		recentProofs:                  cache,
	}, nil
}

// CurrentTimeslot returns the timeslot the ledger currently tracks.
func (l *Ledger) CurrentTimeslot() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTimeslot
}

// SetTimerRunning marks whether the coordinator's live timer has started.
// While false, every submitted block is cached rather than validated
// against the current-timeslot window (spec §4.5.2 stage 2).
func (l *Ledger) SetTimerRunning(running bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timerRunning = running
}

// Heads returns a copy of the current fork heads. heads[0] is always the
// longest-chain tip.
func (l *Ledger) Heads() []types.Head {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.Head, len(l.heads))
	copy(out, l.heads)
	return out
}

// AddTransaction admits a credit transaction into the mempool.
func (l *Ledger) AddTransaction(tx types.Transaction) error {
	id, err := tx.ID()
	if err != nil {
		return fmt.Errorf("ledger: tx id: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mempool[id] = tx
	return nil
}

// MempoolTxIDsSorted returns every pending credit tx-id, sorted
// ascending — the order the farmer appends after the coinbase id when
// building a new block's content (spec §4.4).
func (l *Ledger) MempoolTxIDsSorted() []types.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]types.Hash, 0, len(l.mempool))
	for id := range l.mempool {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return string(ids[i][:]) < string(ids[j][:])
	})
	return ids
}

// AccountState returns the confirmed balance and nonce for pub. An
// account with no recorded state returns a zero value, not an error.
func (l *Ledger) AccountState(pub types.PublicKey) (types.AccountState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getAccount(pub)
}

// GetBlockByProofID returns the staged or confirmed metablock registered
// under proofID.
func (l *Ledger) GetBlockByProofID(proofID types.Hash) (types.MetaBlock, error) {
	return l.metablocks.Get(proofID)
}

// GetBlockByContentID resolves contentID to its metablock.
func (l *Ledger) GetBlockByContentID(contentID types.Hash) (types.MetaBlock, error) {
	return l.metablocks.GetByContentID(contentID)
}

// GetTransaction returns a transaction known to the ledger by id, checking
// the mempool first and then the staged-block index. The bool reports
// whether txID was found.
func (l *Ledger) GetTransaction(txID types.Hash) (types.Transaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tx, ok := l.mempool[txID]; ok {
		return tx, true
	}
	if tx, ok := l.txs[txID]; ok {
		return tx, true
	}
	return types.Transaction{}, false
}

// BlocksAtTimeslot returns every block this node has staged for timeslot,
// the sync-request surface internal/p2p serves to peers asking what this
// node has for a given slot (spec §4.6's "blocks for timeslot T").
func (l *Ledger) BlocksAtTimeslot(timeslot uint64) []types.Block {
	l.mu.Lock()
	proofIDs := append([]types.Hash(nil), l.proofIDsByTimeslot[timeslot]...)
	l.mu.Unlock()

	out := make([]types.Block, 0, len(proofIDs))
	for _, proofID := range proofIDs {
		mb, err := l.metablocks.Get(proofID)
		if err != nil {
			continue
		}
		out = append(out, mb.Block)
	}
	return out
}

// balanceKey namespaces an account's balance record by its public key.
func balanceKey(pub types.PublicKey) []byte {
	k := make([]byte, 4+len(pub))
	copy(k, "bal/")
	copy(k[4:], pub[:])
	return k
}

func (l *Ledger) getAccount(pub types.PublicKey) (types.AccountState, error) {
	data, err := l.balances.Get(balanceKey(pub))
	if err != nil {
		return types.AccountState{}, nil // absent account defaults to zero balance
	}
	var acct types.AccountState
	if err := codec.Unmarshal(data, &acct); err != nil {
		return types.AccountState{}, fmt.Errorf("ledger: unmarshal account: %w", err)
	}
	return acct, nil
}

func (l *Ledger) putAccount(pub types.PublicKey, acct types.AccountState) error {
	data, err := codec.Marshal(acct)
	if err != nil {
		return fmt.Errorf("ledger: marshal account: %w", err)
	}
	return l.balances.Put(balanceKey(pub), data)
}

// AccountBalance is one account's public key and confirmed state, as
// returned by a Balances snapshot.
type AccountBalance struct {
	PublicKey types.PublicKey
	State     types.AccountState
}

// Balances returns a snapshot of every account with a recorded balance,
// sorted by public key ascending for a stable listing.
func (l *Ledger) Balances() ([]AccountBalance, error) {
	var out []AccountBalance
	err := l.balances.ForEach([]byte("bal/"), func(key, value []byte) error {
		if len(key) != 4+types.PublicKeySize {
			return nil
		}
		pub, err := types.PublicKeyFromBytes(key[4:])
		if err != nil {
			return fmt.Errorf("ledger: balance key: %w", err)
		}
		var acct types.AccountState
		if err := codec.Unmarshal(value, &acct); err != nil {
			return fmt.Errorf("ledger: unmarshal account: %w", err)
		}
		out = append(out, AccountBalance{PublicKey: pub, State: acct})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].PublicKey[:]) < string(out[j].PublicKey[:])
	})
	return out, nil
}
