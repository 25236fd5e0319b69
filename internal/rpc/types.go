package rpc

import "github.com/klingon-tech/plotchain/pkg/types"

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// ProofIDParam is used by endpoints that look a block up by its proof-id.
type ProofIDParam struct {
	ProofID string `json:"proof_id"`
}

// ContentIDParam is used by endpoints that look a block up by its content-id.
type ContentIDParam struct {
	ContentID string `json:"content_id"`
}

// TxIDParam is used by endpoints that take a single transaction id.
type TxIDParam struct {
	TxID string `json:"tx_id"`
}

// PublicKeyParam is used by account_getBalance.
type PublicKeyParam struct {
	PublicKey string `json:"public_key"`
}

// TxSubmitParam is used by tx_submit.
type TxSubmitParam struct {
	Transaction *types.Transaction `json:"transaction"`
}

// ── Result types ────────────────────────────────────────────────────────

// ChainInfoResult is returned by chain_getInfo.
type ChainInfoResult struct {
	ChainName       string `json:"chain_name"`
	Symbol          string `json:"symbol"`
	GenesisHash     string `json:"genesis_hash"`
	CurrentTimeslot uint64 `json:"current_timeslot"`
	CurrentEpoch    uint64 `json:"current_epoch"`
	TipContentID    string `json:"tip_content_id"`
	TipHeight       uint64 `json:"tip_height"`
	ForkCount       int    `json:"fork_count"`
}

// HeadResult is one entry of chain_getHeads.
type HeadResult struct {
	ContentID string `json:"content_id"`
	Height    uint64 `json:"height"`
}

// HeadsResult is returned by chain_getHeads.
type HeadsResult struct {
	Heads []HeadResult `json:"heads"`
}

// BlockResult wraps a metablock with its precomputed ids for RPC responses.
type BlockResult struct {
	BlockID         string     `json:"block_id"`
	ProofID         string     `json:"proof_id"`
	ContentID       string     `json:"content_id"`
	ParentContentID string     `json:"parent_content_id"`
	Height          uint64     `json:"height"`
	EpochIndex      uint64     `json:"epoch_index"`
	Timeslot        uint64     `json:"timeslot"`
	TimestampMs     uint64     `json:"timestamp_ms"`
	FarmerPublicKey string     `json:"farmer_public_key"`
	CoinbaseReward  uint64     `json:"coinbase_reward"`
	TxIDs           []string   `json:"tx_ids"`
	Children        []string   `json:"children"`
}

// NewBlockResult builds a BlockResult from a confirmed/staged metablock.
func NewBlockResult(mb types.MetaBlock) *BlockResult {
	txIDs := make([]string, len(mb.Block.Content.TxIDs))
	for i, id := range mb.Block.Content.TxIDs {
		txIDs[i] = id.String()
	}
	children := make([]string, len(mb.Children))
	for i, id := range mb.Children {
		children[i] = id.String()
	}
	return &BlockResult{
		BlockID:         mb.BlockID.String(),
		ProofID:         mb.ProofID.String(),
		ContentID:       mb.ContentID.String(),
		ParentContentID: mb.Block.Content.ParentContentID.String(),
		Height:          mb.Height,
		EpochIndex:      mb.Block.Proof.EpochIndex,
		Timeslot:        mb.Block.Proof.Timeslot,
		TimestampMs:     mb.Block.Content.TimestampMs,
		FarmerPublicKey: mb.Block.Proof.PublicKey.String(),
		CoinbaseReward:  mb.Block.CoinbaseTx.Reward,
		TxIDs:           txIDs,
		Children:        children,
	}
}

// TxResult wraps a transaction with its precomputed id for RPC responses.
type TxResult struct {
	TxID      string `json:"tx_id"`
	Kind      string `json:"kind"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Amount    uint64 `json:"amount,omitempty"`
	Nonce     uint64 `json:"nonce,omitempty"`
	Reward    uint64 `json:"reward,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// NewTxResult builds a TxResult from a transaction, precomputing its id.
func NewTxResult(tx types.Transaction) (*TxResult, error) {
	id, err := tx.ID()
	if err != nil {
		return nil, err
	}
	r := &TxResult{
		TxID:   id.String(),
		Kind:   tx.Kind.String(),
		Amount: tx.Amount,
		Nonce:  tx.Nonce,
		Reward: tx.Reward,
	}
	if !tx.From.IsZero() {
		r.From = tx.From.String()
	}
	if !tx.To.IsZero() {
		r.To = tx.To.String()
	}
	if !tx.Signature.IsZero() {
		r.Signature = tx.Signature.String()
	}
	return r, nil
}

// TxSubmitResult is returned by tx_submit.
type TxSubmitResult struct {
	TxID string `json:"tx_id"`
}

// ── Account endpoints ───────────────────────────────────────────────────

// AccountResult is returned by account_getBalance and appears in
// AccountsResult.
type AccountResult struct {
	PublicKey string `json:"public_key"`
	Balance   uint64 `json:"balance"`
	Nonce     uint64 `json:"nonce"`
}

// AccountsResult is returned by account_list and the GET /v1/accounts REST
// endpoint.
type AccountsResult struct {
	Count    int             `json:"count"`
	Accounts []AccountResult `json:"accounts"`
}

// ── Mempool endpoints ───────────────────────────────────────────────────

// MempoolInfoResult is returned by mempool_getInfo.
type MempoolInfoResult struct {
	Count int `json:"count"`
}

// MempoolContentResult is returned by mempool_getContent.
type MempoolContentResult struct {
	TxIDs []string `json:"tx_ids"`
}

// ── Network endpoints ───────────────────────────────────────────────────

// PeerInfo describes one connected peer.
type PeerInfo struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	ConnectedAt string `json:"connected_at"`
}

// PeerInfoResult is returned by net_getPeerInfo.
type PeerInfoResult struct {
	Count int        `json:"count"`
	Peers []PeerInfo `json:"peers"`
}

// NodeInfoResult is returned by net_getNodeInfo.
type NodeInfoResult struct {
	ID    string   `json:"id"`
	Addrs []string `json:"addrs"`
}

// BanEntry describes one banned peer.
type BanEntry struct {
	ID        string `json:"id"`
	Reason    string `json:"reason"`
	Score     int    `json:"score"`
	BannedAt  int64  `json:"banned_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// BanListResult is returned by net_getBanList.
type BanListResult struct {
	Count int        `json:"count"`
	Bans  []BanEntry `json:"bans"`
}
