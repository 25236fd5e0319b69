package rpc

import (
	"github.com/klingon-tech/plotchain/pkg/identity"
	"github.com/klingon-tech/plotchain/pkg/types"
)

// ── Chain endpoints ─────────────────────────────────────────────────────

// handleChainGetInfo reports chain identity and tip state.
func (s *Server) handleChainGetInfo() (interface{}, *Error) {
	heads := s.ledger.Heads()

	result := ChainInfoResult{
		ChainName:       s.chainName,
		Symbol:          s.symbol,
		GenesisHash:     s.genesisHash.String(),
		CurrentTimeslot: s.ledger.CurrentTimeslot(),
		CurrentEpoch:    s.epochs.CurrentEpochIndex(),
		ForkCount:       len(heads),
	}
	if len(heads) > 0 {
		result.TipContentID = heads[0].ContentID.String()
		result.TipHeight = heads[0].BlockHeight
	}
	return result, nil
}

// handleChainGetHeads lists every current fork head, longest chain first.
func (s *Server) handleChainGetHeads() (interface{}, *Error) {
	heads := s.ledger.Heads()
	out := make([]HeadResult, len(heads))
	for i, h := range heads {
		out[i] = HeadResult{ContentID: h.ContentID.String(), Height: h.BlockHeight}
	}
	return HeadsResult{Heads: out}, nil
}

// handleChainGetBlockByProofID looks a block up by its proof-id.
func (s *Server) handleChainGetBlockByProofID(req *Request) (interface{}, *Error) {
	var p ProofIDParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	proofID, perr := types.HexToHash(p.ProofID)
	if perr != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid proof_id: " + perr.Error()}
	}
	mb, lerr := s.ledger.GetBlockByProofID(proofID)
	if lerr != nil {
		return nil, &Error{Code: CodeNotFound, Message: "block not found"}
	}
	return NewBlockResult(mb), nil
}

// handleChainGetBlockByContentID looks a block up by its content-id.
func (s *Server) handleChainGetBlockByContentID(req *Request) (interface{}, *Error) {
	var p ContentIDParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	contentID, perr := types.HexToHash(p.ContentID)
	if perr != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid content_id: " + perr.Error()}
	}
	mb, lerr := s.ledger.GetBlockByContentID(contentID)
	if lerr != nil {
		return nil, &Error{Code: CodeNotFound, Message: "block not found"}
	}
	return NewBlockResult(mb), nil
}

// handleChainGetTransaction looks a transaction up by id, checking the
// mempool and every staged block the ledger still holds.
func (s *Server) handleChainGetTransaction(req *Request) (interface{}, *Error) {
	var p TxIDParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	txID, perr := types.HexToHash(p.TxID)
	if perr != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid tx_id: " + perr.Error()}
	}
	tx, ok := s.ledger.GetTransaction(txID)
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: "transaction not found"}
	}
	result, rerr := NewTxResult(tx)
	if rerr != nil {
		return nil, &Error{Code: CodeInternalError, Message: rerr.Error()}
	}
	return result, nil
}

// ── Account endpoints ───────────────────────────────────────────────────

// handleAccountGetBalance returns one account's confirmed balance and
// nonce.
func (s *Server) handleAccountGetBalance(req *Request) (interface{}, *Error) {
	var p PublicKeyParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	pub, perr := decodePublicKey(p.PublicKey)
	if perr != nil {
		return nil, perr
	}
	acct, lerr := s.ledger.AccountState(pub)
	if lerr != nil {
		return nil, &Error{Code: CodeInternalError, Message: lerr.Error()}
	}
	return AccountResult{PublicKey: pub.String(), Balance: acct.Balance, Nonce: acct.Nonce}, nil
}

// handleAccountList lists every account with a recorded balance.
func (s *Server) handleAccountList() (interface{}, *Error) {
	balances, err := s.ledger.Balances()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	out := make([]AccountResult, len(balances))
	for i, b := range balances {
		out[i] = AccountResult{PublicKey: b.PublicKey.String(), Balance: b.State.Balance, Nonce: b.State.Nonce}
	}
	return AccountsResult{Count: len(out), Accounts: out}, nil
}

// ── Transaction endpoints ───────────────────────────────────────────────

// handleTxSubmit admits a signed credit transaction into the mempool and
// best-effort broadcasts it to the network. A coinbase transaction is
// never accepted here: it is only ever minted by the farmer inside a
// block's content.
func (s *Server) handleTxSubmit(req *Request) (interface{}, *Error) {
	var p TxSubmitParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	if p.Transaction == nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "transaction is required"}
	}
	tx := *p.Transaction

	if tx.Kind != types.TxCredit {
		return nil, &Error{Code: CodeInvalidParams, Message: "only credit transactions may be submitted"}
	}
	if tx.From.IsZero() || tx.To.IsZero() || tx.Amount == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "from, to and a nonzero amount are required"}
	}

	txID, err := tx.ID()
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "cannot compute transaction id: " + err.Error()}
	}
	if !identity.Verify(txID, tx.Signature, tx.From) {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid signature"}
	}

	if err := s.ledger.AddTransaction(tx); err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}

	if s.p2pNode != nil {
		if err := s.p2pNode.BroadcastTx(tx); err != nil {
			s.logger.Warn().Err(err).Str("tx_id", txID.String()).Msg("broadcast transaction failed")
		}
	}

	return TxSubmitResult{TxID: txID.String()}, nil
}

// ── Mempool endpoints ───────────────────────────────────────────────────

// handleMempoolGetInfo reports the mempool's pending transaction count.
func (s *Server) handleMempoolGetInfo() (interface{}, *Error) {
	return MempoolInfoResult{Count: len(s.ledger.MempoolTxIDsSorted())}, nil
}

// handleMempoolGetContent lists every pending transaction id, in the
// same order a farmer would append them after the coinbase id.
func (s *Server) handleMempoolGetContent() (interface{}, *Error) {
	ids := s.ledger.MempoolTxIDsSorted()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return MempoolContentResult{TxIDs: out}, nil
}

// ── Network endpoints ───────────────────────────────────────────────────

// handleNetGetPeerInfo lists currently connected peers.
func (s *Server) handleNetGetPeerInfo() (interface{}, *Error) {
	if s.p2pNode == nil {
		return PeerInfoResult{}, nil
	}
	peers := s.p2pNode.PeerList()
	out := make([]PeerInfo, len(peers))
	for i, p := range peers {
		out[i] = PeerInfo{
			ID:          p.ID.String(),
			Source:      p.Source,
			ConnectedAt: p.ConnectedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}
	return PeerInfoResult{Count: len(out), Peers: out}, nil
}

// handleNetGetNodeInfo reports this node's own peer id and listen
// addresses.
func (s *Server) handleNetGetNodeInfo() (interface{}, *Error) {
	if s.p2pNode == nil {
		return NodeInfoResult{}, nil
	}
	return NodeInfoResult{ID: s.p2pNode.ID().String(), Addrs: s.p2pNode.Addrs()}, nil
}

// handleNetGetBanList lists every currently banned peer.
func (s *Server) handleNetGetBanList() (interface{}, *Error) {
	if s.banManager == nil {
		return nil, &Error{Code: CodeNotFound, Message: "ban manager not enabled"}
	}
	records := s.banManager.BanList()
	out := make([]BanEntry, len(records))
	for i, r := range records {
		out[i] = BanEntry{
			ID:        r.ID,
			Reason:    r.Reason,
			Score:     r.Score,
			BannedAt:  r.BannedAt,
			ExpiresAt: r.ExpiresAt,
		}
	}
	return BanListResult{Count: len(out), Bans: out}, nil
}

// ── Helpers ─────────────────────────────────────────────────────────────

// decodePublicKey parses a hex-encoded compressed secp256k1 public key.
func decodePublicKey(s string) (types.PublicKey, *Error) {
	var k types.PublicKey
	if err := k.UnmarshalJSON([]byte(`"` + s + `"`)); err != nil {
		return types.PublicKey{}, &Error{Code: CodeInvalidParams, Message: "invalid public_key: " + err.Error()}
	}
	return k, nil
}
