package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/rs/zerolog"

	"github.com/klingon-tech/plotchain/internal/epoch"
	klog "github.com/klingon-tech/plotchain/internal/log"
	"github.com/klingon-tech/plotchain/internal/ledger"
	"github.com/klingon-tech/plotchain/internal/metablocks"
	"github.com/klingon-tech/plotchain/internal/storage"
	"github.com/klingon-tech/plotchain/pkg/identity"
	"github.com/klingon-tech/plotchain/pkg/types"
)

// testEnv holds all components for an RPC test.
type testEnv struct {
	server *Server
	ledger *ledger.Ledger
	epochs *epoch.Tracker
	url    string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	params := ledger.Params{
		TimeslotsPerEpoch:       16,
		ChallengeLookbackEpochs: 2,
		ConfirmationDepth:       6,
		SolutionRange:           1 << 20,
		BlockReward:             1_000_000,
	}

	var genesisPiece [types.PieceSize]byte
	mb := metablocks.New(storage.NewMemory())
	epochs := epoch.New(params.TimeslotsPerEpoch, params.ChallengeLookbackEpochs, params.SolutionRange, zerolog.Nop())
	balances := storage.NewMemory()

	l, err := ledger.New(params, mb, epochs, balances, types.Hash{}, genesisPiece, zerolog.Nop())
	if err != nil {
		t.Fatalf("ledger.New(): %v", err)
	}

	srv := New("127.0.0.1:0", "plotchain-test", "PLOT", types.Hash{0xab}, l, epochs, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		server: srv,
		ledger: l,
		epochs: epochs,
		url:    fmt.Sprintf("http://%s/", srv.Addr()),
	}
}

func rpcCall(t *testing.T, url, method string, params interface{}) Response {
	t.Helper()
	req := Request{JSONRPC: "2.0", Method: method, Params: params, ID: 1}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", method, err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rpcResp
}

// decodeResult re-marshals a response's loosely-typed result into target.
func decodeResult(t *testing.T, resp Response, target interface{}) {
	t.Helper()
	data, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
}

// ── Chain endpoints ─────────────────────────────────────────────────────

func TestRPC_ChainGetInfo(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "chain_getInfo", nil)
	if resp.Error != nil {
		t.Fatalf("chain_getInfo error: %+v", resp.Error)
	}
	var info ChainInfoResult
	decodeResult(t, resp, &info)

	if info.ChainName != "plotchain-test" || info.Symbol != "PLOT" {
		t.Errorf("unexpected chain identity: %+v", info)
	}
	if info.ForkCount != 0 {
		t.Errorf("fork count = %d, want 0 on an empty ledger", info.ForkCount)
	}
}

func TestRPC_ChainGetBlockByProofID_NotFound(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "chain_getBlockByProofID", ProofIDParam{ProofID: types.Hash{0x01}.String()})
	if resp.Error == nil {
		t.Fatal("expected not-found error")
	}
	if resp.Error.Code != CodeNotFound {
		t.Errorf("code = %d, want %d", resp.Error.Code, CodeNotFound)
	}
}

func TestRPC_ChainGetTransaction_NotFound(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "chain_getTransaction", TxIDParam{TxID: types.Hash{0x02}.String()})
	if resp.Error == nil || resp.Error.Code != CodeNotFound {
		t.Fatalf("expected CodeNotFound, got %+v", resp.Error)
	}
}

// ── Account endpoints ───────────────────────────────────────────────────

func TestRPC_AccountGetBalance_UnknownIsZero(t *testing.T) {
	env := setupTestEnv(t)

	priv, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate(): %v", err)
	}
	pub, err := priv.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey(): %v", err)
	}

	resp := rpcCall(t, env.url, "account_getBalance", PublicKeyParam{PublicKey: pub.String()})
	if resp.Error != nil {
		t.Fatalf("account_getBalance error: %+v", resp.Error)
	}
	var acct AccountResult
	decodeResult(t, resp, &acct)
	if acct.Balance != 0 || acct.Nonce != 0 {
		t.Errorf("unknown account should be zero, got %+v", acct)
	}
}

func TestRPC_AccountGetBalance_InvalidKey(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "account_getBalance", PublicKeyParam{PublicKey: "not-hex"})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("expected CodeInvalidParams, got %+v", resp.Error)
	}
}

func TestRPC_AccountList_Empty(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "account_list", nil)
	if resp.Error != nil {
		t.Fatalf("account_list error: %+v", resp.Error)
	}
	var list AccountsResult
	decodeResult(t, resp, &list)
	if list.Count != 0 {
		t.Errorf("count = %d, want 0 on a fresh ledger", list.Count)
	}
}

// ── Transaction endpoints ───────────────────────────────────────────────

func signedCredit(t *testing.T, from *identity.PrivateKey, to types.PublicKey, amount, nonce uint64) types.Transaction {
	t.Helper()
	fromPub, err := from.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey(): %v", err)
	}
	tx := types.NewCredit(fromPub, to, amount, nonce)
	txID, err := tx.ID()
	if err != nil {
		t.Fatalf("ID(): %v", err)
	}
	sig, err := from.Sign(txID)
	if err != nil {
		t.Fatalf("Sign(): %v", err)
	}
	tx.Signature = sig
	return tx
}

func TestRPC_TxSubmit_Accepted(t *testing.T) {
	env := setupTestEnv(t)

	fromPriv, _ := identity.Generate()
	toPriv, _ := identity.Generate()
	toPub, _ := toPriv.PublicKey()
	tx := signedCredit(t, fromPriv, toPub, 100, 0)
	txID, _ := tx.ID()

	resp := rpcCall(t, env.url, "tx_submit", TxSubmitParam{Transaction: &tx})
	if resp.Error != nil {
		t.Fatalf("tx_submit error: %+v", resp.Error)
	}
	var submitResult TxSubmitResult
	decodeResult(t, resp, &submitResult)
	if submitResult.TxID != txID.String() {
		t.Errorf("tx_id = %q, want %q", submitResult.TxID, txID.String())
	}

	mempoolResp := rpcCall(t, env.url, "mempool_getInfo", nil)
	var info MempoolInfoResult
	decodeResult(t, mempoolResp, &info)
	if info.Count != 1 {
		t.Errorf("mempool count = %d, want 1", info.Count)
	}
}

func TestRPC_TxSubmit_RejectsBadSignature(t *testing.T) {
	env := setupTestEnv(t)

	fromPriv, _ := identity.Generate()
	fromPub, _ := fromPriv.PublicKey()
	toPriv, _ := identity.Generate()
	toPub, _ := toPriv.PublicKey()

	tx := types.NewCredit(fromPub, toPub, 100, 0)
	otherPriv, _ := identity.Generate()
	txID, _ := tx.ID()
	badSig, err := otherPriv.Sign(txID)
	if err != nil {
		t.Fatalf("Sign(): %v", err)
	}
	tx.Signature = badSig

	resp := rpcCall(t, env.url, "tx_submit", TxSubmitParam{Transaction: &tx})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("expected a signature rejection, got %+v", resp.Error)
	}
}

func TestRPC_TxSubmit_RejectsCoinbase(t *testing.T) {
	env := setupTestEnv(t)

	tx := types.NewCoinbase(types.PublicKey{0x02}, 1_000_000, types.Hash{})
	resp := rpcCall(t, env.url, "tx_submit", TxSubmitParam{Transaction: &tx})
	if resp.Error == nil {
		t.Fatal("expected coinbase submission to be rejected")
	}
}

// ── Mempool endpoints ───────────────────────────────────────────────────

func TestRPC_MempoolGetContent_OrdersByID(t *testing.T) {
	env := setupTestEnv(t)

	toPriv, _ := identity.Generate()
	toPub, _ := toPriv.PublicKey()
	for i := 0; i < 3; i++ {
		fromPriv, _ := identity.Generate()
		tx := signedCredit(t, fromPriv, toPub, uint64(i+1), 0)
		if resp := rpcCall(t, env.url, "tx_submit", TxSubmitParam{Transaction: &tx}); resp.Error != nil {
			t.Fatalf("tx_submit error: %+v", resp.Error)
		}
	}

	resp := rpcCall(t, env.url, "mempool_getContent", nil)
	var content MempoolContentResult
	decodeResult(t, resp, &content)
	if len(content.TxIDs) != 3 {
		t.Fatalf("got %d tx ids, want 3", len(content.TxIDs))
	}
	for i := 1; i < len(content.TxIDs); i++ {
		if content.TxIDs[i-1] >= content.TxIDs[i] {
			t.Errorf("tx ids not sorted ascending: %v", content.TxIDs)
		}
	}
}

// ── Network endpoints ───────────────────────────────────────────────────

func TestRPC_NetGetNodeInfo_NoP2P(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "net_getNodeInfo", nil)
	if resp.Error != nil {
		t.Fatalf("net_getNodeInfo error: %+v", resp.Error)
	}
	var info NodeInfoResult
	decodeResult(t, resp, &info)
	if info.ID != "" {
		t.Errorf("expected empty node id with no p2p node wired, got %q", info.ID)
	}
}

func TestRPC_NetGetBanList_Disabled(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "net_getBanList", nil)
	if resp.Error == nil {
		t.Fatal("expected an error when no ban manager is wired")
	}
	if resp.Error.Code != CodeNotFound {
		t.Errorf("code = %d, want %d", resp.Error.Code, CodeNotFound)
	}
}

// ── Envelope and transport ──────────────────────────────────────────────

func TestRPC_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "not_a_real_method", nil)
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected CodeMethodNotFound, got %+v", resp.Error)
	}
}

func TestRPC_MissingParams(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "chain_getBlockByProofID", nil)
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("expected CodeInvalidParams, got %+v", resp.Error)
	}
}

func TestRPC_RejectsNonPost(t *testing.T) {
	env := setupTestEnv(t)

	httpResp, err := http.Get(env.url)
	if err != nil {
		t.Fatalf("GET %s: %v", env.url, err)
	}
	defer httpResp.Body.Close()

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Fatalf("expected CodeInvalidRequest, got %+v", resp.Error)
	}
}

func TestRPC_RejectsBadJSON(t *testing.T) {
	env := setupTestEnv(t)

	httpResp, err := http.Post(env.url, "application/json", bytes.NewBufferString("not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer httpResp.Body.Close()

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Fatalf("expected CodeParseError, got %+v", resp.Error)
	}
}

// ── Accounts REST endpoint ───────────────────────────────────────────────

func TestRESTAccounts_Empty(t *testing.T) {
	env := setupTestEnv(t)

	restURL := fmt.Sprintf("http://%s/v1/accounts", env.server.Addr())
	httpResp, err := http.Get(restURL)
	if err != nil {
		t.Fatalf("GET %s: %v", restURL, err)
	}
	defer httpResp.Body.Close()

	var result AccountsResult
	if err := json.NewDecoder(httpResp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Count != 0 {
		t.Errorf("count = %d, want 0", result.Count)
	}
}

// ── IP filtering and CORS ────────────────────────────────────────────────

func TestIsIPAllowed(t *testing.T) {
	env := setupTestEnv(t)
	env.server.allowedNets = parseAllowedIPs([]string{"10.0.0.0/8", "192.168.1.5"})

	tests := []struct {
		ip   string
		want bool
	}{
		{"10.1.2.3", true},
		{"192.168.1.5", true},
		{"192.168.1.6", false},
		{"8.8.8.8", false},
	}
	for _, tt := range tests {
		ip := mustParseTestIP(t, tt.ip)
		if got := env.server.isIPAllowed(ip); got != tt.want {
			t.Errorf("isIPAllowed(%s) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func mustParseTestIP(t *testing.T, s string) net.IP {
	t.Helper()
	ip := net.ParseIP(s)
	if ip == nil {
		t.Fatalf("invalid test IP %q", s)
	}
	return ip
}
