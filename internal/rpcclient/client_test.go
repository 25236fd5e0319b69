package rpcclient

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/klingon-tech/plotchain/internal/epoch"
	klog "github.com/klingon-tech/plotchain/internal/log"
	"github.com/klingon-tech/plotchain/internal/ledger"
	"github.com/klingon-tech/plotchain/internal/metablocks"
	"github.com/klingon-tech/plotchain/internal/rpc"
	"github.com/klingon-tech/plotchain/internal/storage"
	"github.com/klingon-tech/plotchain/pkg/types"
)

type testEnv struct {
	client *Client
	ledger *ledger.Ledger
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

	l, err := ledger.New(params, mb, epochs, storage.NewMemory(), types.Hash{}, genesisPiece, zerolog.Nop())
	if err != nil {
		t.Fatalf("ledger.New(): %v", err)
	}

	srv := rpc.New("127.0.0.1:0", "plotchain-test", "PLOT", types.Hash{0xab}, l, epochs, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		client: New(fmt.Sprintf("http://%s/", srv.Addr())),
		ledger: l,
	}
}

func TestClient_ChainGetInfo(t *testing.T) {
	env := setupTestEnv(t)

	var result rpc.ChainInfoResult
	if err := env.client.Call("chain_getInfo", nil, &result); err != nil {
		t.Fatalf("Call error: %v", err)
	}

	if result.ChainName != "plotchain-test" || result.Symbol != "PLOT" {
		t.Errorf("unexpected chain identity: %+v", result)
	}
}

func TestClient_ChainGetBlockByProofID_NotFound(t *testing.T) {
	env := setupTestEnv(t)

	var raw json.RawMessage
	err := env.client.Call("chain_getBlockByProofID", rpc.ProofIDParam{ProofID: types.Hash{0x01}.String()}, &raw)
	if err == nil {
		t.Fatal("expected error for non-existent block")
	}

	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != rpc.CodeNotFound {
		t.Errorf("error code = %d, want %d", rpcErr.Code, rpc.CodeNotFound)
	}
}

func TestClient_AccountGetBalance_UnknownIsZero(t *testing.T) {
	env := setupTestEnv(t)

	var pub types.PublicKey
	pub[0] = 0x42

	var result rpc.AccountResult
	if err := env.client.Call("account_getBalance", rpc.PublicKeyParam{PublicKey: pub.String()}, &result); err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if result.Balance != 0 {
		t.Errorf("balance = %d, want 0 for unknown account", result.Balance)
	}
}

func TestClient_Call_InvalidEndpoint(t *testing.T) {
	client := New("http://127.0.0.1:1/") // port 1 — should refuse

	var result rpc.ChainInfoResult
	err := client.Call("chain_getInfo", nil, &result)
	if err == nil {
		t.Fatal("expected connection error")
	}
}

func TestClient_Call_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	var raw json.RawMessage
	err := env.client.Call("nonexistent_method", nil, &raw)
	if err == nil {
		t.Fatal("expected error for unknown method")
	}

	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != rpc.CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", rpcErr.Code, rpc.CodeMethodNotFound)
	}
}
