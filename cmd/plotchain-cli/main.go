// plotchain-cli is a command-line client for interacting with a plotchaind node.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/klingon-tech/plotchain/config"
	"github.com/klingon-tech/plotchain/internal/rpc"
	"github.com/klingon-tech/plotchain/internal/rpcclient"
	"github.com/klingon-tech/plotchain/internal/wallet"
	"github.com/klingon-tech/plotchain/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	rpcURL := "http://127.0.0.1:8644"
	dataDir := config.DefaultDataDir()
	network := config.Mainnet

	// Scan for --rpc, --datadir, --network before the subcommand.
	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = config.NetworkType(args[1])
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = config.NetworkType(args[0][len("--network="):])
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	ksDir := (&config.Config{DataDir: dataDir, Network: network}).KeystoreDir()
	client := rpcclient.New(rpcURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		cmdStatus(client)
	case "block":
		cmdBlock(client, cmdArgs)
	case "tx":
		cmdTx(client, cmdArgs)
	case "balance":
		cmdBalance(client, cmdArgs)
	case "accounts":
		cmdAccounts(client)
	case "mempool":
		cmdMempool(client)
	case "peers":
		cmdPeers(client)
	case "send":
		cmdSend(client, cmdArgs, ksDir)
	case "wallet":
		cmdWallet(cmdArgs, ksDir)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: plotchain-cli [global flags] <command> [flags]

Global flags:
  --rpc <url>         RPC endpoint (default http://127.0.0.1:8644)
  --datadir <dir>     Data directory (for keystore lookups)
  --network <net>     mainnet (default) or testnet

Commands:
  status                          Show chain status
  block <proofID|contentID>       Show block details
  tx <txID>                       Show transaction details
  balance <pubkey>                Show account balance
  accounts                        List known accounts
  mempool                         Show mempool stats
  peers                           Show connected peers

  send --wallet <w> --to <pubkey> --amount <amt>
                                  Send a credit transaction

  wallet create --name <n>        Create a new wallet
  wallet import --name <n> --mnemonic "..."
                                  Import wallet from mnemonic
  wallet list                     List wallets
  wallet address --wallet <w>     Show a wallet's public key
`)
}

// ── status ──────────────────────────────────────────────────────────────

func cmdStatus(client *rpcclient.Client) {
	var info rpc.ChainInfoResult
	if err := client.Call("chain_getInfo", nil, &info); err != nil {
		fatal("chain_getInfo: %v", err)
	}

	fmt.Printf("Chain:    %s (%s)\n", info.ChainName, info.Symbol)
	fmt.Printf("Genesis:  %s\n", info.GenesisHash)
	fmt.Printf("Timeslot: %d\n", info.CurrentTimeslot)
	fmt.Printf("Epoch:    %d\n", info.CurrentEpoch)
	fmt.Printf("Tip:      %s (height %d)\n", info.TipContentID, info.TipHeight)
	fmt.Printf("Forks:    %d\n", info.ForkCount)

	var node rpc.NodeInfoResult
	if err := client.Call("net_getNodeInfo", nil, &node); err == nil {
		var peers rpc.PeerInfoResult
		if err := client.Call("net_getPeerInfo", nil, &peers); err == nil {
			fmt.Printf("Peers:    %d\n", peers.Count)
		}
	}
}

// ── block ───────────────────────────────────────────────────────────────

func cmdBlock(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: plotchain-cli block <proofID|contentID>")
	}

	id := args[0]
	var result rpc.BlockResult
	err := client.Call("chain_getBlockByProofID", rpc.ProofIDParam{ProofID: id}, &result)
	if err != nil {
		// Fall back to content ID lookup; a single ID namespace doesn't
		// distinguish the two, so try both rather than ask the caller which.
		if err2 := client.Call("chain_getBlockByContentID", rpc.ContentIDParam{ContentID: id}, &result); err2 != nil {
			fatal("chain_getBlockByProofID: %v", err)
		}
	}

	fmt.Printf("Height:       %d\n", result.Height)
	fmt.Printf("Epoch:        %d\n", result.EpochIndex)
	fmt.Printf("Timeslot:     %d\n", result.Timeslot)
	fmt.Printf("Proof ID:     %s\n", result.ProofID)
	fmt.Printf("Content ID:   %s\n", result.ContentID)
	fmt.Printf("Parent:       %s\n", result.ParentContentID)
	fmt.Printf("Farmer:       %s\n", result.FarmerPublicKey)
	fmt.Printf("Reward:       %s\n", formatAmount(result.CoinbaseReward))
	fmt.Printf("Transactions: %d\n", len(result.TxIDs))
	for i, id := range result.TxIDs {
		fmt.Printf("  [%d] %s\n", i, id)
	}
	if len(result.Children) > 0 {
		fmt.Printf("Children:     %d\n", len(result.Children))
	}
}

// ── tx ──────────────────────────────────────────────────────────────────

func cmdTx(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: plotchain-cli tx <txID>")
	}

	var result rpc.TxResult
	if err := client.Call("chain_getTransaction", rpc.TxIDParam{TxID: args[0]}, &result); err != nil {
		fatal("chain_getTransaction: %v", err)
	}

	fmt.Printf("Kind:   %s\n", result.Kind)
	if result.From != "" {
		fmt.Printf("From:   %s\n", result.From)
	}
	fmt.Printf("To:     %s\n", result.To)
	if result.Amount > 0 {
		fmt.Printf("Amount: %s\n", formatAmount(result.Amount))
	}
	if result.Reward > 0 {
		fmt.Printf("Reward: %s\n", formatAmount(result.Reward))
	}
	if result.Nonce > 0 {
		fmt.Printf("Nonce:  %d\n", result.Nonce)
	}
}

// ── balance ─────────────────────────────────────────────────────────────

func cmdBalance(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: plotchain-cli balance <pubkey>")
	}

	var result rpc.AccountResult
	if err := client.Call("account_getBalance", rpc.PublicKeyParam{PublicKey: args[0]}, &result); err != nil {
		fatal("account_getBalance: %v", err)
	}

	fmt.Printf("Account: %s\n", result.PublicKey)
	fmt.Printf("Balance: %s\n", formatAmount(result.Balance))
	fmt.Printf("Nonce:   %d\n", result.Nonce)
}

// ── accounts ────────────────────────────────────────────────────────────

func cmdAccounts(client *rpcclient.Client) {
	var result rpc.AccountsResult
	if err := client.Call("account_list", nil, &result); err != nil {
		fatal("account_list: %v", err)
	}

	fmt.Printf("Accounts: %d\n", result.Count)
	for _, acct := range result.Accounts {
		fmt.Printf("  %s  %s  (nonce %d)\n", acct.PublicKey, formatAmount(acct.Balance), acct.Nonce)
	}
}

// ── mempool ─────────────────────────────────────────────────────────────

func cmdMempool(client *rpcclient.Client) {
	var info rpc.MempoolInfoResult
	if err := client.Call("mempool_getInfo", nil, &info); err != nil {
		fatal("mempool_getInfo: %v", err)
	}
	fmt.Printf("Count: %d\n", info.Count)

	if info.Count > 0 {
		var content rpc.MempoolContentResult
		if err := client.Call("mempool_getContent", nil, &content); err != nil {
			fatal("mempool_getContent: %v", err)
		}
		fmt.Println("Pending:")
		for _, id := range content.TxIDs {
			fmt.Printf("  %s\n", id)
		}
	}
}

// ── peers ───────────────────────────────────────────────────────────────

func cmdPeers(client *rpcclient.Client) {
	var node rpc.NodeInfoResult
	if err := client.Call("net_getNodeInfo", nil, &node); err != nil {
		fatal("net_getNodeInfo: %v", err)
	}

	fmt.Printf("Node ID: %s\n", node.ID)
	for _, a := range node.Addrs {
		fmt.Printf("  Listen: %s\n", a)
	}

	var peers rpc.PeerInfoResult
	if err := client.Call("net_getPeerInfo", nil, &peers); err != nil {
		fatal("net_getPeerInfo: %v", err)
	}

	fmt.Printf("Peers: %d\n", peers.Count)
	for _, p := range peers.Peers {
		fmt.Printf("  %s  source=%s  connected=%s\n", p.ID, p.Source, p.ConnectedAt)
	}
}

// ── send ────────────────────────────────────────────────────────────────

func cmdSend(client *rpcclient.Client, args []string, ksDir string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	toHex := fs.String("to", "", "Recipient public key (hex)")
	amountStr := fs.String("amount", "", "Amount to send (e.g. 1.5)")
	fs.Parse(args)

	if *walletName == "" || *toHex == "" || *amountStr == "" {
		fatal("Usage: plotchain-cli send --wallet <name> --to <pubkey> --amount <amt>")
	}

	amount, err := parseAmount(*amountStr)
	if err != nil {
		fatal("invalid amount: %v", err)
	}

	toRaw, err := hex.DecodeString(*toHex)
	if err != nil {
		fatal("invalid recipient public key: %v", err)
	}
	to, err := types.PublicKeyFromBytes(toRaw)
	if err != nil {
		fatal("invalid recipient public key: %v", err)
	}

	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}

	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	seed, err := ks.Load(*walletName, password)
	if err != nil {
		fatal("unlock wallet: %v", err)
	}
	key, err := wallet.IdentityFromSeed(seed)
	if err != nil {
		fatal("derive identity: %v", err)
	}
	for i := range seed {
		seed[i] = 0
	}

	from, err := key.PublicKey()
	if err != nil {
		fatal("derive public key: %v", err)
	}

	var account rpc.AccountResult
	if err := client.Call("account_getBalance", rpc.PublicKeyParam{PublicKey: from.String()}, &account); err != nil {
		fatal("account_getBalance: %v", err)
	}

	tx := types.NewCredit(from, to, amount, account.Nonce+1)
	txID, err := tx.ID()
	if err != nil {
		fatal("compute tx id: %v", err)
	}
	sig, err := key.Sign(txID)
	if err != nil {
		fatal("sign transaction: %v", err)
	}
	tx.Signature = sig

	var result rpc.TxSubmitResult
	if err := client.Call("tx_submit", rpc.TxSubmitParam{Transaction: &tx}, &result); err != nil {
		fatal("tx_submit: %v", err)
	}

	fmt.Printf("Submitted: %s\n", result.TxID)
}

// ── wallet ──────────────────────────────────────────────────────────────

func cmdWallet(args []string, ksDir string) {
	if len(args) < 1 {
		fatal("Usage: plotchain-cli wallet <create|import|list|address> [flags]")
	}

	switch args[0] {
	case "create":
		cmdWalletCreate(args[1:], ksDir)
	case "import":
		cmdWalletImport(args[1:], ksDir)
	case "list":
		cmdWalletList(ksDir)
	case "address":
		cmdWalletAddress(args[1:], ksDir)
	default:
		fatal("Unknown wallet command: %s\nUsage: plotchain-cli wallet <create|import|list|address> [flags]", args[0])
	}
}

func cmdWalletCreate(args []string, ksDir string) {
	fs := flag.NewFlagSet("wallet create", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: plotchain-cli wallet create --name <name>")
	}

	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		fatal("generate mnemonic: %v", err)
	}

	fmt.Println("Mnemonic (write this down!):")
	fmt.Printf("  %s\n\n", mnemonic)

	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}

	createWallet(ksDir, *name, mnemonic, password)
}

func cmdWalletImport(args []string, ksDir string) {
	fs := flag.NewFlagSet("wallet import", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	mnemonic := fs.String("mnemonic", "", "BIP-39 mnemonic (24 words)")
	fs.Parse(args)

	if *name == "" || *mnemonic == "" {
		fatal("Usage: plotchain-cli wallet import --name <name> --mnemonic \"word1 word2 ...\"")
	}
	if !wallet.ValidateMnemonic(*mnemonic) {
		fatal("invalid mnemonic")
	}

	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}

	createWallet(ksDir, *name, *mnemonic, password)
}

// createWallet derives the identity a mnemonic produces and stores it
// under name, encrypted with password. Shared by wallet create and
// wallet import since both end the same way once a mnemonic exists.
func createWallet(ksDir, name, mnemonic string, password []byte) {
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fatal("derive seed: %v", err)
	}

	key, err := wallet.IdentityFromSeed(seed)
	if err != nil {
		fatal("derive identity: %v", err)
	}
	pub, err := key.PublicKey()
	if err != nil {
		fatal("derive public key: %v", err)
	}

	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	if err := ks.Create(name, seed, password, wallet.DefaultParams()); err != nil {
		fatal("create wallet: %v", err)
	}
	for i := range seed {
		seed[i] = 0
	}

	if err := ks.SetAccount(name, wallet.AccountEntry{Name: "default", PublicKey: pub.String()}); err != nil {
		fatal("save account: %v", err)
	}

	fmt.Printf("Wallet created: %s\n", name)
	fmt.Printf("Public key: %s\n", pub.String())
}

func cmdWalletList(ksDir string) {
	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}

	names, err := ks.List()
	if err != nil {
		fatal("list wallets: %v", err)
	}

	if len(names) == 0 {
		fmt.Println("No wallets found.")
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func cmdWalletAddress(args []string, ksDir string) {
	fs := flag.NewFlagSet("wallet address", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	fs.Parse(args)

	if *walletName == "" {
		fatal("Usage: plotchain-cli wallet address --wallet <name>")
	}

	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}

	acct, err := ks.GetAccount(*walletName)
	if err != nil {
		fatal("get account: %v", err)
	}
	if acct == nil {
		fmt.Println("No identity derived yet.")
		return
	}
	fmt.Println(acct.PublicKey)
}

// ── amount helpers ──────────────────────────────────────────────────────

// formatAmount converts raw base units to a human-readable decimal string.
func formatAmount(units uint64) string {
	whole := units / config.Coin
	frac := units % config.Coin
	return fmt.Sprintf("%d.%09d", whole, frac)
}

// parseAmount converts a decimal string to raw base units.
func parseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("negative amount")
	}

	parts := strings.SplitN(s, ".", 2)

	whole, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid whole part: %w", err)
	}

	var frac uint64
	if len(parts) == 2 {
		fracStr := parts[1]
		if len(fracStr) > config.Decimals {
			return 0, fmt.Errorf("too many decimal places (max %d)", config.Decimals)
		}
		fracStr = fracStr + strings.Repeat("0", config.Decimals-len(fracStr))
		frac, err = strconv.ParseUint(fracStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid fractional part: %w", err)
		}
	}

	if whole > math.MaxUint64/config.Coin {
		return 0, fmt.Errorf("amount too large")
	}
	result := whole * config.Coin
	if result > math.MaxUint64-frac {
		return 0, fmt.Errorf("amount too large")
	}

	return result + frac, nil
}

// ── password / error helpers ────────────────────────────────────────────

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return password, nil
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
