// Package rpc implements the JSON-RPC 2.0 API server.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/klingon-tech/plotchain/internal/consolefeed"
	"github.com/klingon-tech/plotchain/internal/epoch"
	"github.com/klingon-tech/plotchain/internal/ledger"
	klog "github.com/klingon-tech/plotchain/internal/log"
	"github.com/klingon-tech/plotchain/internal/p2p"
	"github.com/klingon-tech/plotchain/pkg/types"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Config controls IP filtering and CORS for the RPC server. A zero-value
// Config allows all IPs and disables CORS.
type Config struct {
	AllowedIPs  []string
	CORSOrigins []string
}

// Server is the JSON-RPC 2.0 HTTP server. It also mounts a small set of
// plain REST endpoints (GET /v1/accounts) alongside the POST dispatcher.
type Server struct {
	addr        string
	chainName   string
	symbol      string
	genesisHash types.Hash

	ledger     *ledger.Ledger
	epochs     *epoch.Tracker
	p2pNode    *p2p.Node
	banManager *p2p.BanManager  // nil disables net_getBanList
	feedHub    *consolefeed.Hub // nil disables the GET /feed websocket upgrade

	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.
}

// New creates a new RPC server for the named chain. cfg controls IP
// filtering and CORS; omit it to allow every IP and disable CORS. p2pNode
// may be nil (disables tx broadcast and net_* peer endpoints).
func New(addr, chainName, symbol string, genesisHash types.Hash, l *ledger.Ledger, epochs *epoch.Tracker, p2pNode *p2p.Node, cfg ...Config) *Server {
	s := &Server{
		addr:        addr,
		chainName:   chainName,
		symbol:      symbol,
		genesisHash: genesisHash,
		ledger:      l,
		epochs:      epochs,
		p2pNode:     p2pNode,
		logger:      klog.WithComponent("rpc"),
	}

	if len(cfg) > 0 {
		s.allowedNets = parseAllowedIPs(cfg[0].AllowedIPs)
		s.corsOrigins = cfg[0].CORSOrigins
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)
	mux.HandleFunc("/v1/accounts", s.handleAccountsREST)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/feed", s.handleFeed)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// SetBanManager sets the ban manager backing net_getBanList.
func (s *Server) SetBanManager(bm *p2p.BanManager) {
	s.banManager = bm
}

// SetFeedHub attaches the console/TUI metrics feed at GET /feed. Until
// this is called, /feed responds 404.
func (s *Server) SetFeedHub(hub *consolefeed.Hub) {
	s.feedHub = hub
}

// handleFeed upgrades GET /feed to a websocket connection registered
// with the attached consolefeed.Hub.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if s.feedHub == nil {
		http.NotFound(w, r)
		return
	}
	if !s.checkIPAllowed(w, r) {
		return
	}
	s.feedHub.ServeWS(w, r)
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start begins listening and serving in a background goroutine. It
// returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// handleRequest is the main HTTP handler for JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if !s.checkIPAllowed(w, r) {
		return
	}
	s.setCORSHeaders(w, r)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, `jsonrpc must be "2.0"`)
		return
	}

	result, rpcErr := s.dispatch(&req)
	if rpcErr != nil {
		writeJSON(w, Response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID})
		return
	}
	writeJSON(w, Response{JSONRPC: "2.0", Result: result, ID: req.ID})
}

// handleAccountsREST serves GET /v1/accounts — a plain REST convenience
// endpoint over the same listing logic as account_list.
func (s *Server) handleAccountsREST(w http.ResponseWriter, r *http.Request) {
	if !s.checkIPAllowed(w, r) {
		return
	}
	s.setCORSHeaders(w, r)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "only GET method is allowed", http.StatusMethodNotAllowed)
		return
	}

	result, rpcErr := s.handleAccountList()
	if rpcErr != nil {
		http.Error(w, rpcErr.Message, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// dispatch routes a request to the appropriate handler.
func (s *Server) dispatch(req *Request) (interface{}, *Error) {
	switch req.Method {
	case "chain_getInfo":
		return s.handleChainGetInfo()
	case "chain_getHeads":
		return s.handleChainGetHeads()
	case "chain_getBlockByProofID":
		return s.handleChainGetBlockByProofID(req)
	case "chain_getBlockByContentID":
		return s.handleChainGetBlockByContentID(req)
	case "chain_getTransaction":
		return s.handleChainGetTransaction(req)
	case "account_getBalance":
		return s.handleAccountGetBalance(req)
	case "account_list":
		return s.handleAccountList()
	case "tx_submit":
		return s.handleTxSubmit(req)
	case "mempool_getInfo":
		return s.handleMempoolGetInfo()
	case "mempool_getContent":
		return s.handleMempoolGetContent()
	case "net_getPeerInfo":
		return s.handleNetGetPeerInfo()
	case "net_getNodeInfo":
		return s.handleNetGetNodeInfo()
	case "net_getBanList":
		return s.handleNetGetBanList()
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

// writeJSON writes a JSON-RPC response.
func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes a JSON-RPC error response.
func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, Response{JSONRPC: "2.0", Error: &Error{Code: code, Message: message}, ID: id})
}

// checkIPAllowed enforces the IP allowlist, writing a 403 and returning
// false if the caller is not permitted.
func (s *Server) checkIPAllowed(w http.ResponseWriter, r *http.Request) bool {
	if len(s.allowedNets) == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil || !s.isIPAllowed(ip) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// isIPAllowed checks if the IP is in the allowed networks list.
func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// setCORSHeaders adds CORS headers based on the configured origins.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	allowed := false
	for _, o := range s.corsOrigins {
		if o == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			allowed = true
			break
		}
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			allowed = true
			break
		}
	}

	if allowed {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}
}

// parseParams unmarshals the request params into the given target.
func parseParams(req *Request, target interface{}) *Error {
	if req.Params == nil {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}
	data, err := json.Marshal(req.Params)
	if err != nil {
		return &Error{Code: CodeInvalidParams, Message: "invalid params"}
	}
	if err := json.Unmarshal(data, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}
