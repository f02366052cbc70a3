package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"planchain/core"
	"planchain/crypto"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	rateLimitWindow = time.Minute
	maxTxPerWindow  = 60
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
	codeNotFound       = -32004
	codeForbidden      = -32003
	codeConflict       = -32009
)

type rateLimiter struct {
	count       int
	windowStart time.Time
}

type Server struct {
	node *core.Node

	mu           sync.Mutex
	rateLimiters map[string]*rateLimiter
	authToken    string
}

// Options configures optional server behaviour.
type Options struct {
	// AuthToken guards mutating methods. Empty disables authentication.
	AuthToken string
}

func NewServer(node *core.Node, opts Options) *Server {
	return &Server{
		node:         node,
		rateLimiters: make(map[string]*rateLimiter),
		authToken:    strings.TrimSpace(opts.AuthToken),
	}
}

// Router mounts the RPC endpoint plus health and metrics probes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) Start(addr string) error {
	slog.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	if mutatingMethods[req.Method] {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		if !s.allowSource(clientSource(r), time.Now()) {
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
			return
		}
	}

	switch req.Method {
	case "registry_createPlan":
		s.handleRegistryCreatePlan(w, r, req)
	case "registry_getPlan":
		s.handleRegistryGetPlan(w, r, req)
	case "registry_listPlans":
		s.handleRegistryListPlans(w, r, req)
	case "registry_owner":
		s.handleRegistryOwner(w, r, req)
	case "plan_get":
		s.handlePlanGet(w, r, req)
	case "plan_purchase":
		s.handlePlanPurchase(w, r, req)
	case "plan_cancel":
		s.handlePlanCancel(w, r, req)
	case "plan_requestRefund":
		s.handlePlanRequestRefund(w, r, req)
	case "plan_withdraw":
		s.handlePlanWithdraw(w, r, req)
	case "plan_forceReclaim":
		s.handlePlanForceReclaim(w, r, req)
	case "plan_escrowOf":
		s.handlePlanEscrowOf(w, r, req)
	case "plan_previewDiscount":
		s.handlePlanPreviewDiscount(w, r, req)
	case "token_ownerOf":
		s.handleTokenOwnerOf(w, r, req)
	case "token_balanceOf":
		s.handleTokenBalanceOf(w, r, req)
	case "token_tokenOfOwnerByIndex":
		s.handleTokenOfOwnerByIndex(w, r, req)
	case "token_tokenURI":
		s.handleTokenURI(w, r, req)
	case "token_totalSupply":
		s.handleTokenTotalSupply(w, r, req)
	case "token_supportsInterface":
		s.handleTokenSupportsInterface(w, r, req)
	case "ticket_createEvent":
		s.handleTicketCreateEvent(w, r, req)
	case "ticket_getEvent":
		s.handleTicketGetEvent(w, r, req)
	case "ticket_listEvents":
		s.handleTicketListEvents(w, r, req)
	case "ticket_purchase":
		s.handleTicketPurchase(w, r, req)
	case "ticket_cancel":
		s.handleTicketCancel(w, r, req)
	case "ticket_refund":
		s.handleTicketRefund(w, r, req)
	case "ticket_withdraw":
		s.handleTicketWithdraw(w, r, req)
	case "market_getBalance":
		s.handleMarketGetBalance(w, r, req)
	case "market_fund":
		s.handleMarketFund(w, r, req)
	case "market_listEvents":
		s.handleMarketListEvents(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method '%s' not found", req.Method), nil)
	}
}

// mutatingMethods require bearer auth and count against the rate limit.
var mutatingMethods = map[string]bool{
	"registry_createPlan": true,
	"plan_purchase":       true,
	"plan_cancel":         true,
	"plan_requestRefund":  true,
	"plan_withdraw":       true,
	"plan_forceReclaim":   true,
	"ticket_createEvent":  true,
	"ticket_purchase":     true,
	"ticket_cancel":       true,
	"ticket_refund":       true,
	"ticket_withdraw":     true,
	"market_fund":         true,
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string, now time.Time) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.rateLimiters[source]
	if !ok {
		limiter = &rateLimiter{windowStart: now}
		s.rateLimiters[source] = limiter
	}
	if now.Sub(limiter.windowStart) >= rateLimitWindow {
		limiter.windowStart = now
		limiter.count = 0
	}
	if limiter.count >= maxTxPerWindow {
		return false
	}
	limiter.count++
	return true
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseAddress(raw string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return out, err
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.PlanPrefix, addr[:]).String()
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func singleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) == 0 {
		return fmt.Errorf("parameter object required")
	}
	return json.Unmarshal(req.Params[0], out)
}
