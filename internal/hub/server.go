package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"cta_runtime/internal/core"
)

// CommandSender relays a client command to one engine (or "all").
type CommandSender interface {
	SendCommand(engine, cmd string, data map[string]any) error
}

// rpcRequest is a JSON-RPC 2.0 client frame.
type rpcRequest struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Jsonrpc string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

const (
	codeParseError   = -32700
	codeInvalidReq   = -32600
	codeUnknownMeth  = -32601
	codeUnauthorized = -32001
	codeInternal     = -32603
)

// Server terminates WebSocket and HTTP traffic for the hub.
type Server struct {
	hub      *Hub
	users    *UserStore
	tokens   *TokenIssuer
	commands CommandSender
	logger   core.ILogger

	upgrader   websocket.Upgrader
	ipLimiters sync.Map
	rateLimit  rate.Limit
	rateBurst  int

	mu  sync.Mutex
	srv *http.Server
}

func NewServer(hub *Hub, users *UserStore, tokens *TokenIssuer, commands CommandSender, logger core.ILogger) *Server {
	s := &Server{
		hub:       hub,
		users:     users,
		tokens:    tokens,
		commands:  commands,
		logger:    logger,
		rateLimit: 10,
		rateBurst: 20,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	return s
}

// Handler builds the HTTP mux so tests can mount it on httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/refresh", s.handleRefresh)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.mu.Lock()
	s.srv = &http.Server{Addr: addr, Handler: s.Handler()}
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("hub server listening", "addr", addr)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return s.Stop(context.Background())
	}
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
		"time":    time.Now().Unix(),
	})
}

// handleLogin exchanges credentials for an access/refresh token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := s.users.Verify(body.Username, body.Password); err != nil {
		if s.logger != nil {
			s.logger.Warn("login rejected", "username", body.Username)
		}
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	access, err := s.tokens.IssueAccess(body.Username)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	refresh, err := s.tokens.IssueRefresh(body.Username)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

// handleRefresh exchanges a refresh token for a new access token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	username, err := s.tokens.VerifyRefresh(body.RefreshToken)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	access, err := s.tokens.IssueAccess(username)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"access_token": access})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := remoteIP(r)
	if !s.ipLimiter(ip).Allow() {
		hubRejectedTotal.WithLabelValues("rate_limit").Inc()
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("websocket upgrade failed", "error", err.Error())
		}
		return
	}
	defer conn.Close()

	c := newClient(uuid.New().String(), s.hub.now())

	// a bearer token in the query authenticates the connection up front
	if token := r.URL.Query().Get("token"); token != "" {
		username, err := s.tokens.VerifyAccess(token)
		if err != nil {
			hubRejectedTotal.WithLabelValues("bad_token").Inc()
			conn.WriteJSON(notify("meta.error", map[string]any{"reason": "invalid token"}))
			return
		}
		c.username = username
	}

	s.hub.add(c)
	defer s.hub.remove(c)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writePump(conn, c)
	}()

	s.readPump(conn, c)
	c.close()
	wg.Wait()
}

func (s *Server) writePump(conn *websocket.Conn, c *client) {
	for {
		select {
		case msg := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				if s.logger != nil {
					s.logger.Warn("write failed", "client_id", c.id, "error", err.Error())
				}
				s.hub.remove(c)
				return
			}
		case <-c.done:
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (s *Server) readPump(conn *websocket.Conn, c *client) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.touch(s.hub.now())

		var req rpcRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			c.trySend(rpcResponse{Jsonrpc: "2.0", Error: &rpcError{Code: codeParseError, Message: "parse error"}}, s.hub.sendTimeout)
			continue
		}
		if resp := s.dispatch(c, &req); resp != nil {
			c.trySend(*resp, s.hub.sendTimeout)
		}
	}
}

// dispatch handles one JSON-RPC request. A nil return means no response is
// owed (notifications such as meta.pong without an id).
func (s *Server) dispatch(c *client, req *rpcRequest) *rpcResponse {
	fail := func(code int, msg string) *rpcResponse {
		return &rpcResponse{Jsonrpc: "2.0", ID: req.ID, Error: &rpcError{Code: code, Message: msg}}
	}
	ok := func(result any) *rpcResponse {
		if req.ID == nil {
			return nil
		}
		return &rpcResponse{Jsonrpc: "2.0", ID: req.ID, Result: result}
	}

	if req.Jsonrpc != "2.0" {
		return fail(codeInvalidReq, "jsonrpc must be 2.0")
	}

	if req.Method == "auth.login" {
		return s.rpcLogin(c, req, fail, ok)
	}
	if c.username == "" {
		return fail(codeUnauthorized, "authenticate first")
	}

	switch req.Method {
	case "sub.subscribe":
		var params struct {
			Topics []string `json:"topics"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return fail(codeInvalidReq, "bad params")
		}
		c.subscribe(params.Topics)
		return ok(map[string]any{"topics": c.subscriptions()})

	case "sub.unsubscribe":
		var params struct {
			Topics []string `json:"topics"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return fail(codeInvalidReq, "bad params")
		}
		c.unsubscribe(params.Topics)
		return ok(map[string]any{"topics": c.subscriptions()})

	case "engine.command":
		var params struct {
			Engine string         `json:"engine"`
			Cmd    string         `json:"cmd"`
			Data   map[string]any `json:"data"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Engine == "" || params.Cmd == "" {
			return fail(codeInvalidReq, "bad params")
		}
		if err := s.commands.SendCommand(params.Engine, params.Cmd, params.Data); err != nil {
			if s.logger != nil {
				s.logger.Error("command relay failed", "engine", params.Engine, "cmd", params.Cmd, "error", err.Error())
			}
			return fail(codeInternal, "command relay failed")
		}
		return ok(map[string]any{"sent": true})

	case "meta.pong":
		return ok(map[string]any{})

	default:
		return fail(codeUnknownMeth, "unknown method: "+req.Method)
	}
}

// rpcLogin authenticates a connection in-band, by bearer token or by
// username/password.
func (s *Server) rpcLogin(c *client, req *rpcRequest, fail func(int, string) *rpcResponse, ok func(any) *rpcResponse) *rpcResponse {
	var params struct {
		Token    string `json:"token"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return fail(codeInvalidReq, "bad params")
	}

	if params.Token != "" {
		username, err := s.tokens.VerifyAccess(params.Token)
		if err != nil {
			hubRejectedTotal.WithLabelValues("bad_token").Inc()
			return fail(codeUnauthorized, "invalid token")
		}
		c.username = username
		return ok(map[string]any{"authenticated": true, "username": username})
	}

	if err := s.users.Verify(params.Username, params.Password); err != nil {
		hubRejectedTotal.WithLabelValues("bad_credentials").Inc()
		return fail(codeUnauthorized, "invalid credentials")
	}
	c.username = params.Username
	return ok(map[string]any{"authenticated": true, "username": params.Username})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) ipLimiter(ip string) *rate.Limiter {
	if val, ok := s.ipLimiters.Load(ip); ok {
		return val.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(s.rateLimit, s.rateBurst)
	actual, _ := s.ipLimiters.LoadOrStore(ip, limiter)
	return actual.(*rate.Limiter)
}
