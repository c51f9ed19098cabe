// Package server exposes script runs over WebSocket.
//
// Each connection gets its own scope on a shared async machine, so globals
// defined by one client are invisible to others while all clients share
// the machine's worker pool. Messages are JSON:
//
//	-> {"id": "1", "source": "1 + 1", "identifier": "calc.js"}
//	<- {"id": "1", "output": "2"}
//	<- {"id": "2", "error": "calc.js:1\n...", "kind": "ScriptError"}
//
// Responses are sent as runs complete, which is not necessarily the order
// requests arrived in. Closing the connection drains outstanding runs and
// tears the scope down.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nitely/v8-cffi/pkg/engine"
	"github.com/nitely/v8-cffi/pkg/engine/async"
)

// Request asks for one script run.
type Request struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	Identifier string `json:"identifier,omitempty"`
}

// Response carries the result of one run.
type Response struct {
	ID     string `json:"id"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler's logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithCheckOrigin sets the upgrade origin check. The default accepts any
// origin.
func WithCheckOrigin(f func(*http.Request) bool) Option {
	return func(h *Handler) { h.upgrader.CheckOrigin = f }
}

// Handler upgrades requests to WebSocket and serves runs on them.
type Handler struct {
	machine  *async.Machine
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
	active sync.WaitGroup
}

// NewHandler creates a Handler running scripts on m. m must stay alive
// while the handler serves connections.
func NewHandler(m *async.Machine, opts ...Option) *Handler {
	h := &Handler{
		machine: m,
		logger:  slog.Default(),
		conns:   make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("server: upgrade failed", "error", err)
		return
	}
	if !h.track(ws) {
		ws.Close()
		return
	}
	defer h.untrack(ws)

	scope := h.machine.NewScope()
	if err := scope.SetUp(); err != nil {
		h.logger.Warn("server: scope set up failed", "error", err)
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "scope unavailable"))
		return
	}
	logger := h.logger.With("scope", scope.Scope().ID().String(), "remote", r.RemoteAddr)
	logger.Debug("server: connection opened")

	c := &conn{ws: ws, logger: logger}
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("server: read failed", "error", err)
			}
			break
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.send(Response{Error: "malformed request: " + err.Error()})
			continue
		}
		c.wg.Add(1)
		go c.await(req.ID, scope.Run(req.Source, req.Identifier))
	}

	if err := scope.TearDown(); err != nil {
		logger.Warn("server: scope tear down failed", "error", err)
	}
	c.wg.Wait()
	logger.Debug("server: connection closed")
}

func (h *Handler) track(ws *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[ws] = struct{}{}
	h.active.Add(1)
	return true
}

func (h *Handler) untrack(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, ws)
	h.mu.Unlock()
	ws.Close()
	h.active.Done()
}

// Close refuses new connections, closes open ones and waits until their
// outstanding runs have drained and their scopes are torn down.
func (h *Handler) Close() error {
	h.mu.Lock()
	h.closed = true
	for ws := range h.conns {
		ws.Close()
	}
	h.mu.Unlock()
	h.active.Wait()
	return nil
}

type conn struct {
	ws     *websocket.Conn
	logger *slog.Logger
	mu     sync.Mutex
	wg     sync.WaitGroup
}

func (c *conn) await(id string, f *async.Future) {
	defer c.wg.Done()
	out, err := f.Await(context.Background())
	resp := Response{ID: id, Output: out}
	if err != nil {
		resp.Error = err.Error()
		var e *engine.Error
		if errors.As(err, &e) {
			resp.Kind = e.Kind.String()
		} else if errors.Is(err, engine.ErrContractViolation) {
			resp.Kind = "ContractViolation"
		}
	}
	c.send(resp)
}

func (c *conn) send(resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteJSON(resp); err != nil {
		c.logger.Debug("server: write failed", "id", resp.ID, "error", err)
	}
}
