package server

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"mcpdocs/internal/logging"
)

// ProtocolServer serves the MCP transport over HTTP: SSE downstream on
// GET /sse, client messages on POST /message. Each accepted connection gets
// a monotonically increasing id used in its log lines, and must finish the
// protocol handshake within the init timeout or it is dropped.
type ProtocolServer struct {
	server      *mcp.Server
	initTimeout time.Duration
	log         *zap.Logger

	connSeq atomic.Int64

	mu         sync.Mutex
	transports map[string]*mcp.SSEServerTransport
	// Handshake signalling. The initialized notification can arrive before
	// the accept path learns its session handle, so both orders are kept.
	waiters map[*mcp.ServerSession]chan struct{}
	inited  map[*mcp.ServerSession]bool
}

// NewProtocolServer wraps server with the HTTP transport plumbing.
func NewProtocolServer(server *mcp.Server, initTimeout time.Duration) *ProtocolServer {
	if initTimeout <= 0 {
		initTimeout = 30 * time.Second
	}
	return &ProtocolServer{
		server:      server,
		initTimeout: initTimeout,
		log:         logging.Get(logging.CategoryServer),
		transports:  make(map[string]*mcp.SSEServerTransport),
		waiters:     make(map[*mcp.ServerSession]chan struct{}),
		inited:      make(map[*mcp.ServerSession]bool),
	}
}

// SessionInitialized records a completed handshake. Wired into the MCP
// server's InitializedHandler.
func (ps *ProtocolServer) SessionInitialized(ss *mcp.ServerSession) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ch, ok := ps.waiters[ss]; ok {
		close(ch)
		delete(ps.waiters, ss)
		return
	}
	ps.inited[ss] = true
}

// Handler returns the HTTP handler for the protocol surface.
func (ps *ProtocolServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sse", ps.handleSSE)
	mux.HandleFunc("POST /message", ps.handleMessage)
	return mux
}

// handleSSE accepts one SSE connection and drives its session to completion.
func (ps *ProtocolServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	connID := ps.connSeq.Add(1)
	log := ps.log.With(zap.Int64("conn_id", connID))

	sessionID := fmt.Sprintf("%d-%d", connID, time.Now().UnixNano())
	transport := &mcp.SSEServerTransport{
		Endpoint: "/message?sessionid=" + sessionID,
		Response: w,
	}

	ps.mu.Lock()
	ps.transports[sessionID] = transport
	ps.mu.Unlock()
	defer func() {
		ps.mu.Lock()
		delete(ps.transports, sessionID)
		ps.mu.Unlock()
	}()

	log.Info("connection accepted", zap.String("session_id", sessionID))

	session, err := ps.server.Connect(r.Context(), transport, nil)
	if err != nil {
		log.Error("failed to start session", zap.Error(err))
		return
	}
	defer ps.forget(session)

	if !ps.awaitInit(session) {
		log.Error("session initialization timed out",
			zap.Duration("timeout", ps.initTimeout))
		_ = session.Close()
		return
	}
	log.Info("session initialized")

	if err := session.Wait(); err != nil {
		log.Warn("session ended with error", zap.Error(err))
	} else {
		log.Info("session closed")
	}
}

// handleMessage routes a client POST to its session's transport.
func (ps *ProtocolServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionid")
	if sessionID == "" {
		http.Error(w, "missing sessionid", http.StatusBadRequest)
		return
	}

	ps.mu.Lock()
	transport, ok := ps.transports[sessionID]
	ps.mu.Unlock()
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	transport.ServeHTTP(w, r)
}

// awaitInit blocks until the session's handshake completes or the init
// timeout elapses.
func (ps *ProtocolServer) awaitInit(ss *mcp.ServerSession) bool {
	ps.mu.Lock()
	if ps.inited[ss] {
		delete(ps.inited, ss)
		ps.mu.Unlock()
		return true
	}
	ch := make(chan struct{})
	ps.waiters[ss] = ch
	ps.mu.Unlock()

	timer := time.NewTimer(ps.initTimeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		ps.mu.Lock()
		delete(ps.waiters, ss)
		ps.mu.Unlock()
		return false
	}
}

func (ps *ProtocolServer) forget(ss *mcp.ServerSession) {
	ps.mu.Lock()
	delete(ps.waiters, ss)
	delete(ps.inited, ss)
	ps.mu.Unlock()
}
