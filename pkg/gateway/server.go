package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/decaf/internal/metrics"
	"github.com/harun/decaf/internal/tracing"
	"github.com/harun/decaf/pkg/decaf"
	"github.com/harun/decaf/pkg/transport"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// DefaultPath is where the ACP websocket endpoint is mounted.
const DefaultPath = "/acp"

// AgentFactory starts the agent serving one websocket client.
type AgentFactory func(ctx context.Context, connID string) (transport.Stream, error)

// Server accepts ACP clients over websocket. Each client gets its own agent
// and its own decaf link.
type Server struct {
	path       string
	auth       *TokenAuth
	decaf      *decaf.Decaf
	startAgent AgentFactory
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	upgrader   websocket.Upgrader
	conns      *ConnRegistry

	server   *http.Server
	listener net.Listener

	// Parent of every link; cancelled on Stop.
	ctx    context.Context
	cancel context.CancelFunc
	links  sync.WaitGroup

	isShuttingDown bool
	shutdownMu     sync.RWMutex
}

// Config holds server configuration
type Config struct {
	Path       string
	Token      string
	Decaf      *decaf.Decaf
	StartAgent AgentFactory
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

// NewServer creates a new Server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Decaf == nil {
		return nil, fmt.Errorf("decaf is required")
	}
	if cfg.StartAgent == nil {
		return nil, fmt.Errorf("agent factory is required")
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		path:       cfg.Path,
		auth:       NewTokenAuth(cfg.Token),
		decaf:      cfg.Decaf,
		startAgent: cfg.StartAgent,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With().Str("module", "gateway").Logger(),
		conns:      NewConnRegistry(),
		ctx:        ctx,
		cancel:     cancel,
		upgrader: websocket.Upgrader{
			// ACP clients are editors and CLIs, not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Handler returns the HTTP routes: the websocket endpoint, /healthz and,
// when metrics are enabled, /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("path", s.path).
		Bool("auth", s.auth.Enabled()).
		Msg("Starting ACP websocket server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Websocket server error")
		}
	}()

	return nil
}

// Addr returns the address the server listens on, once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Connections returns the connected clients.
func (s *Server) Connections() []ConnInfo {
	return s.conns.List()
}

// Stop ends every link and shuts the listener down. Links get until ctx is
// done to finish.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Int("connections", s.conns.Count()).Msg("Shutting down ACP websocket server")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.links.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	s.logger.Info().Msg("ACP websocket server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": s.conns.Count(),
	})
}

// handleWebSocket upgrades the request and serves the client until either
// side goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.links.Add(1)
	s.shutdownMu.RUnlock()
	defer s.links.Done()

	if !s.auth.Authorize(r) {
		s.logger.Warn().Str("ip", r.RemoteAddr).Msg("Rejected unauthorized client")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	connID, err := gonanoid.New()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate connection id")
		_ = conn.Close()
		return
	}

	s.conns.Add(ConnInfo{ID: connID, RemoteAddr: r.RemoteAddr, ConnectedAt: time.Now()})
	defer s.conns.Remove(connID)

	s.serveConn(connID, conn)
}

func (s *Server) serveConn(connID string, conn *websocket.Conn) {
	ctx := tracing.WithConnID(s.ctx, connID)
	logger := tracing.LoggerFromContext(ctx, s.logger)
	client := transport.NewWebSocket(conn)

	logger.Info().Str("ip", conn.RemoteAddr().String()).Msg("Client connected")

	agent, err := s.startAgent(ctx, connID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start agent")
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "agent unavailable")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	if err := s.decaf.Run(ctx, client, agent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Link failed")
	}

	logger.Info().Msg("Client disconnected")
}
