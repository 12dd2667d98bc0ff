// Package server is the session/RPC layer: a supervisor owning the listening
// socket and one handler goroutine per accepted admin connection, with the
// roster of authenticated admins broadcast to every live session.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"seminarhub/internal/config"
	"seminarhub/internal/registry"
	"seminarhub/internal/store"
	"seminarhub/pkg/protocol"
)

// Server accepts admin connections, spawns a handler per connection and
// exposes start/stop to its owning process. Stop is safe while handlers are
// mid-request; their sockets are closed and in-flight work fails with a
// cancellation rather than hanging.
type Server struct {
	cfg      *config.Config
	engine   *store.Engine
	registry *registry.Registry
	metrics  *prometheus.Registry
	validate *validator.Validate
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu         sync.Mutex
	running    bool
	listener   net.Listener
	httpServer *http.Server
	handlers   map[*handler]struct{}
	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New wires a server around its collaborators. The registry's roster changes
// are fanned out to every authenticated connection.
func New(cfg *config.Config, engine *store.Engine, reg *registry.Registry, metrics *prometheus.Registry, log *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		engine:   engine,
		registry: reg,
		metrics:  metrics,
		validate: validator.New(),
		log:      log,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		handlers: make(map[*handler]struct{}),
	}
	reg.SetNotify(s.broadcastRoster)
	return s
}

// Start binds the listening socket and begins accepting connections. It fails
// with config.ErrConfigMissing when the store descriptor is incomplete and
// with ErrBind when the socket cannot be bound.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", s.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBind, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", s.handleHealth)

	s.listener = listener
	s.httpServer = &http.Server{Handler: mux}
	s.baseCtx, s.baseCancel = context.WithCancel(context.Background())
	s.running = true

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("accept loop terminated", zap.Error(err))
		}
	}()

	s.log.Info("server started", zap.String("addr", listener.Addr().String()))
	return nil
}

// Addr returns the bound listener address, empty when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop stops accepting connections, forces every open connection closed and
// clears the roster. In-flight persistence transactions run to completion or
// rollback on their own; the supervisor never interrupts one mid-flight.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	httpServer := s.httpServer
	s.httpServer = nil
	s.listener = nil
	handlers := make([]*handler, 0, len(s.handlers))
	for h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.baseCancel()
	s.mu.Unlock()

	if err := httpServer.Shutdown(ctx); err != nil && err != context.DeadlineExceeded {
		s.log.Warn("listener shutdown", zap.Error(err))
	}

	// Closing the sockets forces every handler out of its read loop; their
	// deferred cleanup performs the registry logout.
	for _, h := range handlers {
		_ = h.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("timed out waiting for connection handlers")
		s.registry.Clear()
		return ctx.Err()
	}

	s.registry.Clear()
	s.log.Info("server stopped")
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newConn(ws, s.cfg.Server.WriteTimeout)
	h := newHandler(conn, s.registry, s.engine, s.validate, s.log)

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.handlers[h] = struct{}{}
	ctx := s.baseCtx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		h.run(ctx)
		s.mu.Lock()
		delete(s.handlers, h)
		s.mu.Unlock()
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":        "ok",
		"active_admins": len(s.registry.ListActive()),
	})
}

// broadcastRoster pushes the roster to every authenticated connection after a
// login or logout. Delivery is best effort; a slow or dead connection only
// loses its own update.
func (s *Server) broadcastRoster(sessions []*registry.Session) {
	resp, err := protocol.OK(protocol.OpRosterUpdate, rosterEntries(sessions))
	if err != nil {
		s.log.Error("failed to encode roster update", zap.Error(err))
		return
	}

	s.mu.Lock()
	handlers := make([]*handler, 0, len(s.handlers))
	for h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		if !h.isAuthenticated() {
			continue
		}
		if err := h.conn.Send(resp); err != nil {
			s.log.Debug("roster update not delivered", zap.Error(err))
		}
	}
}
