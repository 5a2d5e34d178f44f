package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/maxpert/amqp-peer/auth"
	"github.com/maxpert/amqp-peer/config"
	"github.com/maxpert/amqp-peer/interfaces"
	"github.com/maxpert/amqp-peer/metrics"
)

// WebSocketSubprotocol is the subprotocol AMQP over WebSocket negotiates
const WebSocketSubprotocol = "amqp"

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.log = logger }
}

// WithMetrics records server and per connection metrics on collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Server) { s.metrics = collector }
}

// WithAuthenticator sets the credential store used by SASL PLAIN
func WithAuthenticator(authenticator interfaces.Authenticator) Option {
	return func(s *Server) { s.authenticator = authenticator }
}

// WithConnectionHook runs hook for every accepted connection before its
// first byte is read. Scripted tests use it to drive the peer by hand.
func WithConnectionHook(hook func(*Connection)) Option {
	return func(s *Server) { s.hook = hook }
}

// Server accepts AMQP 1.0 connections over TCP and WebSocket and binds a
// protocol driver to each one.
type Server struct {
	config        *config.AMQPConfig
	log           *zap.Logger
	metrics       *metrics.Collector
	authenticator interfaces.Authenticator
	mechanisms    *auth.Registry
	hook          func(*Connection)

	lifecycle lifecycle
	slots     *semaphore.Weighted
	upgrader  websocket.Upgrader

	mutex       sync.RWMutex
	listener    net.Listener
	wsListener  net.Listener
	wsServer    *http.Server
	connections map[string]*Connection
	wg          sync.WaitGroup

	nextID           atomic.Uint64
	totalConnections atomic.Int64
	failedPeers      atomic.Int64
	bytesIn          atomic.Int64
	bytesOut         atomic.Int64
}

var _ interfaces.Server = (*Server)(nil)

// New creates a server from cfg. When SASL PLAIN is enabled and no
// authenticator is given, the users file named in cfg is loaded.
func New(cfg *config.AMQPConfig, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config:      cfg,
		log:         zap.NewNop(),
		slots:       semaphore.NewWeighted(int64(cfg.Network.MaxConnections)),
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.Network.ReadBufferSize,
			WriteBufferSize: cfg.Network.WriteBufferSize,
			Subprotocols:    []string{WebSocketSubprotocol},
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Security.SASLEnabled {
		registry, err := auth.NewRegistryFor(cfg.Security.Mechanisms)
		if err != nil {
			return nil, err
		}
		s.mechanisms = registry
		if _, err := registry.Get("PLAIN"); err == nil && s.authenticator == nil {
			fileAuth, err := auth.NewFileAuthenticator(cfg.Security.UsersFile)
			if err != nil {
				return nil, err
			}
			s.authenticator = fileAuth
		}
	}
	return s, nil
}

// Start binds the configured listeners and begins accepting connections.
// It returns once the listeners are bound.
func (s *Server) Start(ctx context.Context) error {
	if err := s.lifecycle.transition(StateStarting); err != nil {
		return err
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.config.Network.Address)
	if err != nil {
		err = fmt.Errorf("failed to listen on %s: %w", s.config.Network.Address, err)
		s.lifecycle.fail(err)
		return err
	}

	var wsListener net.Listener
	if addr := s.config.Network.WebSocketAddress; addr != "" {
		wsListener, err = lc.Listen(ctx, "tcp", addr)
		if err != nil {
			listener.Close()
			err = fmt.Errorf("failed to listen on %s: %w", addr, err)
			s.lifecycle.fail(err)
			return err
		}
	}

	s.mutex.Lock()
	s.listener = listener
	s.wsListener = wsListener
	if wsListener != nil {
		s.wsServer = &http.Server{
			Handler:           http.HandlerFunc(s.handleWebSocket),
			ReadHeaderTimeout: s.config.Network.ConnectionTimeout,
		}
	}
	s.mutex.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(listener)
	}()
	s.log.Info("AMQP peer listening", zap.String("addr", listener.Addr().String()))

	if wsListener != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.wsServer.Serve(wsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("WebSocket listener stopped", zap.Error(err))
			}
		}()
		s.log.Info("AMQP peer listening for WebSocket", zap.String("addr", wsListener.Addr().String()))
	}

	return s.lifecycle.transition(StateRunning)
}

// Stop closes the listeners and every open connection, then waits for the
// connection goroutines until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	state := s.lifecycle.State()
	if state == StateStopped {
		return nil
	}
	if err := s.lifecycle.transition(StateStopping); err != nil {
		return err
	}

	s.mutex.Lock()
	listener, wsServer := s.listener, s.wsServer
	connections := make([]*Connection, 0, len(s.connections))
	for _, conn := range s.connections {
		connections = append(connections, conn)
	}
	s.mutex.Unlock()

	var errs []error
	if listener != nil {
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if wsServer != nil {
		if err := wsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, conn := range connections {
		conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("server shutdown timed out: %w", ctx.Err()))
		<-done
	}

	if err := errors.Join(errs...); err != nil {
		s.lifecycle.fail(err)
		return err
	}
	s.log.Info("AMQP peer stopped")
	return s.lifecycle.transition(StateStopped)
}

// Addr returns the bound TCP address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// WebSocketAddr returns the bound WebSocket address, or nil when disabled
func (s *Server) WebSocketAddr() net.Addr {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.wsListener == nil {
		return nil
	}
	return s.wsListener.Addr()
}

// State returns the server's lifecycle state
func (s *Server) State() LifecycleState {
	return s.lifecycle.State()
}

// Health returns the server health status
func (s *Server) Health() interfaces.HealthStatus {
	return s.lifecycle.Health()
}

// GetStats returns server statistics
func (s *Server) GetStats() *interfaces.ServerStats {
	s.mutex.RLock()
	open := len(s.connections)
	s.mutex.RUnlock()

	uptime := s.lifecycle.Uptime()
	if s.metrics != nil {
		s.metrics.UpdateServerUptime(uptime.Seconds())
	}
	return &interfaces.ServerStats{
		Uptime:           uptime,
		Connections:      open,
		TotalConnections: s.totalConnections.Load(),
		FailedPeers:      s.failedPeers.Load(),
		BytesReceived:    s.bytesIn.Load(),
		BytesSent:        s.bytesOut.Load(),
	}
}

// GetConnections returns information about active connections
func (s *Server) GetConnections() []interfaces.ConnectionInfo {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	infos := make([]interfaces.ConnectionInfo, 0, len(s.connections))
	for _, conn := range s.connections {
		infos = append(infos, conn.Info())
	}
	return infos
}

func (s *Server) acceptLoop(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error("Error accepting connection", zap.Error(err))
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if !s.slots.TryAcquire(1) {
			s.log.Warn("Connection limit reached, rejecting",
				zap.String("remote_addr", conn.RemoteAddr().String()),
				zap.Int("max_connections", s.config.Network.MaxConnections))
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.slots.Release(1)
			s.serve(conn, "tcp")
		}()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.slots.TryAcquire(1) {
		s.log.Warn("Connection limit reached, rejecting WebSocket",
			zap.String("remote_addr", r.RemoteAddr))
		http.Error(w, "connection limit reached", http.StatusServiceUnavailable)
		return
	}
	defer s.slots.Release(1)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()
	s.serve(newWebSocketTransport(ws), "websocket")
}

// serve runs one connection to completion
func (s *Server) serve(t transport, kind string) {
	id := "conn-" + strconv.FormatUint(s.nextID.Add(1), 10)
	conn, err := newConnection(s, id, kind, t)
	if err != nil {
		s.log.Error("Failed to set up connection", zap.String("connection_id", id), zap.Error(err))
		t.Close()
		return
	}

	s.mutex.Lock()
	if state := s.lifecycle.State(); state != StateRunning && state != StateStarting {
		s.mutex.Unlock()
		conn.Close()
		conn.closeTrace()
		return
	}
	s.connections[id] = conn
	s.mutex.Unlock()

	s.totalConnections.Add(1)
	if s.metrics != nil {
		s.metrics.RecordConnectionCreated()
	}

	conn.run()

	s.mutex.Lock()
	delete(s.connections, id)
	s.mutex.Unlock()

	if s.metrics != nil {
		s.metrics.RecordConnectionClosed()
	}
}
