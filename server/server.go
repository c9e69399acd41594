// Package server exposes the dashboard surface: a small REST API for
// fetching state and submitting mutations, plus a WebSocket endpoint that
// streams change events to live viewers.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/smallnest/roadclaw/bus"
	"github.com/smallnest/roadclaw/config"
	"github.com/smallnest/roadclaw/internal/logger"
	"github.com/smallnest/roadclaw/mutate"
	"github.com/smallnest/roadclaw/watch"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The dashboard is a local tool; cross-origin pages on the same
		// machine are expected.
		return true
	},
}

// Server is the dashboard HTTP/WebSocket server. All mutations it accepts
// go through the gateway; all change events reach viewers through the
// broadcaster.
type Server struct {
	cfg         *config.Config
	gateway     *mutate.Gateway
	broadcaster *bus.Broadcaster

	httpServer *http.Server

	mu      sync.RWMutex
	running bool

	connections   map[string]*Connection
	connectionsMu sync.RWMutex

	watchers   map[string]*watch.Watcher
	watchersMu sync.Mutex

	// ctx outlives individual requests; watchers are bound to it, not to
	// the request that first named their path.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a dashboard server.
func New(cfg *config.Config, gateway *mutate.Gateway, broadcaster *bus.Broadcaster) *Server {
	return &Server{
		cfg:         cfg,
		gateway:     gateway,
		broadcaster: broadcaster,
		connections: make(map[string]*Connection),
		watchers:    make(map[string]*watch.Watcher),
	}
}

// Start launches the server. It returns once the listener goroutine is up.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.ctx = ctx
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      s.routes(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Dashboard server started",
			zap.String("addr", s.httpServer.Addr),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Dashboard server error", zap.Error(err))
		}
	}()

	// Watch the default project so external edits reach viewers even
	// before the first WebSocket client names a path.
	if s.cfg.Project.Path != "" {
		if err := s.ensureWatcher(ctx, s.cfg.Project.Path); err != nil {
			logger.Warn("Failed to watch default project",
				zap.String("path", s.cfg.Project.Path),
				zap.Error(err),
			)
		}
	}

	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()

	return nil
}

// routes builds the request mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/roadmap", s.handleRoadmap)
	mux.HandleFunc("/api/deps", s.handleDeps)
	mux.HandleFunc("/api/mutations", s.handleMutations)
	mux.HandleFunc("/api/journal", s.handleJournal)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Stop shuts the server down and closes all live connections.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	s.closeAllConnections()

	s.watchersMu.Lock()
	for path, w := range s.watchers {
		_ = w.Close()
		delete(s.watchers, path)
	}
	s.watchersMu.Unlock()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown dashboard server", zap.Error(err))
		}
	}

	logger.Info("Dashboard server stopped")
	return nil
}

// IsRunning reports whether the server has been started and not stopped.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
}

// ensureWatcher starts a change watcher for path if one is not running yet.
// Watcher changes are bridged onto the broadcaster so every session on that
// path sees external edits.
func (s *Server) ensureWatcher(ctx context.Context, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.watchersMu.Lock()
	defer s.watchersMu.Unlock()

	if _, ok := s.watchers[path]; ok {
		return nil
	}

	debounce := time.Duration(s.cfg.Watch.DebounceMs) * time.Millisecond
	w, err := watch.New(path, debounce)
	if err != nil {
		return err
	}
	s.watchers[path] = w
	w.Start(ctx)

	go s.bridgeChanges(ctx, path, w)
	return nil
}

// bridgeChanges forwards debounced external changes to the broadcaster.
// Changes whose stamp matches the gateway's own last save are echoes of a
// mutation this process already announced, and are dropped.
func (s *Server) bridgeChanges(ctx context.Context, path string, w *watch.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-w.Changes():
			if !ok {
				return
			}
			if change.Roadmap == nil {
				continue
			}
			if change.Roadmap.Metadata.LastModified.Equal(s.gateway.LastSaved(path)) {
				logger.Debug("Suppressing own-write echo",
					zap.String("path", path),
				)
				continue
			}

			s.broadcaster.Publish(path, bus.NewEvent(
				bus.EventProjectModified,
				change.Roadmap.Metadata.Name,
				map[string]interface{}{
					"tasks":         len(change.Roadmap.Tasks),
					"last_modified": change.Roadmap.Metadata.LastModified,
				},
			))
		}
	}
}

// handleWebSocket upgrades the connection and streams change events for
// one project path until the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = s.cfg.Project.Path
	}
	if path == "" {
		http.Error(w, "project path not specified", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	connection := NewConnection(conn, s.cfg.Server.PingInterval, s.cfg.Server.PongTimeout)
	s.addConnection(connection)

	logger.Info("Viewer connected",
		zap.String("session_id", connection.ID),
		zap.String("path", path),
		zap.String("remote_addr", r.RemoteAddr),
	)

	if err := s.ensureWatcher(s.ctx, path); err != nil {
		logger.Warn("Failed to watch project for viewer",
			zap.String("path", path),
			zap.Error(err),
		)
	}

	session := s.broadcaster.Subscribe(path)

	welcome := bus.NewEvent(bus.EventWelcome, path, map[string]interface{}{
		"session_id": session.ID,
	})
	if err := connection.SendJSON(welcome); err != nil {
		logger.Error("Failed to send welcome",
			zap.String("session_id", connection.ID),
			zap.Error(err),
		)
	}

	go connection.heartbeat()
	go s.writeEvents(connection, session)
	go s.readMessages(connection, session)
}

// writeEvents pumps broadcast events onto the wire until the session
// channel closes.
func (s *Server) writeEvents(conn *Connection, session *bus.Session) {
	for event := range session.C {
		if err := conn.SendJSON(event); err != nil {
			logger.Error("Failed to send event",
				zap.String("session_id", conn.ID),
				zap.String("event", string(event.Type)),
				zap.Error(err),
			)
			return
		}
	}
}

// readMessages drains client messages. Viewers are read-mostly; the only
// inbound message is an application-level ping.
func (s *Server) readMessages(conn *Connection, session *bus.Session) {
	defer func() {
		session.Unsubscribe()
		conn.Close()
		s.removeConnection(conn.ID)
		logger.Info("Viewer disconnected",
			zap.String("session_id", conn.ID),
		)
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Error("WebSocket error",
					zap.String("session_id", conn.ID),
					zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if isPing(data) {
			_ = conn.SendJSON(map[string]string{"type": "pong"})
		}
	}
}

func isPing(data []byte) bool {
	return string(data) == `{"type":"ping"}`
}

func (s *Server) closeAllConnections() {
	s.connectionsMu.Lock()
	defer s.connectionsMu.Unlock()

	for id, conn := range s.connections {
		conn.Close()
		delete(s.connections, id)
	}
}

func (s *Server) addConnection(conn *Connection) {
	s.connectionsMu.Lock()
	defer s.connectionsMu.Unlock()
	s.connections[conn.ID] = conn
}

func (s *Server) removeConnection(id string) {
	s.connectionsMu.Lock()
	defer s.connectionsMu.Unlock()
	delete(s.connections, id)
}

// ConnectionCount returns the number of live WebSocket connections.
func (s *Server) ConnectionCount() int {
	s.connectionsMu.RLock()
	defer s.connectionsMu.RUnlock()
	return len(s.connections)
}

// Connection is one live WebSocket viewer. Writes are serialized through a
// mutex because the event pump and the heartbeat share the socket.
type Connection struct {
	*websocket.Conn
	ID           string
	pingInterval time.Duration
	pongTimeout  time.Duration
	mu           sync.Mutex
	closed       bool
}

// NewConnection wraps a raw WebSocket connection.
func NewConnection(ws *websocket.Conn, pingInterval, pongTimeout time.Duration) *Connection {
	return &Connection{
		Conn:         ws,
		ID:           uuid.New().String(),
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
	}
}

// SendJSON writes a JSON message to the client.
func (c *Connection) SendJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection closed")
	}
	return c.WriteJSON(v)
}

func (c *Connection) heartbeat() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(c.pongTimeout))
	})

	for range ticker.C {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		if err := c.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
			c.mu.Unlock()
			return
		}
		if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}
}

// Close sends a close frame and closes the socket. Safe to call more than
// once.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.WriteMessage(websocket.CloseMessage, message)
	return c.Conn.Close()
}
