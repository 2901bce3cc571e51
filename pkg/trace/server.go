package trace

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/antibyte/glyphvm/pkg/configuration"
	"github.com/antibyte/glyphvm/pkg/logger"
)

// Frame is one broadcast trace step, tagged with the run it came from so
// a watcher following several concurrent runs can tell them apart.
type Frame struct {
	RunID uuid.UUID `json:"run_id"`
	PC    int64     `json:"pc"`
	Byte  byte      `json:"byte"`
	Stack []float64 `json:"stack"`
}

// client is a single connected trace watcher.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Server fans a run's trace frames out to every connected websocket
// watcher, for the [TraceServer] config section's optional live-viewer
// mode.
type Server struct {
	upgrader websocket.Upgrader
	mutex    sync.RWMutex
	clients  map[*client]bool
}

// NewServer returns a Server whose upgrader accepts only an Origin header
// exactly equal to [TraceServer] allowed_origins (or any origin if that
// key is empty, matching a local-tooling default). The value is compared
// as a single origin; it is not split into a list.
func NewServer() *Server {
	s := &Server{clients: make(map[*client]bool)}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			allowed := configuration.GetString("TraceServer", "allowed_origins", "")
			return allowed == "" || r.Header.Get("Origin") == allowed
		},
	}
	return s
}

// ServeHTTP upgrades the connection to a websocket and registers it as a
// trace watcher until the connection closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error(logger.AreaTrace, "websocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 256)}
	s.mutex.Lock()
	s.clients[c] = true
	s.mutex.Unlock()

	logger.Info(logger.AreaTrace, "trace watcher connected")
	go s.writePump(c)
	s.readPump(c)
}

func (s *Server) readPump(c *client) {
	defer s.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (s *Server) remove(c *client) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

// Broadcast encodes frame as JSON and queues it for every connected
// watcher, dropping it for any watcher whose send buffer is full rather
// than blocking the run.
func (s *Server) Broadcast(frame Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		logger.Error(logger.AreaTrace, "trace frame marshal failed: %v", err)
		return
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
			logger.Warn(logger.AreaTrace, "trace watcher send buffer full, dropping frame")
		}
	}
}

// ListenAndServe starts an HTTP server on the [TraceServer] listen_addr
// exposing this Server at /trace, blocking until it fails.
func (s *Server) ListenAndServe() error {
	addr := configuration.GetString("TraceServer", "listen_addr", "127.0.0.1:8765")
	mux := http.NewServeMux()
	mux.HandleFunc("/trace", s.ServeHTTP)
	logger.Info(logger.AreaTrace, "trace server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
