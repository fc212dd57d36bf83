package engine

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bapu077/quantstream-dashboard/internal/metrics"
)

// Stream pushes tick updates to connected WebSocket dashboard clients.
// Slow or dead clients are dropped rather than allowed to stall the fan-out.
type Stream struct {
	logger   *zap.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewStream creates an empty stream hub.
func NewStream(m *metrics.Metrics, logger *zap.Logger) *Stream {
	return &Stream{
		logger:  logger.Named("stream"),
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The dashboard is served from arbitrary dev origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// HandleWS upgrades the request and registers the client until it disconnects.
func (s *Stream) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	s.register(conn)
	s.logger.Info("Stream client connected", zap.String("remote", conn.RemoteAddr().String()))

	// Read loop only to observe the close; clients never send data.
	go func() {
		defer s.unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends the update to every connected client.
func (s *Stream) Broadcast(update Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteJSON(update); err != nil {
			s.logger.Debug("Dropping stream client", zap.Error(err))
			conn.Close()
			delete(s.clients, conn)
			s.metrics.StreamClients.Set(float64(len(s.clients)))
		}
	}
}

// CloseAll disconnects every client, for server shutdown.
func (s *Stream) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
		delete(s.clients, conn)
	}
	s.metrics.StreamClients.Set(0)
}

func (s *Stream) register(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[conn] = true
	s.metrics.StreamClients.Set(float64(len(s.clients)))
}

func (s *Stream) unregister(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients[conn] {
		conn.Close()
		delete(s.clients, conn)
		s.metrics.StreamClients.Set(float64(len(s.clients)))
	}
}
