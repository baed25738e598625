// Package dashboard serves a small HTTP API over the live pipeline:
// recent events, the statistics snapshot, and a websocket event feed.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"eventmon/pkg/events"
	"eventmon/pkg/monitor"
	"eventmon/pkg/stats"
)

const clientSendBuffer = 64

// Server exposes /api/events, /api/stats, and /ws.
type Server struct {
	monitor  *monitor.Monitor
	stats    *stats.Aggregator
	logger   *zap.Logger
	upgrader websocket.Upgrader

	httpSrv *http.Server

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]chan []byte
}

func NewServer(addr string, m *monitor.Monitor, agg *stats.Aggregator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		monitor: m,
		stats:   agg,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan []byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start serves until the listener fails. Blocking; run in a goroutine.
func (s *Server) Start() error {
	s.logger.Info("dashboard listening", zap.String("addr", s.httpSrv.Addr))
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.clientsMu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.clientsMu.Unlock()
	return s.httpSrv.Shutdown(ctx)
}

// Publish fans an event out to connected websocket clients. A slow
// client's buffer filling up drops the message for that client only.
func (s *Server) Publish(ev *events.MonitoredEvent) {
	s.clientsMu.Lock()
	if len(s.clients) == 0 {
		s.clientsMu.Unlock()
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		s.clientsMu.Unlock()
		s.logger.Warn("dashboard publish failed", zap.Error(err))
		return
	}
	for _, ch := range s.clients {
		select {
		case ch <- data:
		default:
		}
	}
	s.clientsMu.Unlock()
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	// limit=0 means zero events, not "everything".
	if limit == 0 {
		writeJSON(w, []*events.MonitoredEvent{})
		return
	}
	writeJSON(w, s.monitor.RecentEvents(limit))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.stats.Snapshot())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	send := make(chan []byte, clientSendBuffer)
	s.clientsMu.Lock()
	s.clients[conn] = send
	s.clientsMu.Unlock()
	s.logger.Debug("websocket client connected", zap.String("remote", r.RemoteAddr))

	go s.writeLoop(conn, send)

	// Drain and discard reads; exiting unregisters the client.
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
		close(send)
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, send <-chan []byte) {
	for data := range send {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
