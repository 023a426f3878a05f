package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/screenshot-orchestrator/internal/progress"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsReadLimit  = 4096
)

func (s *Server) upgrader() *websocket.Upgrader {
	allowed := s.cfg.Server.AllowedOrigins
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
		},
	}
}

// streamEvents upgrades to a websocket and forwards every hub event as JSON
// until the client leaves or the hub prunes the subscription. A text "ping"
// from the client is answered with "pong".
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream disabled")
		return
	}
	sub, err := s.deps.Events.Subscribe()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	logger := s.logger.With(zap.String("remote", r.RemoteAddr))
	logger.Debug("event stream connected")

	pongs := make(chan struct{}, 1)
	done := make(chan struct{})
	go s.readPump(conn, pongs, done, logger)
	s.writePump(conn, sub, pongs, done, logger)

	sub.Close()
	_ = conn.Close()
	logger.Debug("event stream disconnected")
}

func (s *Server) readPump(conn *websocket.Conn, pongs chan<- struct{}, done chan<- struct{}, logger *zap.Logger) {
	defer close(done)
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("event stream read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		if typ == websocket.TextMessage && string(msg) == "ping" {
			select {
			case pongs <- struct{}{}:
			default:
			}
		}
	}
}

// writePump owns every write on conn.
func (s *Server) writePump(
	conn *websocket.Conn,
	sub *progress.Subscription,
	pongs <-chan struct{},
	done <-chan struct{},
	logger *zap.Logger,
) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case evt, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				logger.Debug("event stream write failed", zap.Error(err))
				return
			}
		case <-pongs:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("pong")); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
