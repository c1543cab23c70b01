package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"elsa/internal/aggregate"
	applog "elsa/internal/log"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

// chartMessage is the frame pushed to chart subscribers.
type chartMessage struct {
	Type string          `json:"type"`
	Live bool            `json:"live"`
	Data aggregate.Chart `json:"data"`
}

// handleChartSocket pushes the owner's chart now and after every rebuild.
func (s *Server) handleChartSocket(w http.ResponseWriter, r *http.Request, owner string) {
	session, err := s.deps.Hub.Session(r.Context(), owner)
	if session == nil {
		s.writeError(w, r, applog.OpSubscribe, err)
		return
	}
	logger := applog.FromContext(r.Context()).
		WithComponent(applog.ComponentWebsocket).
		With(applog.FieldOwner, owner)
	if err != nil {
		logger.Warn("Chart socket opened without live updates", applog.FieldError, err)
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		logger.Warn("WebSocket upgrade failed", applog.FieldError, err)
		return
	}
	updates, cancel := session.Updates()
	defer cancel()

	initial := chartMessage{Type: "chart", Live: session.Live(), Data: session.Chart(r.Context())}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(initial); err != nil {
		conn.Close()
		return
	}
	logger.Info("Chart socket connected")

	closed := make(chan struct{})
	go readPump(conn, closed, logger)
	writePump(conn, session.Live, updates, closed)
	logger.Info("Chart socket disconnected")
}

// readPump drains client frames so pongs and close frames are processed.
func readPump(conn *websocket.Conn, closed chan<- struct{}, logger *applog.Logger) {
	defer close(closed)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket read error", applog.FieldError, err)
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, live func() bool, updates <-chan aggregate.Aggregate, closed <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case agg, ok := <-updates:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if err := conn.WriteJSON(chartMessage{Type: "chart", Live: live(), Data: agg.Chart()}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
