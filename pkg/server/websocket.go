package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shouni/gemini-fitting-room/pkg/fittingroom"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// handleEvents は State が変わるたびに View を JSON で送る WebSocket です。
// クライアントからのメッセージは読み捨てます。
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, cookie, err := s.session(r)
	if err != nil {
		sendError(w, err)
		return
	}
	var header http.Header
	if cookie != nil {
		header = http.Header{"Set-Cookie": {cookie.String()}}
	}

	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		// Upgrade がエラーレスポンスを書き込み済み
		slog.WarnContext(r.Context(), "WebSocket のアップグレードに失敗しました", "error", err)
		return
	}

	views, unsubscribe := sess.Subscribe()
	slog.DebugContext(r.Context(), "WebSocket を接続しました", "session", sess.ID())

	go func() {
		readPump(conn, sess)
		unsubscribe()
	}()
	writePump(conn, views)
	unsubscribe()
	_ = conn.Close()
}

// readPump は接続が生きている間、pong やメッセージを受け取るたびに Session の期限を延ばします。
func readPump(conn *websocket.Conn, sess *fittingroom.Session) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		sess.Touch()
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket の読み込みエラー", "session", sess.ID(), "error", err)
			}
			return
		}
		sess.Touch()
	}
}

func writePump(conn *websocket.Conn, views <-chan fittingroom.View) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case view, ok := <-views:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(view); err != nil {
				slog.Debug("WebSocket の書き込みに失敗しました", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
