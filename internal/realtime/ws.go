package realtime

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait は1メッセージの書き込みタイムアウト。
	writeWait = 10 * time.Second
	// pongWait はクライアントからのpong待ち時間。
	pongWait = 60 * time.Second
	// pingInterval はping送信間隔。pongWaitより短くする。
	pingInterval = 54 * time.Second
)

// MetricsRecorder はWebSocket接続数のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordWSConnect()
	RecordWSDisconnect()
}

// UserIDResolver はリクエストから認証済みユーザーIDを取り出す。
type UserIDResolver func(r *http.Request) string

// Handler はWebSocket接続を受け付けるHTTPハンドラ。
type Handler struct {
	hub      *Hub
	resolver UserIDResolver
	metrics  MetricsRecorder
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler はHandlerの新しいインスタンスを生成する。
// オリジン検証はCORSミドルウェアを通過した接続のみ許可する。
func NewHandler(hub *Hub, resolver UserIDResolver, metrics MetricsRecorder, logger *slog.Logger, allowedOrigin string) *Handler {
	return &Handler{
		hub:      hub,
		resolver: resolver,
		metrics:  metrics,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
	}
}

// ServeHTTP は接続をWebSocketへアップグレードして通知の中継を開始する。
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := h.resolver(r)
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocketアップグレードに失敗しました", slog.Any("error", err))
		return
	}

	c := h.hub.register(userID)
	if h.metrics != nil {
		h.metrics.RecordWSConnect()
	}

	go h.writeLoop(conn, c)
	go h.readLoop(conn, c)
}

// writeLoop はhubからの通知とpingをクライアントへ書き込む。
func (h *Handler) writeLoop(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop はクライアントからの入力を読み捨て、切断を検出する。
func (h *Handler) readLoop(conn *websocket.Conn, c *client) {
	defer func() {
		h.hub.unregister(c)
		if h.metrics != nil {
			h.metrics.RecordWSDisconnect()
		}
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
