// Package realtime は変更フィードをWebSocketクライアントへ中継する。
package realtime

import (
	"log/slog"
	"sync"

	"github.com/hitoshi/mrlater/internal/changefeed"
)

// Message はクライアントへ送る変更通知。
// 変更内容は含まず、該当テーブルの再取得を促すだけのシグナル。
type Message struct {
	Table string `json:"table"`
	Op    string `json:"op"`
	ID    string `json:"id,omitempty"`
}

// ChangeFeed は行変更の購読インターフェース。
type ChangeFeed interface {
	Subscribe(table string, filter changefeed.Filter, handler changefeed.Handler) func()
}

// client は接続中のWebSocketクライアント。
type client struct {
	userID string
	send   chan Message
}

// sendBufferSize は1クライアントあたりの送信バッファ。
// 溢れた通知は落とす（通知はシグナルに過ぎず、次の通知で回復する）。
const sendBufferSize = 16

// Hub は接続の登録と変更通知の振り分けを行う。
// tasksとprofilesは所有ユーザーの接続のみに、challengesは全接続に配送する。
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	unsubscribes []func()
}

// NewHub はHubの新しいインスタンスを生成する。
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Attach は変更フィードの購読を開始する。
func (h *Hub) Attach(feed ChangeFeed) {
	h.unsubscribes = append(h.unsubscribes,
		feed.Subscribe("tasks", changefeed.Filter{}, h.routeToOwner),
		feed.Subscribe("profiles", changefeed.Filter{}, h.routeToOwner),
		feed.Subscribe("challenges", changefeed.Filter{}, h.broadcast),
	)
}

// Detach は変更フィードの購読を解除する。
func (h *Hub) Detach() {
	for _, unsubscribe := range h.unsubscribes {
		unsubscribe()
	}
	h.unsubscribes = nil
}

// register は接続を登録してクライアントを返す。
func (h *Hub) register(userID string) *client {
	c := &client{
		userID: userID,
		send:   make(chan Message, sendBufferSize),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("realtime接続を登録しました",
		slog.String("user_id", userID),
		slog.Int("connections", count),
	)
	return c
}

// unregister は接続を解除する。
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("realtime接続を解除しました",
		slog.String("user_id", c.userID),
		slog.Int("connections", count),
	)
}

// ConnectionCount は現在の接続数を返す。
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// routeToOwner は行の所有ユーザーの接続だけに通知を配送する。
// resyncイベントはuser_idを持たないため全接続に配送する。
func (h *Hub) routeToOwner(event changefeed.Event) {
	if event.UserID == "" {
		h.broadcast(event)
		return
	}

	message := toMessage(event)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.userID == event.UserID {
			h.deliver(c, message)
		}
	}
}

// broadcast は全接続に通知を配送する。
func (h *Hub) broadcast(event changefeed.Event) {
	message := toMessage(event)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		h.deliver(c, message)
	}
}

// deliver はバッファに空きがある場合のみ送信する。
func (h *Hub) deliver(c *client, message Message) {
	select {
	case c.send <- message:
	default:
		h.logger.Warn("realtime送信バッファが溢れました",
			slog.String("user_id", c.userID),
			slog.String("table", message.Table),
		)
	}
}

func toMessage(event changefeed.Event) Message {
	return Message{
		Table: event.Table,
		Op:    event.Op,
		ID:    event.RowID,
	}
}
