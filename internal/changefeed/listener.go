// Package changefeed はPostgreSQLのLISTEN/NOTIFYを使った行変更フィードを提供する。
// トリガーがrow_changesチャネルへ発行する通知を購読者へ配送する。
// イベントは無効化シグナルであり、行の内容は含まない。
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"
)

// channelName はトリガー関数が通知を発行するチャネル名。
const channelName = "row_changes"

// Event は1件の行変更通知を表す。
type Event struct {
	Table  string `json:"table"`
	Op     string `json:"op"`
	RowID  string `json:"id"`
	UserID string `json:"user_id"`
}

// Filter は購読時の絞り込み条件。
// UserIDが空の場合は全ユーザーのイベントを受け取る。
type Filter struct {
	UserID string
}

// Handler はイベント配送先。リスナーのゴルーチン上で同期的に呼ばれるため、
// 長時間ブロックしてはならない。
type Handler func(Event)

type subscription struct {
	table   string
	filter  Filter
	handler Handler
}

// Listener はrow_changesチャネルを購読し、登録されたハンドラへイベントを配送する。
// 同一テーブルへの重複購読は重複排除されず、それぞれ独立に配送される。
type Listener struct {
	pl     *pq.Listener
	logger *slog.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]subscription
}

// NewListener はListenerを生成する。
// 接続断からの再接続はpq.Listenerが指数バックオフで行う。
func NewListener(databaseURL string, logger *slog.Logger) *Listener {
	l := &Listener{
		logger: logger,
		subs:   make(map[int]subscription),
	}
	l.pl = pq.NewListener(databaseURL, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Error("変更フィード接続イベント",
					slog.Int("event_type", int(ev)),
					slog.String("error", err.Error()),
				)
			}
		})
	return l
}

// Start は通知の受信ループを開始する。コンテキストがキャンセルされるまでブロックする。
func (l *Listener) Start(ctx context.Context) error {
	if err := l.pl.Listen(channelName); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", channelName, err)
	}
	defer l.pl.Close()

	l.logger.Info("変更フィードリスナーを開始しました",
		slog.String("channel", channelName),
	)

	// 接続の生存確認用
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("変更フィードリスナーを停止しました")
			return nil

		case notification := <-l.pl.Notify:
			// 再接続直後はnilが届く。通知を取りこぼしている可能性があるため、
			// 全購読テーブルへ合成イベントを配送して再同期を促す。
			if notification == nil {
				l.dispatchResync()
				continue
			}
			event, err := parsePayload(notification.Extra)
			if err != nil {
				l.logger.Error("変更フィードペイロードの解析に失敗しました",
					slog.String("payload", notification.Extra),
					slog.String("error", err.Error()),
				)
				continue
			}
			l.dispatch(event)

		case <-ping.C:
			if err := l.pl.Ping(); err != nil {
				l.logger.Error("変更フィードのping送信に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Subscribe は指定テーブルの変更イベントを購読する。
// 戻り値の関数を呼ぶと購読を解除し、以降handlerは呼ばれない。
func (l *Listener) Subscribe(table string, filter Filter, handler Handler) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	l.subs[id] = subscription{table: table, filter: filter, handler: handler}

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, id)
	}
}

// dispatch はイベントを条件の一致する全購読者へ配送する。
func (l *Listener) dispatch(event Event) {
	l.mu.Lock()
	handlers := make([]Handler, 0, len(l.subs))
	for _, sub := range l.subs {
		if sub.table != event.Table {
			continue
		}
		if sub.filter.UserID != "" && sub.filter.UserID != event.UserID {
			continue
		}
		handlers = append(handlers, sub.handler)
	}
	l.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// dispatchResync は全購読者へ合成イベントを配送する。
// 再接続後の取りこぼし対策であり、購読者側のフィルタはバイパスされる。
func (l *Listener) dispatchResync() {
	l.mu.Lock()
	handlers := make([]struct {
		table string
		h     Handler
	}, 0, len(l.subs))
	for _, sub := range l.subs {
		handlers = append(handlers, struct {
			table string
			h     Handler
		}{sub.table, sub.handler})
	}
	l.mu.Unlock()

	for _, entry := range handlers {
		entry.h(Event{Table: entry.table, Op: "resync"})
	}
}

func parsePayload(payload string) (Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return Event{}, fmt.Errorf("failed to parse notification payload: %w", err)
	}
	if event.Table == "" {
		return Event{}, fmt.Errorf("notification payload missing table: %s", payload)
	}
	return event, nil
}
