package auth

import "sync"

// StateEvent は認証状態の変化種別を表す。
type StateEvent string

const (
	// StateSignedIn はセッションが発行されたことを示す。
	StateSignedIn StateEvent = "SIGNED_IN"
	// StateSignedOut はセッションが破棄されたことを示す。
	StateSignedOut StateEvent = "SIGNED_OUT"
)

// StateChange は1件の認証状態変化を表す。
// SignedOutの場合、Sessionはnil。
type StateChange struct {
	Event   StateEvent
	Session *Session
}

// Session は状態変化で通知されるセッション情報。
// リポジトリ層のセッションと異なり、購読者が必要とする最小限の情報のみを持つ。
type Session struct {
	ID     string
	UserID string
}

// StateListener は認証状態変化の通知先。
// ブロードキャスト元のゴルーチン上で同期的に呼ばれる。
type StateListener func(StateChange)

// StateBroadcaster は認証状態の変化をリスナーへ配信する。
// 同一リスナーの重複登録は排除されず、それぞれ独立に呼ばれる。
type StateBroadcaster struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]StateListener
}

// NewStateBroadcaster はStateBroadcasterを生成する。
func NewStateBroadcaster() *StateBroadcaster {
	return &StateBroadcaster{listeners: make(map[int]StateListener)}
}

// AddListener はリスナーを登録する。
// 戻り値の関数を呼ぶと登録を解除し、以降リスナーは呼ばれない。
func (b *StateBroadcaster) AddListener(listener StateListener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.listeners[id] = listener

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// Broadcast は全リスナーへ状態変化を配信する。
func (b *StateBroadcaster) Broadcast(change StateChange) {
	b.mu.Lock()
	listeners := make([]StateListener, 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	for _, l := range listeners {
		l(change)
	}
}
