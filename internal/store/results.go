// Package store はゲートウェイ上の状態をローカルに同期するストア群を提供する。
// 各ストアはミューテックスで保護されたスナップショットを持ち、
// 変更フィードのイベントを無効化シグナルとして全件再取得を行う。
package store

// Result はエラーにしない操作結果の種別を表す。
// ユーザー不在や対象不在など、呼び出し側が握りつぶしてよい失敗を区別する。
type Result int

const (
	// ResultOK は操作が成功したことを示す。
	ResultOK Result = iota
	// ResultNoUser はサインインしていないため操作が行われなかったことを示す。
	ResultNoUser
	// ResultNotFound は対象がローカルスナップショットに存在しなかったことを示す。
	ResultNotFound
	// ResultAlreadyJoined は既に参加済みのため書き込みを省略したことを示す。
	ResultAlreadyJoined
	// ResultNotJoined は参加していないため書き込みを省略したことを示す。
	ResultNotJoined
)

// String はResultの文字列表現を返す。
func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultNoUser:
		return "no_user"
	case ResultNotFound:
		return "not_found"
	case ResultAlreadyJoined:
		return "already_joined"
	case ResultNotJoined:
		return "not_joined"
	}
	return "unknown"
}
