// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, task, challenge, billing, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeEmailTaken           = "EMAIL_TAKEN"
	ErrCodeInvalidOTP           = "INVALID_OTP"
	ErrCodeInvalidResetToken    = "INVALID_RESET_TOKEN"
	ErrCodeEmptyTitle           = "EMPTY_TITLE"
	ErrCodeInvalidStatus        = "INVALID_STATUS"
	ErrCodeInvalidPriority      = "INVALID_PRIORITY"
	ErrCodeTaskNotFound         = "TASK_NOT_FOUND"
	ErrCodeChallengeNotFound    = "CHALLENGE_NOT_FOUND"
	ErrCodePlanLimit            = "PLAN_LIMIT"
	ErrCodeProfileNotFound      = "PROFILE_NOT_FOUND"
	ErrCodeInvalidAvatarURL     = "INVALID_AVATAR_URL"
	ErrCodeBillingNotConfigured = "BILLING_NOT_CONFIGURED"
)

// NewAuthenticationError は認証失敗エラーを生成する。
// ゲートウェイからのメッセージをそのまま保持する。
func NewAuthenticationError(message string) *APIError {
	if message == "" {
		message = "メールアドレスまたはパスワードが正しくありません。"
	}
	return &APIError{
		Code:     ErrCodeAuthenticationFailed,
		Message:  message,
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewEmailTakenError はメールアドレスが登録済みの場合のエラーを生成する。
func NewEmailTakenError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: "auth",
		Action:   "ログイン画面からサインインするか、別のメールアドレスを使用してください。",
	}
}

// NewInvalidOTPError はワンタイムコードが無効な場合のエラーを生成する。
func NewInvalidOTPError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOTP,
		Message:  "ワンタイムコードが無効か、有効期限が切れています。",
		Category: "auth",
		Action:   "新しいコードを再送信してください。",
	}
}

// NewInvalidResetTokenError はパスワードリセットトークンが無効な場合のエラーを生成する。
func NewInvalidResetTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidResetToken,
		Message:  "リセットリンクが無効か、有効期限が切れています。",
		Category: "auth",
		Action:   "パスワードリセットを再度申請してください。",
	}
}

// NewEmptyTitleError はタイトル未入力エラーを生成する。
func NewEmptyTitleError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyTitle,
		Message:  "タスクのタイトルを入力してください。",
		Category: "validation",
		Action:   "1文字以上のタイトルを指定してください。",
	}
}

// NewInvalidStatusError は無効なステータスエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なステータスです: %s", status),
		Category: "validation",
		Action:   "ステータスには pending、later、done のいずれかを指定してください。",
	}
}

// NewInvalidPriorityError は無効な優先度エラーを生成する。
func NewInvalidPriorityError(priority string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPriority,
		Message:  fmt.Sprintf("無効な優先度です: %s", priority),
		Category: "validation",
		Action:   "優先度には low、medium、high のいずれかを指定してください。",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", taskID),
		Category: "task",
		Action:   "タスク一覧を更新してから再度お試しください。",
	}
}

// NewChallengeNotFoundError はチャレンジ未検出エラーを生成する。
func NewChallengeNotFoundError(challengeID string) *APIError {
	return &APIError{
		Code:     ErrCodeChallengeNotFound,
		Message:  fmt.Sprintf("指定されたチャレンジが見つかりません: %s", challengeID),
		Category: "challenge",
		Action:   "チャレンジ一覧を更新してから再度お試しください。",
	}
}

// NewPlanLimitError はプラン上限超過エラーを生成する。
func NewPlanLimitError(what string, limit int) *APIError {
	return &APIError{
		Code:     ErrCodePlanLimit,
		Message:  fmt.Sprintf("現在のプランの上限（%s: %d件）に達しています。", what, limit),
		Category: "billing",
		Action:   "Proプランにアップグレードするか、不要な項目を整理してください。",
	}
}

// NewProfileNotFoundError はプロフィール未検出エラーを生成する。
func NewProfileNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("プロフィールが見つかりません: %s", userID),
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidAvatarURLError はアバターURLが利用できない場合のエラーを生成する。
func NewInvalidAvatarURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAvatarURL,
		Message:  fmt.Sprintf("アバターURLを利用できません: %s", reason),
		Category: "validation",
		Action:   "公開されているhttpsの画像URLを指定してください。",
	}
}

// NewBillingNotConfiguredError は課金顧客が未作成の場合のエラーを生成する。
func NewBillingNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeBillingNotConfigured,
		Message:  "課金情報がまだ登録されていません。",
		Category: "billing",
		Action:   "先にプランのアップグレードを開始してください。",
	}
}
