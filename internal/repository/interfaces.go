// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/mrlater/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	// OAuth経由の新規ユーザー登録で使用する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdatePasswordHash はパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、profiles、tasksはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ProfileRepository はプロフィールデータの永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)

	// FindByStripeCustomerID はStripe顧客IDでプロフィールを検索する。見つからない場合はnilを返す。
	FindByStripeCustomerID(ctx context.Context, customerID string) (*model.Profile, error)

	// Create はプロフィールを作成する。
	Create(ctx context.Context, profile *model.Profile) error

	// Update はプロフィールを部分更新する。nilフィールドは変更しない。
	// 対象が存在しない場合はエラーを返す。
	Update(ctx context.Context, userID string, patch model.ProfilePatch) error

	// SetStripeCustomerID はStripe顧客IDを紐付ける。
	SetStripeCustomerID(ctx context.Context, userID, customerID string) error
}

// TaskRepository はタスクデータの永続化インターフェース。
type TaskRepository interface {
	// ListByUserID は指定ユーザーの全タスクを期日昇順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Task, error)

	// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Task, error)

	// Create はタスクを作成し、サーバー側でIDと作成日時を割り当てた行を返す。
	// IDが未設定の場合は保存側で採番する。
	Create(ctx context.Context, task *model.Task) (*model.Task, error)

	// Update はタスクを部分更新し、更新後の行を返す。nilフィールドは変更しない。
	// 対象が存在しない場合はエラーを返す。
	Update(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error)

	// Delete は指定IDのタスクを削除する。対象が存在しない場合はエラーを返す。
	Delete(ctx context.Context, id string) error

	// CountActiveByUserID は指定ユーザーの未完了（done以外）タスク数を返す。
	CountActiveByUserID(ctx context.Context, userID string) (int, error)
}

// ChallengeRepository はチャレンジデータの永続化インターフェース。
// 参加者リストの更新は全置換で行われ、同時更新はlast-write-winsとなる。
type ChallengeRepository interface {
	// ListAll は全チャレンジを開始日降順で返す。
	ListAll(ctx context.Context) ([]*model.Challenge, error)

	// ListByParticipant は指定ユーザーが参加しているチャレンジを返す。
	ListByParticipant(ctx context.Context, userID string) ([]*model.Challenge, error)

	// FindByID は指定IDのチャレンジを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Challenge, error)

	// UpdateParticipants は参加者リストを全置換する。
	// 対象が存在しない場合はエラーを返す。
	UpdateParticipants(ctx context.Context, id string, participants []string) error

	// CountByParticipant は指定ユーザーが参加しているチャレンジ数を返す。
	CountByParticipant(ctx context.Context, userID string) (int, error)
}

// LeaderboardRepository は完了タスク数ランキングの読み取りインターフェース。
type LeaderboardRepository interface {
	// Top は完了タスク数の多い順に最大limit件を返す。
	Top(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
}

// TokenRepository はワンタイムコードとパスワードリセットトークンの永続化インターフェース。
// コード/トークンは平文では保存せず、SHA-256ハッシュのみを保持する。
type TokenRepository interface {
	// CreateOTP はワンタイムコードを登録する。
	CreateOTP(ctx context.Context, email, codeHash string, expiresAt time.Time) error

	// ConsumeOTP は未使用かつ有効期限内のコードを消費する。
	// 一致するコードがない場合はfalseを返す。
	ConsumeOTP(ctx context.Context, email, codeHash string) (bool, error)

	// CreateResetToken はパスワードリセットトークンを登録する。
	CreateResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error

	// ConsumeResetToken は未使用かつ有効期限内のトークンを消費し、対象ユーザーIDを返す。
	// 一致するトークンがない場合は空文字列を返す。
	ConsumeResetToken(ctx context.Context, tokenHash string) (string, error)
}
