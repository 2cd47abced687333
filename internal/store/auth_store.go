package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/hitoshi/mrlater/internal/auth"
	"github.com/hitoshi/mrlater/internal/keystore"
	"github.com/hitoshi/mrlater/internal/model"
	"github.com/hitoshi/mrlater/internal/repository"
)

// IdentityGateway はAuthStoreが必要とする認証ゲートウェイの操作。
// auth.Serviceが実装を提供する。
type IdentityGateway interface {
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
	SignUp(ctx context.Context, email, password, name string) (*model.User, *model.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	SignInWithOtp(ctx context.Context, email string) error
	VerifyOtp(ctx context.Context, email, code string) (*model.User, *model.Session, error)
	SignOut(ctx context.Context, sessionID string) error
	ResetPasswordForEmail(ctx context.Context, email string) error
	GetLoginURL(state string) string
	Broadcaster() *auth.StateBroadcaster
}

// Keychain はAuthStoreが使用する秘密情報ストア。
// keystore.Storeが実装を提供する。
type Keychain interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// AuthStore はセッション・ユーザー・プロフィールのローカルスナップショットを保持する。
// 認証状態の変化は長命のリスナーで受け取り、スナップショットを追従させる。
type AuthStore struct {
	gateway     IdentityGateway
	profileRepo repository.ProfileRepository
	keychain    Keychain

	mu          sync.RWMutex
	initialized bool
	unsubscribe func()
	session     *model.Session
	user        *model.User
	profile     *model.Profile
	errMsg      string
}

// NewAuthStore はAuthStoreを生成する。
func NewAuthStore(gateway IdentityGateway, profileRepo repository.ProfileRepository, keychain Keychain) *AuthStore {
	return &AuthStore{
		gateway:     gateway,
		profileRepo: profileRepo,
		keychain:    keychain,
	}
}

// Initialize はストアを初期化する。2回目以降の呼び出しは何もしない。
// 認証状態リスナーを登録し、キーチェーンに残っているセッションを復元する。
func (s *AuthStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.initialized = true
	s.mu.Unlock()

	// 1. 認証状態の変化に追従する長命のリスナーを登録する
	unsubscribe := s.gateway.Broadcaster().AddListener(func(change auth.StateChange) {
		s.handleStateChange(change)
	})
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	// 2. キーチェーンのセッションIDから状態を復元する
	sessionID, ok := s.keychain.Get(keystore.KeySessionID)
	if !ok || sessionID == "" {
		return nil
	}

	session, err := s.gateway.GetSession(ctx, sessionID)
	if err != nil {
		s.setError(err)
		return fmt.Errorf("failed to restore session: %w", err)
	}
	if session == nil {
		// 期限切れのセッションIDは片付ける
		_ = s.keychain.Delete(keystore.KeySessionID)
		return nil
	}

	return s.adoptSession(ctx, session)
}

// handleStateChange は認証状態の変化をスナップショットへ反映する。
func (s *AuthStore) handleStateChange(change auth.StateChange) {
	switch change.Event {
	case auth.StateSignedIn:
		if change.Session == nil {
			return
		}
		ctx := context.Background()
		session := &model.Session{ID: change.Session.ID, UserID: change.Session.UserID}
		if err := s.adoptSession(ctx, session); err != nil {
			s.setError(err)
		}
	case auth.StateSignedOut:
		s.mu.Lock()
		s.session = nil
		s.user = nil
		s.profile = nil
		s.mu.Unlock()
	}
}

// adoptSession はセッションを取り込み、ユーザーとプロフィールを取得する。
func (s *AuthStore) adoptSession(ctx context.Context, session *model.Session) error {
	user, err := s.gateway.GetCurrentUser(ctx, session.ID)
	if err != nil {
		s.setError(err)
		return fmt.Errorf("failed to load user for session: %w", err)
	}

	s.mu.Lock()
	s.session = session
	s.user = user
	s.errMsg = ""
	s.mu.Unlock()

	// プロフィールは無い場合もある（サインアップ途中の部分的失敗）
	if _, err := s.FetchProfile(ctx, user.ID); err != nil {
		return err
	}
	return nil
}

// SignIn はメールアドレスとパスワードでサインインする。
// 失敗はエラーとして再送出する。成功時はセッションIDと資格情報を
// キーチェーンに保存し、生体認証での再サインインに備える。
func (s *AuthStore) SignIn(ctx context.Context, email, password string) error {
	session, err := s.gateway.SignInWithPassword(ctx, email, password)
	if err != nil {
		s.setError(err)
		return err
	}

	if err := s.keychain.Set(keystore.KeySessionID, session.ID); err != nil {
		s.setError(err)
		return fmt.Errorf("failed to persist session: %w", err)
	}
	// 再認証用の資格情報キャッシュ
	_ = s.keychain.Set(keystore.KeyUserEmail, email)
	_ = s.keychain.Set(keystore.KeyUserPassword, password)
	_ = s.keychain.Set(keystore.KeySecureLoginMethod, "password")

	return nil
}

// SignInWithCachedCredentials はキーチェーンの資格情報で再サインインする。
// 資格情報が無い場合はResultNotFoundを返す（エラーにはしない）。
func (s *AuthStore) SignInWithCachedCredentials(ctx context.Context) (Result, error) {
	email, okEmail := s.keychain.Get(keystore.KeyUserEmail)
	password, okPassword := s.keychain.Get(keystore.KeyUserPassword)
	if !okEmail || !okPassword || email == "" || password == "" {
		return ResultNotFound, nil
	}

	if err := s.SignIn(ctx, email, password); err != nil {
		return ResultOK, err
	}
	return ResultOK, nil
}

// SignInWithGoogle はGoogle認証のブラウザ用URLを返す。
// セッションはコールバック処理後に認証状態リスナー経由で届く。
func (s *AuthStore) SignInWithGoogle(state string) string {
	return s.gateway.GetLoginURL(state)
}

// SignInWithOtp はワンタイムコードの送信を要求する。
func (s *AuthStore) SignInWithOtp(ctx context.Context, email string) error {
	if err := s.gateway.SignInWithOtp(ctx, email); err != nil {
		s.setError(err)
		return err
	}
	return nil
}

// VerifyOtp はワンタイムコードを検証してサインインする。
func (s *AuthStore) VerifyOtp(ctx context.Context, email, code string) error {
	_, session, err := s.gateway.VerifyOtp(ctx, email, code)
	if err != nil {
		s.setError(err)
		return err
	}
	if err := s.keychain.Set(keystore.KeySessionID, session.ID); err != nil {
		s.setError(err)
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// SignUp はアカウントを登録し、続けてプロフィールを作成する。
// 2つの呼び出しはアトミックではない: アカウント作成後にプロフィール作成が
// 失敗した場合、アカウントは残ったままエラーを返す。
func (s *AuthStore) SignUp(ctx context.Context, email, password, name string) error {
	// 1. アカウントとセッションを作成（状態はリスナー経由で反映される）
	user, session, err := s.gateway.SignUp(ctx, email, password, name)
	if err != nil {
		s.setError(err)
		return err
	}

	if err := s.keychain.Set(keystore.KeySessionID, session.ID); err != nil {
		s.setError(err)
		return fmt.Errorf("failed to persist session: %w", err)
	}

	// 2. プロフィールを作成する（部分的失敗はそのまま返す）
	profile := &model.Profile{
		ID:    user.ID,
		Name:  name,
		Email: email,
		Plan:  model.PlanFree,
	}
	if err := s.profileRepo.Create(ctx, profile); err != nil {
		s.setError(err)
		return fmt.Errorf("failed to create profile: %w", err)
	}

	s.mu.Lock()
	s.profile = profile
	s.mu.Unlock()
	return nil
}

// SignOut はサインアウトする。リモートのセッション破棄に失敗しても
// ローカル状態とキーチェーンは必ずクリアし、エラーは記録するだけで返さない。
func (s *AuthStore) SignOut(ctx context.Context) error {
	s.mu.RLock()
	session := s.session
	s.mu.RUnlock()

	if session != nil {
		if err := s.gateway.SignOut(ctx, session.ID); err != nil {
			s.setError(err)
		}
	}

	s.mu.Lock()
	s.session = nil
	s.user = nil
	s.profile = nil
	s.mu.Unlock()

	_ = s.keychain.Delete(keystore.KeySessionID)
	_ = s.keychain.Delete(keystore.KeyUserEmail)
	_ = s.keychain.Delete(keystore.KeyUserPassword)
	_ = s.keychain.Delete(keystore.KeySecureLoginMethod)

	return nil
}

// ResetPassword はパスワードリセットリンクの送信を要求する。
func (s *AuthStore) ResetPassword(ctx context.Context, email string) error {
	if err := s.gateway.ResetPasswordForEmail(ctx, email); err != nil {
		s.setError(err)
		return err
	}
	return nil
}

// FetchProfile はプロフィールを取得する。
// ユーザーIDが空の場合はResultNoUser、プロフィール不在はResultNotFoundを返す。
func (s *AuthStore) FetchProfile(ctx context.Context, userID string) (Result, error) {
	if userID == "" {
		return ResultNoUser, nil
	}

	profile, err := s.profileRepo.FindByUserID(ctx, userID)
	if err != nil {
		s.setError(err)
		return ResultOK, fmt.Errorf("failed to fetch profile: %w", err)
	}
	if profile == nil {
		return ResultNotFound, nil
	}

	s.mu.Lock()
	s.profile = profile
	s.mu.Unlock()
	return ResultOK, nil
}

// UpdateProfile はプロフィールを部分更新し、成功時にローカルへマージする。
// 再取得は行わない。
func (s *AuthStore) UpdateProfile(ctx context.Context, userID string, patch model.ProfilePatch) (Result, error) {
	if userID == "" {
		return ResultNoUser, nil
	}

	if err := s.profileRepo.Update(ctx, userID, patch); err != nil {
		s.setError(err)
		return ResultOK, fmt.Errorf("failed to update profile: %w", err)
	}

	s.mu.Lock()
	if s.profile != nil {
		patch.Apply(s.profile)
	}
	s.mu.Unlock()
	return ResultOK, nil
}

// Close は認証状態リスナーの登録を解除する。
func (s *AuthStore) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Session は現在のセッションのスナップショットを返す。
func (s *AuthStore) Session() *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// User は現在のユーザーのスナップショットを返す。
func (s *AuthStore) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Profile は現在のプロフィールのスナップショットを返す。
func (s *AuthStore) Profile() *model.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Err は最後に記録されたエラーメッセージを返す。
func (s *AuthStore) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

func (s *AuthStore) setError(err error) {
	s.mu.Lock()
	s.errMsg = err.Error()
	s.mu.Unlock()
}
