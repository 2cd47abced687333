// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/mrlater/internal/model"
)

const (
	sessionCookieName = "session_id"
	oauthStateCookie  = "oauth_state"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, email, password, name string) (*model.User, *model.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	SignOut(ctx context.Context, sessionID string) error
	SignInWithOtp(ctx context.Context, email string) error
	VerifyOtp(ctx context.Context, email, code string) (*model.User, *model.Session, error)
	ResetPasswordForEmail(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.User, *model.Session, error)
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// AuthMetricsRecorder は認証試行の成否を記録するインターフェース。
type AuthMetricsRecorder interface {
	RecordAuthAttempt(method, outcome string)
}

// ProfileCreatorInterface はサインアップ時の初期プロフィール作成インターフェース。
type ProfileCreatorInterface interface {
	CreateProfile(ctx context.Context, userID, name, email string) (*model.Profile, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はパスワード・OTP・Google OAuth認証のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	profiles ProfileCreatorInterface
	metrics  AuthMetricsRecorder
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, profiles ProfileCreatorInterface, metrics AuthMetricsRecorder, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		profiles: profiles,
		metrics:  metrics,
		config:   config,
	}
}

// signUpRequest はサインアップリクエストのボディ。
type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// signInRequest はパスワードサインインリクエストのボディ。
type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// otpRequest はOTP送信リクエストのボディ。
type otpRequest struct {
	Email string `json:"email"`
}

// otpVerifyRequest はOTP検証リクエストのボディ。
type otpVerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// resetRequest はパスワードリセット要求のボディ。
type resetRequest struct {
	Email string `json:"email"`
}

// resetConfirmRequest はパスワードリセット確定のボディ。
type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// userResponse はログインユーザー情報のレスポンス。
type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// SignUp は新規アカウントを作成しセッションを開始する。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	user, session, err := h.service.SignUp(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.recordAttempt("signup", "failure")
		handleServiceError(w, err)
		return
	}
	h.recordAttempt("signup", "success")
	h.setSessionCookie(w, session.ID)

	// アカウント作成に続けて初期プロフィールを作成する。
	// 2つの呼び出しはアトミックではない: プロフィール作成に失敗しても
	// アカウントとセッションは残したままエラーを返す。
	if h.profiles != nil {
		if _, err := h.profiles.CreateProfile(r.Context(), user.ID, req.Name, req.Email); err != nil {
			slog.Error("初期プロフィールの作成に失敗しました",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
			handleServiceError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, userResponse{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
	})
}

// SignIn はメールアドレスとパスワードでセッションを開始する。
// POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	session, err := h.service.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.recordAttempt("password", "failure")
		handleServiceError(w, err)
		return
	}
	h.recordAttempt("password", "success")

	h.setSessionCookie(w, session.ID)
	writeJSON(w, http.StatusOK, map[string]string{"user_id": session.UserID})
}

// SignOut はセッションを破棄する。
// POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		if signOutErr := h.service.SignOut(r.Context(), cookie.Value); signOutErr != nil {
			slog.Error("failed to sign out", slog.String("error", signOutErr.Error()))
			// サインアウト失敗してもCookieはクリアする
		}
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// SendOtp はワンタイムコードをメール送信する。
// POST /auth/otp
func (h *AuthHandler) SendOtp(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.service.SignInWithOtp(r.Context(), req.Email); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// VerifyOtp はワンタイムコードを検証しセッションを開始する。
// POST /auth/otp/verify
func (h *AuthHandler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	user, session, err := h.service.VerifyOtp(r.Context(), req.Email, req.Code)
	if err != nil {
		h.recordAttempt("otp", "failure")
		handleServiceError(w, err)
		return
	}
	h.recordAttempt("otp", "success")

	h.setSessionCookie(w, session.ID)
	writeJSON(w, http.StatusOK, userResponse{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
	})
}

// RequestPasswordReset はパスワードリセットメールを送信する。
// POST /auth/reset
//
// アカウントの存在有無を漏らさないため、未登録メールでも202を返す。
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.service.ResetPasswordForEmail(r.Context(), req.Email); err != nil {
		slog.Error("failed to request password reset", slog.String("error", err.Error()))
	}

	w.WriteHeader(http.StatusAccepted)
}

// ConfirmPasswordReset はリセットトークンを検証しパスワードを更新する。
// POST /auth/reset/confirm
func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.service.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GoogleLogin はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	url := h.service.GetLoginURL(state)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// GoogleCallback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("query_state", state),
		)
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	// 3. 認証処理
	_, session, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		h.recordAttempt("google", "failure")
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}
	h.recordAttempt("google", "success")

	// 4. セッションCookieを設定（HTTP Only）
	h.setSessionCookie(w, session.ID)

	// 5. アプリにリダイレクト
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		writeUnauthorized(w)
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to get current user", slog.String("error", err.Error()))
		writeUnauthorized(w)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
	})
}

// setSessionCookie はセッションCookieを設定する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieを破棄する。
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// recordAttempt は認証試行メトリクスを記録する。
func (h *AuthHandler) recordAttempt(method, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordAuthAttempt(method, outcome)
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
