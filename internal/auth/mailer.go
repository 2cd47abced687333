package auth

import (
	"context"
	"log/slog"
)

// Mailer はワンタイムコードとパスワードリセットリンクの送信インターフェース。
type Mailer interface {
	// SendOTP はワンタイムコードをメールで送信する。
	SendOTP(ctx context.Context, email, code string) error
	// SendPasswordReset はパスワードリセットリンクをメールで送信する。
	SendPasswordReset(ctx context.Context, email, resetURL string) error
}

// LogMailer はメールを実際には送信せず、ログに記録するMailer実装。
// SMTP設定のない開発環境で使用する。コードやトークンの平文はログに出さない。
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer はLogMailerを生成する。
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendOTP はワンタイムコードの送信をログに記録する。
func (m *LogMailer) SendOTP(ctx context.Context, email, code string) error {
	m.logger.Info("ワンタイムコードを送信しました",
		slog.String("email", email),
		slog.Int("code_length", len(code)),
	)
	return nil
}

// SendPasswordReset はパスワードリセットリンクの送信をログに記録する。
func (m *LogMailer) SendPasswordReset(ctx context.Context, email, resetURL string) error {
	m.logger.Info("パスワードリセットリンクを送信しました",
		slog.String("email", email),
	)
	return nil
}

// compile-time interface check
var _ Mailer = (*LogMailer)(nil)
