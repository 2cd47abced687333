package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresTokenRepo はワンタイムコードとパスワードリセットトークンのリポジトリ。
// コード/トークンの平文は保存せず、呼び出し側で計算したハッシュのみを受け取る。
type PostgresTokenRepo struct {
	db *sql.DB
}

// NewPostgresTokenRepo はPostgresTokenRepoを生成する。
func NewPostgresTokenRepo(db *sql.DB) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: db}
}

// CreateOTP はワンタイムコードを登録する。
func (r *PostgresTokenRepo) CreateOTP(ctx context.Context, email, codeHash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO otp_tokens (id, email, code_hash, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), email, codeHash, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create OTP: %w", err)
	}
	return nil
}

// ConsumeOTP は未使用かつ有効期限内のコードを消費する。
// 一致するコードがない場合はfalseを返す。
func (r *PostgresTokenRepo) ConsumeOTP(ctx context.Context, email, codeHash string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE otp_tokens
		 SET consumed_at = now()
		 WHERE email = $1 AND code_hash = $2
		   AND consumed_at IS NULL AND expires_at > now()`,
		email, codeHash,
	)
	if err != nil {
		return false, fmt.Errorf("failed to consume OTP: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// CreateResetToken はパスワードリセットトークンを登録する。
func (r *PostgresTokenRepo) CreateResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), userID, tokenHash, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}
	return nil
}

// ConsumeResetToken は未使用かつ有効期限内のトークンを消費し、対象ユーザーIDを返す。
// 一致するトークンがない場合は空文字列を返す。
func (r *PostgresTokenRepo) ConsumeResetToken(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx,
		`UPDATE password_reset_tokens
		 SET consumed_at = now()
		 WHERE token_hash = $1
		   AND consumed_at IS NULL AND expires_at > now()
		 RETURNING user_id`,
		tokenHash,
	).Scan(&userID)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to consume reset token: %w", err)
	}

	return userID, nil
}

// DeleteExpired は期限切れまたは消費済みのコード/トークンを削除し、削除件数を返す。
// クリーンアップワーカーから定期的に呼ばれる。
func (r *PostgresTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	var total int64
	for _, table := range []string{"otp_tokens", "password_reset_tokens"} {
		result, err := r.db.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE expires_at <= now() OR consumed_at IS NOT NULL`,
		)
		if err != nil {
			return total, fmt.Errorf("failed to delete expired tokens from %s: %w", table, err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to get rows affected: %w", err)
		}
		total += rowsAffected
	}
	return total, nil
}

// compile-time interface check
var _ TokenRepository = (*PostgresTokenRepo)(nil)
