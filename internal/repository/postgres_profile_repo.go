package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/mrlater/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByUserID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	profile := &model.Profile{}
	var plan string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, avatar_url, plan, stripe_customer_id, created_at, updated_at
		 FROM profiles WHERE id = $1`,
		userID,
	).Scan(&profile.ID, &profile.Name, &profile.Email, &profile.AvatarURL,
		&plan, &profile.StripeCustomerID, &profile.CreatedAt, &profile.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}

	profile.Plan = model.GetPlanTier(plan)
	return profile, nil
}

// FindByStripeCustomerID はStripe顧客IDでプロフィールを検索する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByStripeCustomerID(ctx context.Context, customerID string) (*model.Profile, error) {
	profile := &model.Profile{}
	var plan string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, avatar_url, plan, stripe_customer_id, created_at, updated_at
		 FROM profiles WHERE stripe_customer_id = $1`,
		customerID,
	).Scan(&profile.ID, &profile.Name, &profile.Email, &profile.AvatarURL,
		&plan, &profile.StripeCustomerID, &profile.CreatedAt, &profile.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by customer ID: %w", err)
	}

	profile.Plan = model.GetPlanTier(plan)
	return profile, nil
}

// Create はプロフィールを作成する。
func (r *PostgresProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, name, email, avatar_url, plan, stripe_customer_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		profile.ID, profile.Name, profile.Email, profile.AvatarURL,
		string(profile.Plan), profile.StripeCustomerID, profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

// Update はプロフィールを部分更新する。nilフィールドは変更しない。
func (r *PostgresProfileRepo) Update(ctx context.Context, userID string, patch model.ProfilePatch) error {
	// 1. 指定されたフィールドのみSET句を組み立てる
	sets := []string{}
	args := []any{}
	argPos := 1

	if patch.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", argPos))
		args = append(args, *patch.Name)
		argPos++
	}
	if patch.AvatarURL != nil {
		sets = append(sets, fmt.Sprintf("avatar_url = $%d", argPos))
		args = append(args, *patch.AvatarURL)
		argPos++
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, userID)

	// 2. 更新を実行し、対象行の存在を確認する
	query := fmt.Sprintf(`UPDATE profiles SET %s WHERE id = $%d`, strings.Join(sets, ", "), argPos)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("profile not found: %s", userID)
	}
	return nil
}

// SetStripeCustomerID はStripe顧客IDを紐付ける。
func (r *PostgresProfileRepo) SetStripeCustomerID(ctx context.Context, userID, customerID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET stripe_customer_id = $1, updated_at = now() WHERE id = $2`,
		customerID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set stripe customer ID: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
