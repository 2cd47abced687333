package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/mrlater/internal/model"
)

// PostgresLeaderboardRepo はuser_task_leaderboardマテリアライズドビューを読むリポジトリ。
// ビューの更新はリーダーボードワーカーが行う。
type PostgresLeaderboardRepo struct {
	db *sql.DB
}

// NewPostgresLeaderboardRepo はPostgresLeaderboardRepoを生成する。
func NewPostgresLeaderboardRepo(db *sql.DB) *PostgresLeaderboardRepo {
	return &PostgresLeaderboardRepo{db: db}
}

// Top は完了タスク数の多い順に最大limit件を返す。
func (r *PostgresLeaderboardRepo) Top(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, completed_tasks
		 FROM user_task_leaderboard
		 ORDER BY completed_tasks DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []model.LeaderboardEntry{}
	for rows.Next() {
		var entry model.LeaderboardEntry
		if err := rows.Scan(&entry.UserID, &entry.CompletedTasks); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate leaderboard: %w", err)
	}

	return entries, nil
}

// Refresh はマテリアライズドビューをCONCURRENTLYでリフレッシュする。
func (r *PostgresLeaderboardRepo) Refresh(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`REFRESH MATERIALIZED VIEW CONCURRENTLY user_task_leaderboard`,
	)
	if err != nil {
		return fmt.Errorf("failed to refresh leaderboard: %w", err)
	}
	return nil
}

// compile-time interface check
var _ LeaderboardRepository = (*PostgresLeaderboardRepo)(nil)
