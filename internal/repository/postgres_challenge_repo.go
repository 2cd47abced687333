package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/mrlater/internal/model"
)

// PostgresChallengeRepo はPostgreSQLを使用したチャレンジリポジトリ。
// 参加者リストはTEXT[]カラムに保持し、更新は全置換（last-write-wins）。
type PostgresChallengeRepo struct {
	db *sql.DB
}

// NewPostgresChallengeRepo はPostgresChallengeRepoを生成する。
func NewPostgresChallengeRepo(db *sql.DB) *PostgresChallengeRepo {
	return &PostgresChallengeRepo{db: db}
}

const challengeColumns = `id, name, description, start_date, end_date, participants, created_at`

func scanChallenge(row interface{ Scan(...any) error }) (*model.Challenge, error) {
	challenge := &model.Challenge{}
	err := row.Scan(&challenge.ID, &challenge.Name, &challenge.Description,
		&challenge.StartDate, &challenge.EndDate,
		pq.Array(&challenge.Participants), &challenge.CreatedAt)
	if err != nil {
		return nil, err
	}
	if challenge.Participants == nil {
		challenge.Participants = []string{}
	}
	return challenge, nil
}

// ListAll は全チャレンジを開始日降順で返す。
func (r *PostgresChallengeRepo) ListAll(ctx context.Context) ([]*model.Challenge, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+challengeColumns+`
		 FROM challenges
		 ORDER BY start_date DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	return collectChallenges(rows)
}

// ListByParticipant は指定ユーザーが参加しているチャレンジを開始日降順で返す。
func (r *PostgresChallengeRepo) ListByParticipant(ctx context.Context, userID string) ([]*model.Challenge, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+challengeColumns+`
		 FROM challenges
		 WHERE participants @> ARRAY[$1]
		 ORDER BY start_date DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list joined challenges: %w", err)
	}
	defer rows.Close()

	return collectChallenges(rows)
}

func collectChallenges(rows *sql.Rows) ([]*model.Challenge, error) {
	challenges := []*model.Challenge{}
	for rows.Next() {
		challenge, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		challenges = append(challenges, challenge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate challenges: %w", err)
	}
	return challenges, nil
}

// FindByID は指定IDのチャレンジを取得する。見つからない場合はnilを返す。
func (r *PostgresChallengeRepo) FindByID(ctx context.Context, id string) (*model.Challenge, error) {
	challenge, err := scanChallenge(r.db.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find challenge: %w", err)
	}
	return challenge, nil
}

// UpdateParticipants は参加者リストを全置換する。
func (r *PostgresChallengeRepo) UpdateParticipants(ctx context.Context, id string, participants []string) error {
	if participants == nil {
		participants = []string{}
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE challenges SET participants = $1 WHERE id = $2`,
		pq.Array(participants), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update participants: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("challenge not found: %s", id)
	}
	return nil
}

// CountByParticipant は指定ユーザーが参加しているチャレンジ数を返す。
// プラン上限のチェックに使用する。
func (r *PostgresChallengeRepo) CountByParticipant(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM challenges WHERE participants @> ARRAY[$1]`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count joined challenges: %w", err)
	}
	return count, nil
}

// RemoveParticipantFromAll は全チャレンジの参加者リストから指定ユーザーを除去する。
// 退会処理から使用する。
func (r *PostgresChallengeRepo) RemoveParticipantFromAll(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE challenges SET participants = array_remove(participants, $1) WHERE participants @> ARRAY[$1]`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ChallengeRepository = (*PostgresChallengeRepo)(nil)
