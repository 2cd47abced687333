package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/mrlater/internal/model"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

const taskColumns = `id, user_id, title, description, due_date, status, priority, category, created_at`

func scanTask(row interface{ Scan(...any) error }) (*model.Task, error) {
	task := &model.Task{}
	err := row.Scan(&task.ID, &task.UserID, &task.Title, &task.Description,
		&task.DueDate, &task.Status, &task.Priority, &task.Category, &task.CreatedAt)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ListByUserID は指定ユーザーの全タスクを期日昇順で返す。
func (r *PostgresTaskRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks
		 WHERE user_id = $1
		 ORDER BY due_date ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*model.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, nil
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	task, err := scanTask(r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return task, nil
}

// Create はタスクを作成し、サーバー側でIDと作成日時を割り当てた行を返す。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) (*model.Task, error) {
	id := task.ID
	if id == "" {
		id = uuid.New().String()
	}
	created, err := scanTask(r.db.QueryRowContext(ctx,
		`INSERT INTO tasks (id, user_id, title, description, due_date, status, priority, category)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+taskColumns,
		id, task.UserID, task.Title, task.Description,
		task.DueDate, task.Status, task.Priority, task.Category,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}
	return created, nil
}

// Update はタスクを部分更新し、更新後の行を返す。nilフィールドは変更しない。
func (r *PostgresTaskRepo) Update(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	// 1. 指定されたフィールドのみSET句を組み立てる
	sets := []string{}
	args := []any{}
	argPos := 1

	appendSet := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}
	if patch.Title != nil {
		appendSet("title", *patch.Title)
	}
	if patch.Description != nil {
		appendSet("description", *patch.Description)
	}
	if patch.DueDate != nil {
		appendSet("due_date", *patch.DueDate)
	}
	if patch.Status != nil {
		appendSet("status", string(*patch.Status))
	}
	if patch.Priority != nil {
		appendSet("priority", string(*patch.Priority))
	}
	if patch.Category != nil {
		appendSet("category", *patch.Category)
	}
	if len(sets) == 0 {
		// 空パッチは何も変更せず現在の行を返す
		task, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if task == nil {
			return nil, fmt.Errorf("task not found: %s", id)
		}
		return task, nil
	}
	args = append(args, id)

	// 2. 更新を実行し、更新後の行を取得する
	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = $%d RETURNING `+taskColumns,
		strings.Join(sets, ", "), argPos)
	updated, err := scanTask(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return updated, nil
}

// Delete は指定IDのタスクを削除する。
func (r *PostgresTaskRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("task not found: %s", id)
	}
	return nil
}

// CountActiveByUserID は指定ユーザーの未完了（done以外）タスク数を返す。
// プラン上限のチェックに使用する。
func (r *PostgresTaskRepo) CountActiveByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM tasks WHERE user_id = $1 AND status <> 'done'`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active tasks: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
