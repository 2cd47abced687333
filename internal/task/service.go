// Package task はタスク管理のドメインロジックを提供する。
package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/mrlater/internal/model"
	"github.com/hitoshi/mrlater/internal/repository"
)

// Sanitizer は自由入力テキストの無害化インターフェース。
type Sanitizer interface {
	Sanitize(text string) string
}

// MetricsRecorder はタスク操作のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordTaskCreated()
	RecordTaskCompleted()
}

// CreateInput はタスク作成の入力。
type CreateInput struct {
	Title       string
	Description string
	DueDate     time.Time
	Status      string
	Priority    string
	Category    string
}

// Service はタスク管理のサービス層。
// クライアント側ストアでは強制できない検証・無害化・プラン上限を担う。
type Service struct {
	taskRepo    repository.TaskRepository
	profileRepo repository.ProfileRepository
	sanitizer   Sanitizer
	metrics     MetricsRecorder
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	taskRepo repository.TaskRepository,
	profileRepo repository.ProfileRepository,
	sanitizer Sanitizer,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		taskRepo:    taskRepo,
		profileRepo: profileRepo,
		sanitizer:   sanitizer,
		metrics:     metrics,
	}
}

// ListTasks はユーザーのタスク一覧を期限昇順で返す。
func (s *Service) ListTasks(ctx context.Context, userID string) ([]*model.Task, error) {
	tasks, err := s.taskRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	return tasks, nil
}

// CreateTask はタスクを作成して保存後の行を返す。
// ステータス・優先度が未指定の場合は pending / medium を補う。
func (s *Service) CreateTask(ctx context.Context, userID string, input CreateInput) (*model.Task, error) {
	// 1. 検証
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, model.NewEmptyTitleError()
	}

	status := model.TaskStatusPending
	if input.Status != "" {
		status = model.TaskStatus(input.Status)
		if !status.IsValid() {
			return nil, model.NewInvalidStatusError(input.Status)
		}
	}

	priority := model.TaskPriorityMedium
	if input.Priority != "" {
		priority = model.TaskPriority(input.Priority)
		if !priority.IsValid() {
			return nil, model.NewInvalidPriorityError(input.Priority)
		}
	}

	// 2. プラン上限の確認
	if err := s.checkActiveTaskLimit(ctx, userID); err != nil {
		return nil, err
	}

	// 3. IDを採番し、無害化して保存
	task := &model.Task{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       s.sanitize(title),
		Description: s.sanitize(input.Description),
		DueDate:     input.DueDate,
		Status:      status,
		Priority:    priority,
		Category:    s.sanitize(input.Category),
	}

	created, err := s.taskRepo.Create(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordTaskCreated()
	}
	return created, nil
}

// UpdateTask はタスクを部分更新して更新後の行を返す。
// 所有者以外からの更新はタスク未検出として扱う。
func (s *Service) UpdateTask(ctx context.Context, userID, taskID string, patch model.TaskPatch) (*model.Task, error) {
	task, err := s.findOwnedTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, model.NewEmptyTitleError()
		}
		sanitized := s.sanitize(title)
		patch.Title = &sanitized
	}
	if patch.Status != nil && !patch.Status.IsValid() {
		return nil, model.NewInvalidStatusError(string(*patch.Status))
	}
	if patch.Priority != nil && !patch.Priority.IsValid() {
		return nil, model.NewInvalidPriorityError(string(*patch.Priority))
	}
	if patch.Description != nil {
		sanitized := s.sanitize(*patch.Description)
		patch.Description = &sanitized
	}
	if patch.Category != nil {
		sanitized := s.sanitize(*patch.Category)
		patch.Category = &sanitized
	}

	updated, err := s.taskRepo.Update(ctx, taskID, patch)
	if err != nil {
		return nil, fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}

	// 完了への遷移を記録する
	if s.metrics != nil && patch.Status != nil &&
		*patch.Status == model.TaskStatusDone && task.Status != model.TaskStatusDone {
		s.metrics.RecordTaskCompleted()
	}
	return updated, nil
}

// DeleteTask はタスクを削除する。
func (s *Service) DeleteTask(ctx context.Context, userID, taskID string) error {
	if _, err := s.findOwnedTask(ctx, userID, taskID); err != nil {
		return err
	}

	if err := s.taskRepo.Delete(ctx, taskID); err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	return nil
}

// DoLater はタスクの期限を1暦日先送りしてステータスをlaterにする。
// タイムゾーンの切り替わりをまたいでも時刻部分は変えない。
func (s *Service) DoLater(ctx context.Context, userID, taskID string) (*model.Task, error) {
	task, err := s.findOwnedTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	due := task.DueDate.AddDate(0, 0, 1)
	status := model.TaskStatusLater
	patch := model.TaskPatch{DueDate: &due, Status: &status}

	updated, err := s.taskRepo.Update(ctx, taskID, patch)
	if err != nil {
		return nil, fmt.Errorf("タスクの先送りに失敗しました: %w", err)
	}
	return updated, nil
}

// findOwnedTask はタスクを取得し所有者を検証する。
// 他ユーザーのタスクは存在を漏らさないよう未検出として返す。
func (s *Service) findOwnedTask(ctx context.Context, userID, taskID string) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if task == nil || task.UserID != userID {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	return task, nil
}

// checkActiveTaskLimit は未完了タスク数がプラン上限未満であることを確認する。
func (s *Service) checkActiveTaskLimit(ctx context.Context, userID string) error {
	plan := model.PlanFree
	if s.profileRepo != nil {
		profile, err := s.profileRepo.FindByUserID(ctx, userID)
		if err != nil {
			return fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
		}
		if profile != nil {
			plan = profile.Plan
		}
	}

	limits := model.LimitsFor(plan)
	count, err := s.taskRepo.CountActiveByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("タスク数の取得に失敗しました: %w", err)
	}
	if count >= limits.MaxActiveTasks {
		return model.NewPlanLimitError("未完了タスク", limits.MaxActiveTasks)
	}
	return nil
}

func (s *Service) sanitize(text string) string {
	if s.sanitizer == nil {
		return strings.TrimSpace(text)
	}
	return s.sanitizer.Sanitize(text)
}
