package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/mrlater/internal/changefeed"
	"github.com/hitoshi/mrlater/internal/model"
	"github.com/hitoshi/mrlater/internal/repository"
)

// ChangeFeed はストアが変更フィードを購読するためのインターフェース。
// changefeed.Listenerが実装を提供する。
type ChangeFeed interface {
	Subscribe(table string, filter changefeed.Filter, handler changefeed.Handler) func()
}

// TaskCreateInput はタスク作成の入力。IDと作成日時はゲートウェイ側で決まる。
type TaskCreateInput struct {
	Title       string
	Description string
	DueDate     time.Time
	Status      model.TaskStatus
	Priority    model.TaskPriority
	Category    string
}

// TaskStore はユーザーのタスク一覧のローカルスナップショットを保持する。
// 変更フィードのイベントは無効化シグナルとして扱い、全件再取得を行う。
type TaskStore struct {
	taskRepo repository.TaskRepository
	feed     ChangeFeed

	mu     sync.RWMutex
	tasks  []*model.Task
	errMsg string
}

// NewTaskStore はTaskStoreを生成する。
func NewTaskStore(taskRepo repository.TaskRepository, feed ChangeFeed) *TaskStore {
	return &TaskStore{
		taskRepo: taskRepo,
		feed:     feed,
	}
}

// FetchTasks は指定ユーザーの全タスクを期日昇順で取得し、スナップショットを
// 全置換する。進行中の楽観的変更は上書きされる（last-write-wins）。
func (s *TaskStore) FetchTasks(ctx context.Context, userID string) error {
	tasks, err := s.taskRepo.ListByUserID(ctx, userID)
	if err != nil {
		s.setError(err)
		return fmt.Errorf("failed to fetch tasks: %w", err)
	}

	s.mu.Lock()
	s.tasks = tasks
	s.errMsg = ""
	s.mu.Unlock()
	return nil
}

// CreateTask はタスクを作成し、ゲートウェイが返した行をスナップショットの
// 末尾に追加する。再ソートは行わないため、次のFetchTasksまでは
// 期日順が崩れることがある。
func (s *TaskStore) CreateTask(ctx context.Context, userID string, input TaskCreateInput) (*model.Task, error) {
	task := &model.Task{
		UserID:      userID,
		Title:       input.Title,
		Description: input.Description,
		DueDate:     input.DueDate,
		Status:      input.Status,
		Priority:    input.Priority,
		Category:    input.Category,
	}
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}
	if task.Priority == "" {
		task.Priority = model.TaskPriorityMedium
	}

	created, err := s.taskRepo.Create(ctx, task)
	if err != nil {
		s.setError(err)
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.mu.Lock()
	s.tasks = append(s.tasks, created)
	s.mu.Unlock()
	return created, nil
}

// UpdateTask はタスクを部分更新し、成功時にパッチをローカルの行へ浅くマージする。
// 再フェッチは行わず、変更の応答だけでスナップショットを更新する。
func (s *TaskStore) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) error {
	if _, err := s.taskRepo.Update(ctx, id, patch); err != nil {
		s.setError(err)
		return fmt.Errorf("failed to update task: %w", err)
	}

	s.mu.Lock()
	for _, task := range s.tasks {
		if task.ID == id {
			patch.Apply(task)
			break
		}
	}
	s.mu.Unlock()
	return nil
}

// DeleteTask はタスクを削除し、ローカルスナップショットからも取り除く。
func (s *TaskStore) DeleteTask(ctx context.Context, id string) error {
	if err := s.taskRepo.Delete(ctx, id); err != nil {
		s.setError(err)
		return fmt.Errorf("failed to delete task: %w", err)
	}

	s.mu.Lock()
	for i, task := range s.tasks {
		if task.ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	return nil
}

// DoLater はタスクを1暦日先送りし、ステータスをlaterへ変更する。
// 夏時間の切り替え日でも時刻が保たれるようAddDateを使用する。
// ローカルに存在しないIDはResultNotFoundを返し、状態は変更しない。
func (s *TaskStore) DoLater(ctx context.Context, id string) (Result, error) {
	s.mu.RLock()
	var found *model.Task
	for _, task := range s.tasks {
		if task.ID == id {
			found = task
			break
		}
	}
	s.mu.RUnlock()

	if found == nil {
		return ResultNotFound, nil
	}

	newDue := found.DueDate.AddDate(0, 0, 1)
	newStatus := model.TaskStatusLater
	patch := model.TaskPatch{
		DueDate: &newDue,
		Status:  &newStatus,
	}

	if err := s.UpdateTask(ctx, id, patch); err != nil {
		return ResultOK, err
	}
	return ResultOK, nil
}

// SubscribeToTasks は指定ユーザーのタスク変更を購読する。
// どのイベントでも全件再取得を行う。ユーザーIDが空の場合は購読せず、
// 何もしない解除関数を返す。
func (s *TaskStore) SubscribeToTasks(userID string) func() {
	if userID == "" {
		return func() {}
	}

	return s.feed.Subscribe("tasks", changefeed.Filter{UserID: userID}, func(changefeed.Event) {
		if err := s.FetchTasks(context.Background(), userID); err != nil {
			s.setError(err)
		}
	})
}

// Tasks は現在のスナップショットのコピーを返す。
func (s *TaskStore) Tasks() []*model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := make([]*model.Task, len(s.tasks))
	copy(tasks, s.tasks)
	return tasks
}

// Err は最後に記録されたエラーメッセージを返す。
func (s *TaskStore) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

func (s *TaskStore) setError(err error) {
	s.mu.Lock()
	s.errMsg = err.Error()
	s.mu.Unlock()
}
