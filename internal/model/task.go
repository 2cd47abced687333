package model

import "time"

// Task は1件の先送りまたは進行中の作業単位を表す。
// 所有者は作成した認証済みユーザーであり、変更されることはない。
type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string
	DueDate     time.Time
	Status      TaskStatus
	Priority    TaskPriority
	Category    string
	CreatedAt   time.Time
}

// TaskStatus はタスクの状態を表す。
// 遷移はすべてクライアント側で許可され、そのまま永続化される。
type TaskStatus string

const (
	// TaskStatusPending は未着手の状態。
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusLater は先送りされた状態。
	TaskStatusLater TaskStatus = "later"
	// TaskStatusDone は完了した状態。
	TaskStatusDone TaskStatus = "done"
)

// IsValid はステータス値が定義済みかを返す。
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusLater, TaskStatusDone:
		return true
	}
	return false
}

// TaskPriority はタスクの優先度を表す。
type TaskPriority string

const (
	// TaskPriorityLow は低優先度。
	TaskPriorityLow TaskPriority = "low"
	// TaskPriorityMedium は中優先度。
	TaskPriorityMedium TaskPriority = "medium"
	// TaskPriorityHigh は高優先度。
	TaskPriorityHigh TaskPriority = "high"
)

// IsValid は優先度値が定義済みかを返す。
func (p TaskPriority) IsValid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}

// TaskPatch はタスクの部分更新を表す。
// nilフィールドは変更しない。
type TaskPatch struct {
	Title       *string
	Description *string
	DueDate     *time.Time
	Status      *TaskStatus
	Priority    *TaskPriority
	Category    *string
}

// Apply はパッチをタスクに浅くマージする。
func (p TaskPatch) Apply(task *Task) {
	if p.Title != nil {
		task.Title = *p.Title
	}
	if p.Description != nil {
		task.Description = *p.Description
	}
	if p.DueDate != nil {
		task.DueDate = *p.DueDate
	}
	if p.Status != nil {
		task.Status = *p.Status
	}
	if p.Priority != nil {
		task.Priority = *p.Priority
	}
	if p.Category != nil {
		task.Category = *p.Category
	}
}

// LeaderboardEntry は完了タスク数ランキングの1行を表す。
// user_task_leaderboardマテリアライズドビューが裏付ける。
type LeaderboardEntry struct {
	UserID         string
	CompletedTasks int
}
