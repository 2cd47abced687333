package task

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/mrlater/internal/model"
)

type mockTaskRepo struct {
	listByUserIDFn        func(ctx context.Context, userID string) ([]*model.Task, error)
	findByIDFn            func(ctx context.Context, taskID string) (*model.Task, error)
	createFn              func(ctx context.Context, task *model.Task) (*model.Task, error)
	updateFn              func(ctx context.Context, taskID string, patch model.TaskPatch) (*model.Task, error)
	deleteFn              func(ctx context.Context, taskID string) error
	countActiveByUserIDFn func(ctx context.Context, userID string) (int, error)
}

func (m *mockTaskRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Task, error) {
	if m.listByUserIDFn != nil {
		return m.listByUserIDFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockTaskRepo) FindByID(ctx context.Context, taskID string) (*model.Task, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, taskID)
	}
	return nil, nil
}

func (m *mockTaskRepo) Create(ctx context.Context, task *model.Task) (*model.Task, error) {
	if m.createFn != nil {
		return m.createFn(ctx, task)
	}
	created := *task
	created.ID = "task-created"
	return &created, nil
}

func (m *mockTaskRepo) Update(ctx context.Context, taskID string, patch model.TaskPatch) (*model.Task, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, taskID, patch)
	}
	return &model.Task{ID: taskID}, nil
}

func (m *mockTaskRepo) Delete(ctx context.Context, taskID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, taskID)
	}
	return nil
}

func (m *mockTaskRepo) CountActiveByUserID(ctx context.Context, userID string) (int, error) {
	if m.countActiveByUserIDFn != nil {
		return m.countActiveByUserIDFn(ctx, userID)
	}
	return 0, nil
}

type mockProfileRepo struct {
	findByUserIDFn func(ctx context.Context, userID string) (*model.Profile, error)
}

func (m *mockProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	if m.findByUserIDFn != nil {
		return m.findByUserIDFn(ctx, userID)
	}
	return &model.Profile{ID: userID, Plan: model.PlanFree}, nil
}

func (m *mockProfileRepo) FindByStripeCustomerID(_ context.Context, _ string) (*model.Profile, error) {
	return nil, nil
}

func (m *mockProfileRepo) Create(_ context.Context, _ *model.Profile) error { return nil }

func (m *mockProfileRepo) Update(_ context.Context, _ string, _ model.ProfilePatch) error {
	return nil
}

func (m *mockProfileRepo) SetStripeCustomerID(_ context.Context, _, _ string) error { return nil }

type mockSanitizer struct{}

func (mockSanitizer) Sanitize(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "<script>", ""))
}

type mockMetrics struct {
	created   int
	completed int
}

func (m *mockMetrics) RecordTaskCreated()   { m.created++ }
func (m *mockMetrics) RecordTaskCompleted() { m.completed++ }

func newTestService(taskRepo *mockTaskRepo, profileRepo *mockProfileRepo) (*Service, *mockMetrics) {
	if taskRepo == nil {
		taskRepo = &mockTaskRepo{}
	}
	if profileRepo == nil {
		profileRepo = &mockProfileRepo{}
	}
	metrics := &mockMetrics{}
	return NewService(taskRepo, profileRepo, mockSanitizer{}, metrics), metrics
}

// 作成時に未指定のステータスと優先度が補われることを検証
func TestCreateTask_Defaults(t *testing.T) {
	var saved *model.Task
	taskRepo := &mockTaskRepo{
		createFn: func(_ context.Context, task *model.Task) (*model.Task, error) {
			saved = task
			created := *task
			created.ID = "task-1"
			return &created, nil
		},
	}
	service, metrics := newTestService(taskRepo, nil)

	created, err := service.CreateTask(context.Background(), "user-1", CreateInput{Title: "買い物"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if saved.Status != model.TaskStatusPending {
		t.Errorf("expected default status pending, got %s", saved.Status)
	}
	if saved.Priority != model.TaskPriorityMedium {
		t.Errorf("expected default priority medium, got %s", saved.Priority)
	}
	if created.ID != "task-1" {
		t.Errorf("expected server-assigned ID returned, got %q", created.ID)
	}
	if metrics.created != 1 {
		t.Errorf("expected creation recorded, got %d", metrics.created)
	}
}

// 作成時にサービス層がUUIDを採番して保存に渡すことを検証
func TestCreateTask_AssignsUniqueID(t *testing.T) {
	var savedIDs []string
	taskRepo := &mockTaskRepo{
		createFn: func(_ context.Context, task *model.Task) (*model.Task, error) {
			savedIDs = append(savedIDs, task.ID)
			created := *task
			return &created, nil
		},
	}
	service, _ := newTestService(taskRepo, nil)

	for _, title := range []string{"掃除", "洗濯"} {
		if _, err := service.CreateTask(context.Background(), "user-1", CreateInput{Title: title}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(savedIDs) != 2 {
		t.Fatalf("expected 2 creates, got %d", len(savedIDs))
	}
	for _, id := range savedIDs {
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("expected UUID assigned before insert, got %q: %v", id, err)
		}
	}
	if savedIDs[0] == savedIDs[1] {
		t.Errorf("expected distinct IDs, got %q twice", savedIDs[0])
	}
}

// タイトル検証を検証
func TestCreateTask_EmptyTitle(t *testing.T) {
	service, _ := newTestService(nil, nil)

	for _, title := range []string{"", "   ", "\t\n"} {
		_, err := service.CreateTask(context.Background(), "user-1", CreateInput{Title: title})
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmptyTitle {
			t.Errorf("title %q: expected EMPTY_TITLE, got %v", title, err)
		}
	}
}

// 無効なステータス・優先度が拒否されることを検証
func TestCreateTask_InvalidEnums(t *testing.T) {
	service, _ := newTestService(nil, nil)

	tests := []struct {
		name     string
		input    CreateInput
		wantCode string
	}{
		{"無効なステータス", CreateInput{Title: "t", Status: "someday"}, model.ErrCodeInvalidStatus},
		{"無効な優先度", CreateInput{Title: "t", Priority: "urgent"}, model.ErrCodeInvalidPriority},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.CreateTask(context.Background(), "user-1", tt.input)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != tt.wantCode {
				t.Fatalf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}
}

// 無料プランの未完了タスク上限で作成が拒否されることを検証
func TestCreateTask_FreePlanLimit(t *testing.T) {
	taskRepo := &mockTaskRepo{
		countActiveByUserIDFn: func(_ context.Context, _ string) (int, error) {
			return model.LimitsFor(model.PlanFree).MaxActiveTasks, nil
		},
	}
	service, _ := newTestService(taskRepo, nil)

	_, err := service.CreateTask(context.Background(), "user-1", CreateInput{Title: "上限超え"})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodePlanLimit {
		t.Fatalf("expected PLAN_LIMIT, got %v", err)
	}
}

// Proプランでは無料上限を超えて作成できることを検証
func TestCreateTask_ProPlanAboveFreeLimit(t *testing.T) {
	taskRepo := &mockTaskRepo{
		countActiveByUserIDFn: func(_ context.Context, _ string) (int, error) {
			return model.LimitsFor(model.PlanFree).MaxActiveTasks, nil
		},
	}
	profileRepo := &mockProfileRepo{
		findByUserIDFn: func(_ context.Context, userID string) (*model.Profile, error) {
			return &model.Profile{ID: userID, Plan: model.PlanPro}, nil
		},
	}
	service, _ := newTestService(taskRepo, profileRepo)

	if _, err := service.CreateTask(context.Background(), "user-1", CreateInput{Title: "Proなら可"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// 説明とカテゴリが無害化されて保存されることを検証
func TestCreateTask_SanitizesFields(t *testing.T) {
	var saved *model.Task
	taskRepo := &mockTaskRepo{
		createFn: func(_ context.Context, task *model.Task) (*model.Task, error) {
			saved = task
			return task, nil
		},
	}
	service, _ := newTestService(taskRepo, nil)

	_, err := service.CreateTask(context.Background(), "user-1", CreateInput{
		Title:       "  タイトル  ",
		Description: "<script>alert(1)",
		Category:    "  仕事  ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Title != "タイトル" {
		t.Errorf("expected trimmed title, got %q", saved.Title)
	}
	if strings.Contains(saved.Description, "<script>") {
		t.Errorf("expected sanitized description, got %q", saved.Description)
	}
	if saved.Category != "仕事" {
		t.Errorf("expected trimmed category, got %q", saved.Category)
	}
}

// 他ユーザーのタスク更新が未検出として拒否されることを検証
func TestUpdateTask_OwnershipScoped(t *testing.T) {
	taskRepo := &mockTaskRepo{
		findByIDFn: func(_ context.Context, taskID string) (*model.Task, error) {
			return &model.Task{ID: taskID, UserID: "someone-else"}, nil
		},
		updateFn: func(_ context.Context, _ string, _ model.TaskPatch) (*model.Task, error) {
			t.Fatal("update must not be called for foreign tasks")
			return nil, nil
		},
	}
	service, _ := newTestService(taskRepo, nil)

	_, err := service.UpdateTask(context.Background(), "user-1", "task-1", model.TaskPatch{})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeTaskNotFound {
		t.Fatalf("expected TASK_NOT_FOUND, got %v", err)
	}
}

// 完了への遷移がメトリクスに記録されることを検証
func TestUpdateTask_RecordsCompletion(t *testing.T) {
	taskRepo := &mockTaskRepo{
		findByIDFn: func(_ context.Context, taskID string) (*model.Task, error) {
			return &model.Task{ID: taskID, UserID: "user-1", Status: model.TaskStatusPending}, nil
		},
	}
	service, metrics := newTestService(taskRepo, nil)

	done := model.TaskStatusDone
	if _, err := service.UpdateTask(context.Background(), "user-1", "task-1", model.TaskPatch{Status: &done}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metrics.completed != 1 {
		t.Errorf("expected completion recorded, got %d", metrics.completed)
	}

	// 既に完了済みのタスクへの再設定は数えない
	taskRepo.findByIDFn = func(_ context.Context, taskID string) (*model.Task, error) {
		return &model.Task{ID: taskID, UserID: "user-1", Status: model.TaskStatusDone}, nil
	}
	if _, err := service.UpdateTask(context.Background(), "user-1", "task-1", model.TaskPatch{Status: &done}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metrics.completed != 1 {
		t.Errorf("expected no double count, got %d", metrics.completed)
	}
}

// 削除でも所有者の検証が行われることを検証
func TestDeleteTask_OwnershipScoped(t *testing.T) {
	deleted := false
	taskRepo := &mockTaskRepo{
		findByIDFn: func(_ context.Context, _ string) (*model.Task, error) {
			return nil, nil
		},
		deleteFn: func(_ context.Context, _ string) error {
			deleted = true
			return nil
		},
	}
	service, _ := newTestService(taskRepo, nil)

	err := service.DeleteTask(context.Background(), "user-1", "missing")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeTaskNotFound {
		t.Fatalf("expected TASK_NOT_FOUND, got %v", err)
	}
	if deleted {
		t.Error("expected no delete for missing task")
	}
}

// 先送りで期限が1暦日進みステータスがlaterになることを検証
func TestDoLater_AdvancesOneCalendarDay(t *testing.T) {
	due := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	var gotPatch model.TaskPatch
	taskRepo := &mockTaskRepo{
		findByIDFn: func(_ context.Context, taskID string) (*model.Task, error) {
			return &model.Task{ID: taskID, UserID: "user-1", DueDate: due}, nil
		},
		updateFn: func(_ context.Context, taskID string, patch model.TaskPatch) (*model.Task, error) {
			gotPatch = patch
			return &model.Task{ID: taskID}, nil
		},
	}
	service, _ := newTestService(taskRepo, nil)

	if _, err := service.DoLater(context.Background(), "user-1", "task-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := due.AddDate(0, 0, 1)
	if gotPatch.DueDate == nil || !gotPatch.DueDate.Equal(want) {
		t.Errorf("expected due date %v, got %v", want, gotPatch.DueDate)
	}
	if gotPatch.Status == nil || *gotPatch.Status != model.TaskStatusLater {
		t.Errorf("expected status later, got %v", gotPatch.Status)
	}
}

// 更新時のタイトル空白化が拒否されることを検証
func TestUpdateTask_EmptyTitleRejected(t *testing.T) {
	taskRepo := &mockTaskRepo{
		findByIDFn: func(_ context.Context, taskID string) (*model.Task, error) {
			return &model.Task{ID: taskID, UserID: "user-1"}, nil
		},
	}
	service, _ := newTestService(taskRepo, nil)

	empty := "   "
	_, err := service.UpdateTask(context.Background(), "user-1", "task-1", model.TaskPatch{Title: &empty})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmptyTitle {
		t.Fatalf("expected EMPTY_TITLE, got %v", err)
	}
}
