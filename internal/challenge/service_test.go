package challenge

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/hitoshi/mrlater/internal/model"
)

type mockChallengeRepo struct {
	listAllFn            func(ctx context.Context) ([]*model.Challenge, error)
	listByParticipantFn  func(ctx context.Context, userID string) ([]*model.Challenge, error)
	findByIDFn           func(ctx context.Context, challengeID string) (*model.Challenge, error)
	updateParticipantsFn func(ctx context.Context, challengeID string, participants []string) error
	countByParticipantFn func(ctx context.Context, userID string) (int, error)
}

func (m *mockChallengeRepo) ListAll(ctx context.Context) ([]*model.Challenge, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

func (m *mockChallengeRepo) ListByParticipant(ctx context.Context, userID string) ([]*model.Challenge, error) {
	if m.listByParticipantFn != nil {
		return m.listByParticipantFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockChallengeRepo) FindByID(ctx context.Context, challengeID string) (*model.Challenge, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, challengeID)
	}
	return nil, nil
}

func (m *mockChallengeRepo) UpdateParticipants(ctx context.Context, challengeID string, participants []string) error {
	if m.updateParticipantsFn != nil {
		return m.updateParticipantsFn(ctx, challengeID, participants)
	}
	return nil
}

func (m *mockChallengeRepo) CountByParticipant(ctx context.Context, userID string) (int, error) {
	if m.countByParticipantFn != nil {
		return m.countByParticipantFn(ctx, userID)
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

type mockMetrics struct {
	joined int
	left   int
}

func (m *mockMetrics) RecordChallengeJoined() { m.joined++ }
func (m *mockMetrics) RecordChallengeLeft()   { m.left++ }

func testChallenge(id string, participants ...string) *model.Challenge {
	return &model.Challenge{
		ID:           id,
		Name:         "30日チャレンジ",
		StartDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Participants: participants,
	}
}

// 参加で参加者リスト全体が書き戻されることを検証
func TestJoin_AppendsAndWritesWholeSet(t *testing.T) {
	var written []string
	repo := &mockChallengeRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Challenge, error) {
			return testChallenge(id, "user-a", "user-b"), nil
		},
		updateParticipantsFn: func(_ context.Context, _ string, participants []string) error {
			written = participants
			return nil
		},
	}
	metrics := &mockMetrics{}
	service := NewService(repo, &mockProfileRepo{}, metrics)

	updated, err := service.Join(context.Background(), "user-1", "ch-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"user-a", "user-b", "user-1"}
	if !slices.Equal(written, want) {
		t.Errorf("expected whole participant set written, got %v", written)
	}
	if !slices.Equal(updated.Participants, want) {
		t.Errorf("expected updated row returned, got %v", updated.Participants)
	}
	if metrics.joined != 1 {
		t.Errorf("expected join recorded, got %d", metrics.joined)
	}
}

// 参加済みユーザーの再参加が書き込みなしで成功することを検証
func TestJoin_Idempotent(t *testing.T) {
	repo := &mockChallengeRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Challenge, error) {
			return testChallenge(id, "user-1"), nil
		},
		updateParticipantsFn: func(_ context.Context, _ string, _ []string) error {
			t.Fatal("no write expected for already joined user")
			return nil
		},
	}
	metrics := &mockMetrics{}
	service := NewService(repo, &mockProfileRepo{}, metrics)

	updated, err := service.Join(context.Background(), "user-1", "ch-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.HasParticipant("user-1") {
		t.Error("expected current row returned")
	}
	if metrics.joined != 0 {
		t.Errorf("expected no join recorded, got %d", metrics.joined)
	}
}

// 存在しないチャレンジへの参加が拒否されることを検証
func TestJoin_NotFound(t *testing.T) {
	service := NewService(&mockChallengeRepo{}, &mockProfileRepo{}, nil)

	_, err := service.Join(context.Background(), "user-1", "missing")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeChallengeNotFound {
		t.Fatalf("expected CHALLENGE_NOT_FOUND, got %v", err)
	}
}

// 無料プランの参加チャレンジ上限で参加が拒否されることを検証
func TestJoin_FreePlanLimit(t *testing.T) {
	repo := &mockChallengeRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Challenge, error) {
			return testChallenge(id), nil
		},
		countByParticipantFn: func(_ context.Context, _ string) (int, error) {
			return model.LimitsFor(model.PlanFree).MaxJoinedChallenges, nil
		},
	}
	service := NewService(repo, &mockProfileRepo{}, nil)

	_, err := service.Join(context.Background(), "user-1", "ch-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodePlanLimit {
		t.Fatalf("expected PLAN_LIMIT, got %v", err)
	}
}

// Proプランでは無料上限を超えて参加できることを検証
func TestJoin_ProPlanAboveFreeLimit(t *testing.T) {
	repo := &mockChallengeRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Challenge, error) {
			return testChallenge(id), nil
		},
		countByParticipantFn: func(_ context.Context, _ string) (int, error) {
			return model.LimitsFor(model.PlanFree).MaxJoinedChallenges, nil
		},
	}
	profileRepo := &mockProfileRepo{
		findByUserIDFn: func(_ context.Context, userID string) (*model.Profile, error) {
			return &model.Profile{ID: userID, Plan: model.PlanPro}, nil
		},
	}
	service := NewService(repo, profileRepo, nil)

	if _, err := service.Join(context.Background(), "user-1", "ch-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// 離脱で対象ユーザーのみがリストから除かれることを検証
func TestLeave_RemovesOnlyUser(t *testing.T) {
	var written []string
	repo := &mockChallengeRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Challenge, error) {
			return testChallenge(id, "user-a", "user-1", "user-b"), nil
		},
		updateParticipantsFn: func(_ context.Context, _ string, participants []string) error {
			written = participants
			return nil
		},
	}
	metrics := &mockMetrics{}
	service := NewService(repo, &mockProfileRepo{}, metrics)

	if _, err := service.Leave(context.Background(), "user-1", "ch-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !slices.Equal(written, []string{"user-a", "user-b"}) {
		t.Errorf("expected user removed, got %v", written)
	}
	if metrics.left != 1 {
		t.Errorf("expected leave recorded, got %d", metrics.left)
	}
}

// 未参加ユーザーの離脱が書き込みなしで成功することを検証
func TestLeave_NotJoinedSkipsWrite(t *testing.T) {
	repo := &mockChallengeRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Challenge, error) {
			return testChallenge(id, "user-a"), nil
		},
		updateParticipantsFn: func(_ context.Context, _ string, _ []string) error {
			t.Fatal("no write expected for non-member")
			return nil
		},
	}
	service := NewService(repo, &mockProfileRepo{}, nil)

	updated, err := service.Leave(context.Background(), "user-1", "ch-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(updated.Participants, []string{"user-a"}) {
		t.Errorf("expected unchanged row, got %v", updated.Participants)
	}
}
