package user

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/mrlater/internal/model"
)

type mockUserRepo struct {
	findByIDFn   func(ctx context.Context, userID string) (*model.User, error)
	deleteByIDFn func(ctx context.Context, userID string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, userID string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, userID)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockUserRepo) FindByEmail(_ context.Context, _ string) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) Create(_ context.Context, _ *model.User) error { return nil }

func (m *mockUserRepo) CreateWithIdentity(_ context.Context, _ *model.User, _ *model.Identity) error {
	return nil
}

func (m *mockUserRepo) UpdatePasswordHash(_ context.Context, _, _ string) error { return nil }

func (m *mockUserRepo) DeleteByID(ctx context.Context, userID string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, userID)
	}
	return nil
}

type mockSessionRepo struct {
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(_ context.Context, _ *model.Session) error { return nil }

func (m *mockSessionRepo) FindByID(_ context.Context, _ string) (*model.Session, error) {
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(_ context.Context, _ string) error { return nil }

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

type mockProfileRepo struct {
	findByUserIDFn func(ctx context.Context, userID string) (*model.Profile, error)
	createFn       func(ctx context.Context, profile *model.Profile) error
	updateFn       func(ctx context.Context, userID string, patch model.ProfilePatch) error
}

func (m *mockProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	if m.findByUserIDFn != nil {
		return m.findByUserIDFn(ctx, userID)
	}
	return &model.Profile{ID: userID}, nil
}

func (m *mockProfileRepo) FindByStripeCustomerID(_ context.Context, _ string) (*model.Profile, error) {
	return nil, nil
}

func (m *mockProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	if m.createFn != nil {
		return m.createFn(ctx, profile)
	}
	return nil
}

func (m *mockProfileRepo) Update(ctx context.Context, userID string, patch model.ProfilePatch) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, patch)
	}
	return nil
}

func (m *mockProfileRepo) SetStripeCustomerID(_ context.Context, _, _ string) error { return nil }

type mockParticipantRemover struct {
	removeFn func(ctx context.Context, userID string) error
}

func (m *mockParticipantRemover) RemoveParticipantFromAll(ctx context.Context, userID string) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, userID)
	}
	return nil
}

type mockAvatarProber struct {
	probeFn func(ctx context.Context, rawURL string) error
}

func (m *mockAvatarProber) Probe(ctx context.Context, rawURL string) error {
	if m.probeFn != nil {
		return m.probeFn(ctx, rawURL)
	}
	return nil
}

// 退会処理が参加除去→セッション→ユーザーの順で実行されることを検証
func TestWithdraw_DeletionOrder(t *testing.T) {
	var order []string
	userRepo := &mockUserRepo{
		deleteByIDFn: func(_ context.Context, _ string) error {
			order = append(order, "user")
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(_ context.Context, _ string) error {
			order = append(order, "sessions")
			return nil
		},
	}
	remover := &mockParticipantRemover{
		removeFn: func(_ context.Context, _ string) error {
			order = append(order, "participants")
			return nil
		},
	}
	service := NewService(userRepo, sessionRepo, &mockProfileRepo{}, remover, nil)

	if err := service.Withdraw(context.Background(), "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"participants", "sessions", "user"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

// 存在しないユーザーの退会が拒否されることを検証
func TestWithdraw_UserNotFound(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFn: func(_ context.Context, _ string) (*model.User, error) {
			return nil, nil
		},
		deleteByIDFn: func(_ context.Context, _ string) error {
			t.Fatal("delete must not be called")
			return nil
		},
	}
	service := NewService(userRepo, &mockSessionRepo{}, &mockProfileRepo{}, nil, nil)

	err := service.Withdraw(context.Background(), "missing")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}
}

// 参加除去の失敗で退会処理が中断されることを検証
func TestWithdraw_StopsOnRemovalFailure(t *testing.T) {
	deleted := false
	userRepo := &mockUserRepo{
		deleteByIDFn: func(_ context.Context, _ string) error {
			deleted = true
			return nil
		},
	}
	remover := &mockParticipantRemover{
		removeFn: func(_ context.Context, _ string) error {
			return errors.New("array update failed")
		},
	}
	service := NewService(userRepo, &mockSessionRepo{}, &mockProfileRepo{}, remover, nil)

	if err := service.Withdraw(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error")
	}
	if deleted {
		t.Error("expected user kept when removal fails")
	}
}

// アバターURLがプローブを通過した場合のみ更新されることを検証
func TestUpdateProfile_ProbesAvatarURL(t *testing.T) {
	var probedURL string
	prober := &mockAvatarProber{
		probeFn: func(_ context.Context, rawURL string) error {
			probedURL = rawURL
			return nil
		},
	}
	service := NewService(&mockUserRepo{}, &mockSessionRepo{}, &mockProfileRepo{}, nil, prober)

	avatarURL := "https://cdn.example.com/avatar.png"
	if _, err := service.UpdateProfile(context.Background(), "user-1", model.ProfilePatch{AvatarURL: &avatarURL}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if probedURL != avatarURL {
		t.Errorf("expected URL probed, got %q", probedURL)
	}
}

// プローブ失敗でアバターURLが拒否されることを検証
func TestUpdateProfile_RejectsUnreachableAvatarURL(t *testing.T) {
	prober := &mockAvatarProber{
		probeFn: func(_ context.Context, _ string) error {
			return errors.New("blocked")
		},
	}
	updated := false
	profileRepo := &mockProfileRepo{
		updateFn: func(_ context.Context, _ string, _ model.ProfilePatch) error {
			updated = true
			return nil
		},
	}
	service := NewService(&mockUserRepo{}, &mockSessionRepo{}, profileRepo, nil, prober)

	avatarURL := "http://169.254.169.254/latest/meta-data"
	_, err := service.UpdateProfile(context.Background(), "user-1", model.ProfilePatch{AvatarURL: &avatarURL})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidAvatarURL {
		t.Fatalf("expected INVALID_AVATAR_URL, got %v", err)
	}
	if updated {
		t.Error("expected no update for rejected URL")
	}
}

// 名前のみの更新ではプローブが呼ばれないことを検証
func TestUpdateProfile_NameOnlySkipsProbe(t *testing.T) {
	prober := &mockAvatarProber{
		probeFn: func(_ context.Context, _ string) error {
			t.Fatal("probe must not be called")
			return nil
		},
	}
	service := NewService(&mockUserRepo{}, &mockSessionRepo{}, &mockProfileRepo{}, nil, prober)

	name := "新しい名前"
	if _, err := service.UpdateProfile(context.Background(), "user-1", model.ProfilePatch{Name: &name}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// プロフィール不在がPROFILE_NOT_FOUNDになることを検証
// 初期プロフィールがfreeプランで作成されることを検証
func TestCreateProfile_StartsOnFreePlan(t *testing.T) {
	var saved *model.Profile
	profileRepo := &mockProfileRepo{
		createFn: func(_ context.Context, profile *model.Profile) error {
			saved = profile
			return nil
		},
	}
	service := NewService(&mockUserRepo{}, &mockSessionRepo{}, profileRepo, nil, nil)

	profile, err := service.CreateProfile(context.Background(), "user-1", "太郎", "taro@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if saved == nil || saved.ID != "user-1" || saved.Name != "太郎" || saved.Email != "taro@example.com" {
		t.Errorf("saved profile = %+v, want user-1/太郎/taro@example.com", saved)
	}
	if profile.Plan != model.PlanFree {
		t.Errorf("plan = %s, want %s", profile.Plan, model.PlanFree)
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	profileRepo := &mockProfileRepo{
		findByUserIDFn: func(_ context.Context, _ string) (*model.Profile, error) {
			return nil, nil
		},
	}
	service := NewService(&mockUserRepo{}, &mockSessionRepo{}, profileRepo, nil, nil)

	_, err := service.GetProfile(context.Background(), "user-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProfileNotFound {
		t.Fatalf("expected PROFILE_NOT_FOUND, got %v", err)
	}
}
