// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/mrlater/internal/model"
	"github.com/hitoshi/mrlater/internal/repository"
)

// ParticipantRemover はチャレンジ参加者リストからの一括除去インターフェース。
type ParticipantRemover interface {
	RemoveParticipantFromAll(ctx context.Context, userID string) error
}

// AvatarProber はアバターURLの到達性検証インターフェース。
type AvatarProber interface {
	Probe(ctx context.Context, rawURL string) error
}

// Service はユーザー管理のサービス層。
// プロフィール更新と退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo           repository.UserRepository
	sessionRepo        repository.SessionRepository
	profileRepo        repository.ProfileRepository
	participantRemover ParticipantRemover
	avatarProber       AvatarProber
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	profileRepo repository.ProfileRepository,
	participantRemover ParticipantRemover,
	avatarProber AvatarProber,
) *Service {
	return &Service{
		userRepo:           userRepo,
		sessionRepo:        sessionRepo,
		profileRepo:        profileRepo,
		participantRemover: participantRemover,
		avatarProber:       avatarProber,
	}
}

// CreateProfile はサインアップ直後の初期プロフィールを作成して返す。
// プランはfreeで開始する。
func (s *Service) CreateProfile(ctx context.Context, userID, name, email string) (*model.Profile, error) {
	profile := &model.Profile{
		ID:    userID,
		Name:  name,
		Email: email,
		Plan:  model.PlanFree,
	}
	if err := s.profileRepo.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
	}
	return profile, nil
}

// GetProfile はユーザーのプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	profile, err := s.profileRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError(userID)
	}
	return profile, nil
}

// UpdateProfile はプロフィールを部分更新して更新後の行を返す。
// アバターURLはSSRF対策の検証と到達性プローブを通過したものだけを受け付ける。
func (s *Service) UpdateProfile(ctx context.Context, userID string, patch model.ProfilePatch) (*model.Profile, error) {
	if patch.AvatarURL != nil && *patch.AvatarURL != "" && s.avatarProber != nil {
		if err := s.avatarProber.Probe(ctx, *patch.AvatarURL); err != nil {
			return nil, model.NewInvalidAvatarURLError(err.Error())
		}
	}

	if err := s.profileRepo.Update(ctx, userID, patch); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	profile, err := s.profileRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの再取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError(userID)
	}
	return profile, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: チャレンジ参加の除去 → セッション → ユーザー
// （+ CASCADE: identities, profiles, tasks, otp_tokens, reset_tokens）
// チャレンジ自体は共有リソースとして残す。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	// ユーザー存在確認
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. 参加者リストから除去（外部キーがないため明示的に行う）
	if s.participantRemover != nil {
		if err := s.participantRemover.RemoveParticipantFromAll(ctx, userID); err != nil {
			return fmt.Errorf("チャレンジ参加の除去に失敗しました: %w", err)
		}
	}

	// 2. セッションを削除
	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	// 3. ユーザーを削除（profiles, tasks, tokensはCASCADE削除）
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
