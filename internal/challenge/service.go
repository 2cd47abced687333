// Package challenge はチャレンジ参加管理のドメインロジックを提供する。
package challenge

import (
	"context"
	"fmt"

	"github.com/hitoshi/mrlater/internal/model"
	"github.com/hitoshi/mrlater/internal/repository"
)

// MetricsRecorder はチャレンジ操作のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordChallengeJoined()
	RecordChallengeLeft()
}

// Service はチャレンジ参加管理のサービス層。
// 参加/離脱は参加者リスト全体の書き戻しで行われ、同時更新は
// last-write-winsとなる。リストの整合性はここでは調停しない。
type Service struct {
	challengeRepo repository.ChallengeRepository
	profileRepo   repository.ProfileRepository
	metrics       MetricsRecorder
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	challengeRepo repository.ChallengeRepository,
	profileRepo repository.ProfileRepository,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		challengeRepo: challengeRepo,
		profileRepo:   profileRepo,
		metrics:       metrics,
	}
}

// ListChallenges は全チャレンジを開始日降順で返す。
func (s *Service) ListChallenges(ctx context.Context) ([]*model.Challenge, error) {
	challenges, err := s.challengeRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("チャレンジ一覧の取得に失敗しました: %w", err)
	}
	return challenges, nil
}

// ListJoinedChallenges はユーザーが参加中のチャレンジを返す。
func (s *Service) ListJoinedChallenges(ctx context.Context, userID string) ([]*model.Challenge, error) {
	challenges, err := s.challengeRepo.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("参加チャレンジの取得に失敗しました: %w", err)
	}
	return challenges, nil
}

// Join はユーザーをチャレンジに参加させ、更新後の行を返す。
// 既に参加済みの場合は書き込みを行わず現在の行をそのまま返す。
func (s *Service) Join(ctx context.Context, userID, challengeID string) (*model.Challenge, error) {
	challenge, err := s.challengeRepo.FindByID(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("チャレンジの取得に失敗しました: %w", err)
	}
	if challenge == nil {
		return nil, model.NewChallengeNotFoundError(challengeID)
	}

	if challenge.HasParticipant(userID) {
		return challenge, nil
	}

	if err := s.checkJoinedLimit(ctx, userID); err != nil {
		return nil, err
	}

	// 参加者リスト全体を書き戻す
	participants := append(append([]string{}, challenge.Participants...), userID)
	if err := s.challengeRepo.UpdateParticipants(ctx, challengeID, participants); err != nil {
		return nil, fmt.Errorf("参加者の更新に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordChallengeJoined()
	}
	challenge.Participants = participants
	return challenge, nil
}

// Leave はユーザーをチャレンジから離脱させ、更新後の行を返す。
// 参加していない場合は書き込みを行わず現在の行をそのまま返す。
func (s *Service) Leave(ctx context.Context, userID, challengeID string) (*model.Challenge, error) {
	challenge, err := s.challengeRepo.FindByID(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("チャレンジの取得に失敗しました: %w", err)
	}
	if challenge == nil {
		return nil, model.NewChallengeNotFoundError(challengeID)
	}

	if !challenge.HasParticipant(userID) {
		return challenge, nil
	}

	participants := make([]string, 0, len(challenge.Participants))
	for _, id := range challenge.Participants {
		if id != userID {
			participants = append(participants, id)
		}
	}

	if err := s.challengeRepo.UpdateParticipants(ctx, challengeID, participants); err != nil {
		return nil, fmt.Errorf("参加者の更新に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordChallengeLeft()
	}
	challenge.Participants = participants
	return challenge, nil
}

// checkJoinedLimit は参加中チャレンジ数がプラン上限未満であることを確認する。
func (s *Service) checkJoinedLimit(ctx context.Context, userID string) error {
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
	count, err := s.challengeRepo.CountByParticipant(ctx, userID)
	if err != nil {
		return fmt.Errorf("参加チャレンジ数の取得に失敗しました: %w", err)
	}
	if count >= limits.MaxJoinedChallenges {
		return model.NewPlanLimitError("参加チャレンジ", limits.MaxJoinedChallenges)
	}
	return nil
}
