package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/hitoshi/mrlater/internal/changefeed"
	"github.com/hitoshi/mrlater/internal/model"
	"github.com/hitoshi/mrlater/internal/repository"
)

// ChallengeStore はチャレンジ一覧と参加中チャレンジのスナップショットを保持する。
// 参加者リストの書き込みは全置換であり、同時更新はlast-write-winsとなる。
type ChallengeStore struct {
	challengeRepo repository.ChallengeRepository
	feed          ChangeFeed

	mu             sync.RWMutex
	challenges     []*model.Challenge
	userChallenges []*model.Challenge
	errMsg         string
}

// NewChallengeStore はChallengeStoreを生成する。
func NewChallengeStore(challengeRepo repository.ChallengeRepository, feed ChangeFeed) *ChallengeStore {
	return &ChallengeStore{
		challengeRepo: challengeRepo,
		feed:          feed,
	}
}

// FetchChallenges は全チャレンジを開始日降順で取得し、スナップショットを全置換する。
func (s *ChallengeStore) FetchChallenges(ctx context.Context) error {
	challenges, err := s.challengeRepo.ListAll(ctx)
	if err != nil {
		s.setError(err)
		return fmt.Errorf("failed to fetch challenges: %w", err)
	}

	s.mu.Lock()
	s.challenges = challenges
	s.errMsg = ""
	s.mu.Unlock()
	return nil
}

// FetchUserChallenges は指定ユーザーが参加しているチャレンジを取得する。
// ユーザーIDが空の場合はResultNoUserを返し、状態は変更しない。
func (s *ChallengeStore) FetchUserChallenges(ctx context.Context, userID string) (Result, error) {
	if userID == "" {
		return ResultNoUser, nil
	}

	challenges, err := s.challengeRepo.ListByParticipant(ctx, userID)
	if err != nil {
		s.setError(err)
		return ResultOK, fmt.Errorf("failed to fetch user challenges: %w", err)
	}

	s.mu.Lock()
	s.userChallenges = challenges
	s.mu.Unlock()
	return ResultOK, nil
}

// JoinChallenge はチャレンジに参加する。
// 判定は必ずゲートウェイから取り直した最新の行に対して行う。
// 既に参加済みの場合はResultAlreadyJoinedを返し、書き込みは行わない。
func (s *ChallengeStore) JoinChallenge(ctx context.Context, userID, challengeID string) (Result, error) {
	if userID == "" {
		return ResultNoUser, nil
	}

	// 1. 最新の参加者リストを取得する
	challenge, err := s.challengeRepo.FindByID(ctx, challengeID)
	if err != nil {
		s.setError(err)
		return ResultOK, fmt.Errorf("failed to fetch challenge: %w", err)
	}
	if challenge == nil {
		return ResultNotFound, nil
	}

	// 2. 冪等性チェック
	if challenge.HasParticipant(userID) {
		return ResultAlreadyJoined, nil
	}

	// 3. 参加者リスト全体を書き戻す（last-write-wins）
	participants := append(append([]string{}, challenge.Participants...), userID)
	if err := s.challengeRepo.UpdateParticipants(ctx, challengeID, participants); err != nil {
		s.setError(err)
		return ResultOK, fmt.Errorf("failed to join challenge: %w", err)
	}

	// 4. 両方のローカルリストへ反映する
	challenge.Participants = participants
	s.mu.Lock()
	for _, c := range s.challenges {
		if c.ID == challengeID {
			c.Participants = participants
			break
		}
	}
	s.userChallenges = append(s.userChallenges, challenge)
	s.mu.Unlock()

	return ResultOK, nil
}

// LeaveChallenge はチャレンジから離脱する。
// 参加していない場合はResultNotJoinedを返し、書き込みは行わない。
func (s *ChallengeStore) LeaveChallenge(ctx context.Context, userID, challengeID string) (Result, error) {
	if userID == "" {
		return ResultNoUser, nil
	}

	// 1. 最新の参加者リストを取得する
	challenge, err := s.challengeRepo.FindByID(ctx, challengeID)
	if err != nil {
		s.setError(err)
		return ResultOK, fmt.Errorf("failed to fetch challenge: %w", err)
	}
	if challenge == nil {
		return ResultNotFound, nil
	}

	// 2. 非参加者は書き込みを省略する
	if !challenge.HasParticipant(userID) {
		return ResultNotJoined, nil
	}

	// 3. 参加者リスト全体を書き戻す（last-write-wins）
	participants := make([]string, 0, len(challenge.Participants))
	for _, p := range challenge.Participants {
		if p != userID {
			participants = append(participants, p)
		}
	}
	if err := s.challengeRepo.UpdateParticipants(ctx, challengeID, participants); err != nil {
		s.setError(err)
		return ResultOK, fmt.Errorf("failed to leave challenge: %w", err)
	}

	// 4. 両方のローカルリストへ反映する
	s.mu.Lock()
	for _, c := range s.challenges {
		if c.ID == challengeID {
			c.Participants = participants
			break
		}
	}
	for i, c := range s.userChallenges {
		if c.ID == challengeID {
			s.userChallenges = append(s.userChallenges[:i], s.userChallenges[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	return ResultOK, nil
}

// SubscribeToChanges はチャレンジテーブルの変更を購読する。
// どのイベントでも両方の一覧を再取得する。
func (s *ChallengeStore) SubscribeToChanges(userID string) func() {
	return s.feed.Subscribe("challenges", changefeed.Filter{}, func(changefeed.Event) {
		ctx := context.Background()
		if err := s.FetchChallenges(ctx); err != nil {
			s.setError(err)
		}
		if _, err := s.FetchUserChallenges(ctx, userID); err != nil {
			s.setError(err)
		}
	})
}

// Challenges は全チャレンジのスナップショットのコピーを返す。
func (s *ChallengeStore) Challenges() []*model.Challenge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	challenges := make([]*model.Challenge, len(s.challenges))
	copy(challenges, s.challenges)
	return challenges
}

// UserChallenges は参加中チャレンジのスナップショットのコピーを返す。
func (s *ChallengeStore) UserChallenges() []*model.Challenge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	challenges := make([]*model.Challenge, len(s.userChallenges))
	copy(challenges, s.userChallenges)
	return challenges
}

// Err は最後に記録されたエラーメッセージを返す。
func (s *ChallengeStore) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

func (s *ChallengeStore) setError(err error) {
	s.mu.Lock()
	s.errMsg = err.Error()
	s.mu.Unlock()
}
