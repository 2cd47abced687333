package store

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/mrlater/internal/changefeed"
	"github.com/hitoshi/mrlater/internal/model"
)

// --- モック定義 ---

type mockChallengeRepo struct {
	listAllFn            func(ctx context.Context) ([]*model.Challenge, error)
	listByParticipantFn  func(ctx context.Context, userID string) ([]*model.Challenge, error)
	findByIDFn           func(ctx context.Context, id string) (*model.Challenge, error)
	updateParticipantsFn func(ctx context.Context, id string, participants []string) error
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

func (m *mockChallengeRepo) FindByID(ctx context.Context, id string) (*model.Challenge, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockChallengeRepo) UpdateParticipants(ctx context.Context, id string, participants []string) error {
	if m.updateParticipantsFn != nil {
		return m.updateParticipantsFn(ctx, id, participants)
	}
	return nil
}

func (m *mockChallengeRepo) CountByParticipant(ctx context.Context, userID string) (int, error) {
	if m.countByParticipantFn != nil {
		return m.countByParticipantFn(ctx, userID)
	}
	return 0, nil
}

func testChallenge(id string, participants ...string) *model.Challenge {
	return &model.Challenge{
		ID:           id,
		Name:         "30日チャレンジ",
		StartDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Participants: participants,
	}
}

// --- テスト ---

// フェッチで一覧が全置換されることを検証
func TestFetchChallenges_OverwritesSnapshot(t *testing.T) {
	repo := &mockChallengeRepo{
		listAllFn: func(_ context.Context) ([]*model.Challenge, error) {
			return []*model.Challenge{testChallenge("c1"), testChallenge("c2")}, nil
		},
	}
	store := NewChallengeStore(repo, &mockFeed{})

	if err := store.FetchChallenges(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.Challenges()) != 2 {
		t.Fatalf("unexpected snapshot: %+v", store.Challenges())
	}
}

// ユーザー不在時の参加中チャレンジ取得がResultNoUserになることを検証
func TestFetchUserChallenges_NoUser(t *testing.T) {
	called := false
	repo := &mockChallengeRepo{
		listByParticipantFn: func(_ context.Context, _ string) ([]*model.Challenge, error) {
			called = true
			return nil, nil
		},
	}
	store := NewChallengeStore(repo, &mockFeed{})

	result, err := store.FetchUserChallenges(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultNoUser {
		t.Fatalf("expected ResultNoUser, got %v", result)
	}
	if called {
		t.Error("expected no gateway call without a user")
	}
}

// 参加で参加者リスト全体が書き戻され両リストに反映されることを検証
func TestJoinChallenge_AppendsAndPatchesBothLists(t *testing.T) {
	var written []string
	repo := &mockChallengeRepo{
		listAllFn: func(_ context.Context) ([]*model.Challenge, error) {
			return []*model.Challenge{testChallenge("c1", "other-user")}, nil
		},
		findByIDFn: func(_ context.Context, id string) (*model.Challenge, error) {
			return testChallenge(id, "other-user"), nil
		},
		updateParticipantsFn: func(_ context.Context, _ string, participants []string) error {
			written = participants
			return nil
		},
	}
	store := NewChallengeStore(repo, &mockFeed{})
	if err := store.FetchChallenges(context.Background()); err != nil {
		t.Fatal(err)
	}

	result, err := store.JoinChallenge(context.Background(), "user-1", "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultOK {
		t.Fatalf("expected ResultOK, got %v", result)
	}

	if len(written) != 2 || written[0] != "other-user" || written[1] != "user-1" {
		t.Errorf("expected whole participant set written, got %v", written)
	}

	challenges := store.Challenges()
	if !challenges[0].HasParticipant("user-1") {
		t.Error("expected main list patched")
	}
	userChallenges := store.UserChallenges()
	if len(userChallenges) != 1 || userChallenges[0].ID != "c1" {
		t.Errorf("expected joined challenge in user list, got %+v", userChallenges)
	}
}

// 参加済みの場合にResultAlreadyJoinedで書き込みが省略されることを検証
func TestJoinChallenge_Idempotent(t *testing.T) {
	writeCalled := false
	repo := &mockChallengeRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Challenge, error) {
			return testChallenge(id, "user-1"), nil
		},
		updateParticipantsFn: func(_ context.Context, _ string, _ []string) error {
			writeCalled = true
			return nil
		},
	}
	store := NewChallengeStore(repo, &mockFeed{})

	result, err := store.JoinChallenge(context.Background(), "user-1", "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultAlreadyJoined {
		t.Fatalf("expected ResultAlreadyJoined, got %v", result)
	}
	if writeCalled {
		t.Error("expected no write for already-joined user")
	}
}

// 参加判定がローカルではなく取り直した最新の行に対して行われることを検証
func TestJoinChallenge_ChecksFreshRow(t *testing.T) {
	repo := &mockChallengeRepo{
		listAllFn: func(_ context.Context) ([]*model.Challenge, error) {
			// ローカルには未参加として見えている
			return []*model.Challenge{testChallenge("c1")}, nil
		},
		findByIDFn: func(_ context.Context, id string) (*model.Challenge, error) {
			// ゲートウェイ側では既に参加済み
			return testChallenge(id, "user-1"), nil
		},
	}
	store := NewChallengeStore(repo, &mockFeed{})
	if err := store.FetchChallenges(context.Background()); err != nil {
		t.Fatal(err)
	}

	result, err := store.JoinChallenge(context.Background(), "user-1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if result != ResultAlreadyJoined {
		t.Fatalf("expected fresh-row check to win, got %v", result)
	}
}

// 存在しないチャレンジへの参加がResultNotFoundになることを検証
func TestJoinChallenge_NotFound(t *testing.T) {
	store := NewChallengeStore(&mockChallengeRepo{}, &mockFeed{})

	result, err := store.JoinChallenge(context.Background(), "user-1", "no-such-challenge")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultNotFound {
		t.Fatalf("expected ResultNotFound, got %v", result)
	}
}

// 離脱で参加者から取り除かれ参加中リストからも消えることを検証
func TestLeaveChallenge_RemovesParticipant(t *testing.T) {
	var written []string
	repo := &mockChallengeRepo{
		listAllFn: func(_ context.Context) ([]*model.Challenge, error) {
			return []*model.Challenge{testChallenge("c1", "user-1", "other-user")}, nil
		},
		listByParticipantFn: func(_ context.Context, _ string) ([]*model.Challenge, error) {
			return []*model.Challenge{testChallenge("c1", "user-1", "other-user")}, nil
		},
		findByIDFn: func(_ context.Context, id string) (*model.Challenge, error) {
			return testChallenge(id, "user-1", "other-user"), nil
		},
		updateParticipantsFn: func(_ context.Context, _ string, participants []string) error {
			written = participants
			return nil
		},
	}
	store := NewChallengeStore(repo, &mockFeed{})
	if err := store.FetchChallenges(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := store.FetchUserChallenges(context.Background(), "user-1"); err != nil {
		t.Fatal(err)
	}

	result, err := store.LeaveChallenge(context.Background(), "user-1", "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultOK {
		t.Fatalf("expected ResultOK, got %v", result)
	}
	if len(written) != 1 || written[0] != "other-user" {
		t.Errorf("expected user removed from written set, got %v", written)
	}
	if len(store.UserChallenges()) != 0 {
		t.Error("expected challenge removed from user list")
	}
	if store.Challenges()[0].HasParticipant("user-1") {
		t.Error("expected main list patched")
	}
}

// 非参加者の離脱がResultNotJoinedで書き込みを行わないことを検証
func TestLeaveChallenge_NotJoined(t *testing.T) {
	writeCalled := false
	repo := &mockChallengeRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Challenge, error) {
			return testChallenge(id, "other-user"), nil
		},
		updateParticipantsFn: func(_ context.Context, _ string, _ []string) error {
			writeCalled = true
			return nil
		},
	}
	store := NewChallengeStore(repo, &mockFeed{})

	result, err := store.LeaveChallenge(context.Background(), "user-1", "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultNotJoined {
		t.Fatalf("expected ResultNotJoined, got %v", result)
	}
	if writeCalled {
		t.Error("expected no write for non-member leave")
	}
}

// 変更イベントで両方の一覧が再取得されることを検証
func TestSubscribeToChanges_RefetchesBothLists(t *testing.T) {
	allFetches := 0
	userFetches := 0
	repo := &mockChallengeRepo{
		listAllFn: func(_ context.Context) ([]*model.Challenge, error) {
			allFetches++
			return nil, nil
		},
		listByParticipantFn: func(_ context.Context, _ string) ([]*model.Challenge, error) {
			userFetches++
			return nil, nil
		},
	}
	feed := &mockFeed{}
	store := NewChallengeStore(repo, feed)

	unsubscribe := store.SubscribeToChanges("user-1")

	feed.emit(changefeed.Event{Table: "challenges", Op: "update", RowID: "c1"})
	if allFetches != 1 || userFetches != 1 {
		t.Fatalf("expected both lists refetched, got %d/%d", allFetches, userFetches)
	}

	unsubscribe()
	feed.emit(changefeed.Event{Table: "challenges", Op: "update", RowID: "c2"})
	if allFetches != 1 || userFetches != 1 {
		t.Fatalf("expected no refetch after unsubscribe, got %d/%d", allFetches, userFetches)
	}
}
