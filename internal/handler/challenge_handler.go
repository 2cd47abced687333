package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/mrlater/internal/middleware"
	"github.com/hitoshi/mrlater/internal/model"
)

// ChallengeServiceInterface はチャレンジハンドラーが必要とするサービスインターフェース。
type ChallengeServiceInterface interface {
	// ListChallenges は全チャレンジを開始日降順で返す。
	ListChallenges(ctx context.Context) ([]*model.Challenge, error)
	// ListJoinedChallenges はユーザーが参加中のチャレンジを返す。
	ListJoinedChallenges(ctx context.Context, userID string) ([]*model.Challenge, error)
	// Join はチャレンジに参加する。参加済みなら現在の行をそのまま返す。
	Join(ctx context.Context, userID, challengeID string) (*model.Challenge, error)
	// Leave はチャレンジから離脱する。未参加なら書き込まない。
	Leave(ctx context.Context, userID, challengeID string) (*model.Challenge, error)
}

// ChallengeHandler はチャレンジ管理のHTTPハンドラー。
type ChallengeHandler struct {
	service ChallengeServiceInterface
}

// NewChallengeHandler はChallengeHandlerを生成する。
func NewChallengeHandler(service ChallengeServiceInterface) *ChallengeHandler {
	return &ChallengeHandler{
		service: service,
	}
}

// challengeResponse はチャレンジ情報のAPIレスポンス。
type challengeResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	ParticipantCount int       `json:"participant_count"`
	Joined           bool      `json:"joined"`
}

// challengeListResponse はチャレンジ一覧のレスポンス。
type challengeListResponse struct {
	Challenges []challengeResponse `json:"challenges"`
}

// ListChallenges は全チャレンジ一覧を取得する。
// GET /api/challenges
func (h *ChallengeHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	challenges, err := h.service.ListChallenges(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toChallengeListResponse(challenges, userID))
}

// ListJoinedChallenges は参加中のチャレンジ一覧を取得する。
// GET /api/challenges/joined
func (h *ChallengeHandler) ListJoinedChallenges(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	challenges, err := h.service.ListJoinedChallenges(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toChallengeListResponse(challenges, userID))
}

// Join はチャレンジに参加する。
// POST /api/challenges/{id}/join
func (h *ChallengeHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	challengeID := chi.URLParam(r, "id")

	challenge, err := h.service.Join(r.Context(), userID, challengeID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toChallengeResponse(challenge, userID))
}

// Leave はチャレンジから離脱する。
// POST /api/challenges/{id}/leave
func (h *ChallengeHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	challengeID := chi.URLParam(r, "id")

	challenge, err := h.service.Leave(r.Context(), userID, challengeID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toChallengeResponse(challenge, userID))
}

// --- ヘルパー関数 ---

// toChallengeResponse はmodel.ChallengeからAPIレスポンスに変換する。
// 参加者の生IDリストは返さず、人数と自分の参加有無のみ公開する。
func toChallengeResponse(c *model.Challenge, userID string) challengeResponse {
	return challengeResponse{
		ID:               c.ID,
		Name:             c.Name,
		Description:      c.Description,
		StartDate:        c.StartDate,
		EndDate:          c.EndDate,
		ParticipantCount: len(c.Participants),
		Joined:           c.HasParticipant(userID),
	}
}

func toChallengeListResponse(challenges []*model.Challenge, userID string) challengeListResponse {
	resp := challengeListResponse{Challenges: make([]challengeResponse, len(challenges))}
	for i, c := range challenges {
		resp.Challenges[i] = toChallengeResponse(c, userID)
	}
	return resp
}
