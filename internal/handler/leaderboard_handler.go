package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/mrlater/internal/middleware"
	"github.com/hitoshi/mrlater/internal/model"
)

const (
	// defaultLeaderboardLimit はランキングのデフォルト件数。
	defaultLeaderboardLimit = 50
	// maxLeaderboardLimit はランキングの最大件数。
	maxLeaderboardLimit = 50
)

// LeaderboardProvider はランキングハンドラーが必要とするインターフェース。
type LeaderboardProvider interface {
	// Top は完了タスク数の多い順に最大limit件を返す。
	Top(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
}

// LeaderboardHandler は完了タスク数ランキングのHTTPハンドラー。
type LeaderboardHandler struct {
	provider LeaderboardProvider
}

// NewLeaderboardHandler はLeaderboardHandlerを生成する。
func NewLeaderboardHandler(provider LeaderboardProvider) *LeaderboardHandler {
	return &LeaderboardHandler{
		provider: provider,
	}
}

// leaderboardEntryResponse はランキング1行のレスポンス。
type leaderboardEntryResponse struct {
	Rank           int    `json:"rank"`
	UserID         string `json:"user_id"`
	CompletedTasks int    `json:"completed_tasks"`
}

// leaderboardResponse はランキングのレスポンス。
type leaderboardResponse struct {
	Entries []leaderboardEntryResponse `json:"entries"`
}

// Top は完了タスク数ランキングを取得する。
// GET /api/leaderboard?limit=50
func (h *LeaderboardHandler) Top(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserIDFromContext(r.Context()); err != nil {
		writeUnauthorized(w)
		return
	}

	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_REQUEST",
				Message:  "limitは1以上の整数で指定してください。",
				Category: "validation",
				Action:   "limitパラメータを見直してください。",
			})
			return
		}
		limit = min(parsed, maxLeaderboardLimit)
	}

	entries, err := h.provider.Top(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := leaderboardResponse{Entries: make([]leaderboardEntryResponse, len(entries))}
	for i, entry := range entries {
		resp.Entries[i] = leaderboardEntryResponse{
			Rank:           i + 1,
			UserID:         entry.UserID,
			CompletedTasks: entry.CompletedTasks,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
