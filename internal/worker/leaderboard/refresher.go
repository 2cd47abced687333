// Package leaderboard はランキング集計ビューの定期更新ジョブを提供する。
package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ViewRefresher はマテリアライズドビューの更新インターフェース。
type ViewRefresher interface {
	Refresh(ctx context.Context) error
}

// RefreshJob は完了タスク数ランキングの集計ビューを定期更新するジョブ。
// CONCURRENTLY更新のため実行中も読み取りはブロックされない。
type RefreshJob struct {
	refresher ViewRefresher
	logger    *slog.Logger
}

// NewRefreshJob は新しいRefreshJobを生成する。
func NewRefreshJob(refresher ViewRefresher, logger *slog.Logger) *RefreshJob {
	return &RefreshJob{
		refresher: refresher,
		logger:    logger,
	}
}

// Run は集計ビューを1回更新する。
func (j *RefreshJob) Run(ctx context.Context) error {
	start := time.Now()

	if err := j.refresher.Refresh(ctx); err != nil {
		j.logger.Error("ランキングビューの更新に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("ランキングビューの更新に失敗: %w", err)
	}

	j.logger.Info("ランキングビューを更新しました",
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は指定間隔でジョブを繰り返し実行する。
// コンテキストのキャンセルで停止する。最初の実行は即座に行う。
func (j *RefreshJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("ランキング更新ジョブの初回実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("ランキング更新ジョブの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
