package handler

import (
	"database/sql"

	"github.com/hitoshi/mrlater/internal/auth"
	"github.com/hitoshi/mrlater/internal/billing"
	"github.com/hitoshi/mrlater/internal/challenge"
	"github.com/hitoshi/mrlater/internal/metrics"
	"github.com/hitoshi/mrlater/internal/repository"
	"github.com/hitoshi/mrlater/internal/task"
	"github.com/hitoshi/mrlater/internal/user"
)

// ドメインサービスはhandlerのインターフェースをそのまま満たす。
// ここでコンパイル時に適合を検証する。
var (
	_ AuthServiceInterface      = (*auth.Service)(nil)
	_ ProfileCreatorInterface   = (*user.Service)(nil)
	_ TaskServiceInterface      = (*task.Service)(nil)
	_ ChallengeServiceInterface = (*challenge.Service)(nil)
	_ ProfileServiceInterface   = (*user.Service)(nil)
	_ UserServiceInterface      = (*user.Service)(nil)
	_ BillingServiceInterface   = (*billing.Service)(nil)
	_ WebhookProcessorInterface = (*billing.WebhookProcessor)(nil)
	_ LeaderboardProvider       = (*repository.PostgresLeaderboardRepo)(nil)
	_ AuthMetricsRecorder       = (*metrics.Collector)(nil)
	_ HealthChecker             = (*sql.DB)(nil)
)
