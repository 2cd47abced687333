package model

import "time"

// Profile はユーザーと1対1で紐づくプロフィールを表す。
// 初回サインアップ時に作成され、クライアントから削除されることはない。
type Profile struct {
	ID               string // users.id と同一
	Name             string
	Email            string
	AvatarURL        string
	Plan             PlanTier
	StripeCustomerID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProfilePatch はプロフィールの部分更新を表す。
// nilフィールドは変更しない。
type ProfilePatch struct {
	Name      *string
	AvatarURL *string
}

// Apply はパッチをプロフィールにマージする。
func (p ProfilePatch) Apply(profile *Profile) {
	if p.Name != nil {
		profile.Name = *p.Name
	}
	if p.AvatarURL != nil {
		profile.AvatarURL = *p.AvatarURL
	}
}

// PlanTier は課金プランの種別を表す。
type PlanTier string

const (
	// PlanFree は無料プラン。
	PlanFree PlanTier = "free"
	// PlanPro は有料プラン。
	PlanPro PlanTier = "pro"
)

// PlanLimits はプランごとの利用上限を表す。
type PlanLimits struct {
	MaxActiveTasks      int
	MaxJoinedChallenges int
}

// planLimits はプラン別の上限テーブル。
var planLimits = map[PlanTier]PlanLimits{
	PlanFree: {MaxActiveTasks: 50, MaxJoinedChallenges: 2},
	PlanPro:  {MaxActiveTasks: 10000, MaxJoinedChallenges: 1000},
}

// GetPlanTier はプラン文字列をPlanTierに正規化する。
// "pro" 以外はすべてfreeとして扱う。
func GetPlanTier(plan string) PlanTier {
	if plan == string(PlanPro) {
		return PlanPro
	}
	return PlanFree
}

// LimitsFor は指定プランの利用上限を返す。
func LimitsFor(plan PlanTier) PlanLimits {
	if l, ok := planLimits[plan]; ok {
		return l
	}
	return planLimits[PlanFree]
}
