// Package billing は決済プロバイダへのプロキシ層を提供する。
// クライアントには決済URLだけを渡し、秘密鍵はサーバ側に閉じる。
package billing

import (
	"context"
	"fmt"

	"github.com/hitoshi/mrlater/internal/model"
	"github.com/hitoshi/mrlater/internal/repository"
)

// Service は決済操作のサービス層。
type Service struct {
	gateway     StripeGateway
	profileRepo repository.ProfileRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(gateway StripeGateway, profileRepo repository.ProfileRepository) *Service {
	return &Service{
		gateway:     gateway,
		profileRepo: profileRepo,
	}
}

// CreateCheckoutSession はProプラン購入用のチェックアウトURLを返す。
// 決済顧客は初回に遅延作成してプロフィールに記録する。
func (s *Service) CreateCheckoutSession(ctx context.Context, userID string) (string, error) {
	profile, err := s.profileRepo.FindByUserID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return "", model.NewProfileNotFoundError(userID)
	}

	customerID := profile.StripeCustomerID
	if customerID == "" {
		customerID, err = s.gateway.CreateCustomer(profile.Email, profile.Name)
		if err != nil {
			return "", fmt.Errorf("決済顧客の作成に失敗しました: %w", err)
		}
		if err := s.profileRepo.SetStripeCustomerID(ctx, userID, customerID); err != nil {
			return "", fmt.Errorf("決済顧客IDの保存に失敗しました: %w", err)
		}
	}

	url, err := s.gateway.CreateCheckoutSession(customerID)
	if err != nil {
		return "", fmt.Errorf("チェックアウトセッションの作成に失敗しました: %w", err)
	}
	return url, nil
}

// CreatePortalSession は契約管理ポータルのURLを返す。
// 決済顧客が未作成の場合は課金未設定エラーを返す。
func (s *Service) CreatePortalSession(ctx context.Context, userID string) (string, error) {
	profile, err := s.profileRepo.FindByUserID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return "", model.NewProfileNotFoundError(userID)
	}
	if profile.StripeCustomerID == "" {
		return "", model.NewBillingNotConfiguredError()
	}

	url, err := s.gateway.CreatePortalSession(profile.StripeCustomerID)
	if err != nil {
		return "", fmt.Errorf("ポータルセッションの作成に失敗しました: %w", err)
	}
	return url, nil
}
