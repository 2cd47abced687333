package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/mrlater/internal/middleware"
)

// maxWebhookBodySize はStripe Webhookボディの最大サイズ（Stripe推奨値）。
const maxWebhookBodySize = 64 * 1024

// BillingServiceInterface は課金ハンドラーが必要とするサービスインターフェース。
type BillingServiceInterface interface {
	// CreateCheckoutSession はProプランのチェックアウトURLを発行する。
	CreateCheckoutSession(ctx context.Context, userID string) (string, error)
	// CreatePortalSession はカスタマーポータルURLを発行する。
	CreatePortalSession(ctx context.Context, userID string) (string, error)
}

// WebhookProcessorInterface はStripe Webhookの署名検証・処理インターフェース。
type WebhookProcessorInterface interface {
	Process(payload []byte, signatureHeader string) error
}

// BillingHandler はStripe課金のHTTPハンドラー。
type BillingHandler struct {
	service   BillingServiceInterface
	processor WebhookProcessorInterface
}

// NewBillingHandler はBillingHandlerを生成する。
func NewBillingHandler(service BillingServiceInterface, processor WebhookProcessorInterface) *BillingHandler {
	return &BillingHandler{
		service:   service,
		processor: processor,
	}
}

// checkoutResponse はチェックアウト・ポータルURLのレスポンス。
type checkoutResponse struct {
	URL string `json:"url"`
}

// CreateCheckoutSession はProプランのチェックアウトセッションを作成する。
// POST /api/billing/checkout
func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	url, err := h.service.CreateCheckoutSession(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{URL: url})
}

// CreatePortalSession はカスタマーポータルセッションを作成する。
// POST /api/billing/portal
func (h *BillingHandler) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	url, err := h.service.CreatePortalSession(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{URL: url})
}

// HandleWebhook はStripeからのWebhookを受信する。
// POST /webhooks/stripe
//
// 署名検証に失敗したリクエストは400で拒否する。
func (h *BillingHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		slog.Warn("failed to read webhook body", slog.String("error", err.Error()))
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if err := h.processor.Process(payload, r.Header.Get("Stripe-Signature")); err != nil {
		slog.Warn("webhook rejected", slog.String("error", err.Error()))
		http.Error(w, "invalid webhook", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
}
