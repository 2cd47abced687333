package billing

import (
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v76/webhook"
)

// WebhookProcessor は署名付きWebhookイベントを受理する。
// 既知のサブスクリプションイベントは検証してログに残すだけで、
// プランの変更は行わない（プラン反映は未実装のパススルー）。
type WebhookProcessor struct {
	signingSecret string
}

// NewWebhookProcessor はWebhookProcessorの新しいインスタンスを生成する。
func NewWebhookProcessor(signingSecret string) *WebhookProcessor {
	return &WebhookProcessor{signingSecret: signingSecret}
}

// Process は署名を検証してイベントを受理する。
// 署名不正はエラーを返し、イベント種別の無視はエラーにしない。
func (p *WebhookProcessor) Process(payload []byte, signatureHeader string) error {
	event, err := webhook.ConstructEvent(payload, signatureHeader, p.signingSecret)
	if err != nil {
		return fmt.Errorf("webhook署名の検証に失敗しました: %w", err)
	}

	switch string(event.Type) {
	case "checkout.session.completed",
		"customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		slog.Info("決済イベントを受理しました",
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)),
		)
	default:
		slog.Debug("決済イベントを無視しました",
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)),
		)
	}

	return nil
}
