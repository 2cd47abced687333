package user

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// maxAvatarProbeSize はプローブで読むレスポンスの最大サイズ（1MB）。
const maxAvatarProbeSize = 1 * 1024 * 1024

// avatarProbeTimeout はアバターURLプローブのタイムアウト。
const avatarProbeTimeout = 5 * time.Second

// SSRFValidator はURL検証と安全なHTTPクライアント生成のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// AvatarURLProber はアバターURLの検証を行う実装。
// SSRF対策の検証後、画像が実際に配信されているかをHEADで確認する。
type AvatarURLProber struct {
	ssrfGuard SSRFValidator
}

// NewAvatarURLProber はAvatarURLProberの新しいインスタンスを生成する。
func NewAvatarURLProber(ssrfGuard SSRFValidator) *AvatarURLProber {
	return &AvatarURLProber{
		ssrfGuard: ssrfGuard,
	}
}

var _ AvatarProber = (*AvatarURLProber)(nil)

// Probe はアバターURLが安全で画像を返すことを確認する。
func (p *AvatarURLProber) Probe(ctx context.Context, rawURL string) error {
	// SSRF検証
	if p.ssrfGuard != nil {
		if err := p.ssrfGuard.ValidateURL(rawURL); err != nil {
			return err
		}
	}

	client := p.getHTTPClient()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "MrLater/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("URLに到達できません: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTPステータス異常: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isImageMime(extractMimeType(contentType)) {
		return fmt.Errorf("画像以外のContent-Type: %s", contentType)
	}

	return nil
}

// getHTTPClient はHTTPクライアントを取得する。
func (p *AvatarURLProber) getHTTPClient() *http.Client {
	if p.ssrfGuard != nil {
		return p.ssrfGuard.NewSafeClient(avatarProbeTimeout, maxAvatarProbeSize)
	}
	return &http.Client{Timeout: avatarProbeTimeout}
}

// extractMimeType はContent-Typeヘッダからパラメータを除いたMIMEタイプを取り出す。
func extractMimeType(contentType string) string {
	mime, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(strings.ToLower(mime))
}

// isImageMime はMIMEタイプが画像かを返す。
func isImageMime(mime string) bool {
	return strings.HasPrefix(mime, "image/")
}
