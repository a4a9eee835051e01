// Package notify はジョブ失敗の通知です
// 通知はベストエフォートであり、失敗してもジョブの結果には影響させない
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/harigane/jpxsync/internal/module/ingest/domain"
)

// Event は通知対象の失敗イベントです
type Event struct {
	Job        domain.JobName `json:"job"`
	RunID      *uuid.UUID     `json:"run_id,omitempty"`
	TargetDate *time.Time     `json:"target_date,omitempty"`
	Error      string         `json:"error"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Notifier は失敗イベントの通知先です
type Notifier interface {
	NotifyFailure(ctx context.Context, event Event)
}

// New は設定に応じたNotifierを返します
// webhookURLが空ならログ通知のみ
func New(webhookURL string) Notifier {
	if webhookURL == "" {
		return &LogNotifier{}
	}
	return &WebhookNotifier{
		url:    webhookURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// LogNotifier は構造化ログへの通知です
type LogNotifier struct{}

// NotifyFailure は失敗をログに記録します
func (n *LogNotifier) NotifyFailure(_ context.Context, event Event) {
	slog.Error("job failed",
		"job", event.Job,
		"run_id", event.RunID,
		"target_date", event.TargetDate,
		"error", event.Error,
	)
}

// WebhookNotifier は汎用のJSON Webhookへの通知です
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NotifyFailure はイベントをWebhookにPOSTします。失敗はログに残すだけ
func (n *WebhookNotifier) NotifyFailure(ctx context.Context, event Event) {
	// ログにも必ず残す（Webhookが死んでいても痕跡が消えないように）
	(&LogNotifier{}).NotifyFailure(ctx, event)

	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal notification payload", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		slog.Error("failed to build notification request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		slog.Error("failed to send failure notification", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Error("failure notification rejected", "status", resp.StatusCode)
	}
}
