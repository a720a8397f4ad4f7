package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

// WebhookNotifier sendet den Antrag als JSON an einen externen Mail- oder Chat-Hook.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
	Logger *zap.Logger
}

// NewWebhookNotifier erstellt einen WebhookNotifier mit eigenem HTTP-Client.
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{URL: url, Client: httpClient, Logger: logger}
}

// Notify implementiert Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, req PublishRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook request failed with status: %d", resp.StatusCode)
	}
	n.Logger.Debug("Publish request delivered to webhook", zap.Uint("log_id", req.LogID))
	return nil
}
