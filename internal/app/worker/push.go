package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sanuda/internal/config"
	"sanuda/internal/core/domain"
)

// PushClient posts notification payloads to the external push gateway.
// Disabled (no-op) when no gateway URL is configured.
type PushClient struct {
	gatewayURL string
	httpClient *http.Client
}

func NewPushClient(cfg config.PushConfig) *PushClient {
	return &PushClient{
		gatewayURL: cfg.GatewayURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *PushClient) Enabled() bool {
	return c.gatewayURL != ""
}

func (c *PushClient) Push(ctx context.Context, env domain.NotifyEnvelope) error {
	if !c.Enabled() {
		return nil
	}
	body, err := json.Marshal(map[string]any{
		"userId":         env.UserID,
		"conversationId": env.ConversationID,
		"senderId":       env.SenderID,
		"preview":        preview(env),
		"queuedAt":       env.QueuedAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway returned %d", resp.StatusCode)
	}
	return nil
}

func preview(env domain.NotifyEnvelope) string {
	if env.ContentType != string(domain.ContentText) {
		return "sent you a " + env.ContentType
	}
	const maxPreview = 80
	if len(env.Content) > maxPreview {
		return env.Content[:maxPreview] + "…"
	}
	return env.Content
}
