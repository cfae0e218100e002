package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier is the outbound notification capability. All sends are
// fire-and-forget from the payment core's perspective: failures are
// logged by callers, never propagated as operation failures.
type Notifier interface {
	SendAdminAlert(ctx context.Context, subject, body string, meta map[string]any) error
	SendUserNotification(ctx context.Context, userID uuid.UUID, kind string, payload map[string]any) error
	SendSMS(ctx context.Context, message string) error
}

// NotifierClient talks to the internal notification bridge over HTTP.
type NotifierClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewNotifierClient(baseURL string, log *zap.Logger) *NotifierClient {
	return &NotifierClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

func (c *NotifierClient) SendAdminAlert(ctx context.Context, subject, body string, meta map[string]any) error {
	return c.post(ctx, "/internal/alerts/admin", map[string]any{
		"subject": subject,
		"body":    body,
		"meta":    meta,
	})
}

func (c *NotifierClient) SendUserNotification(ctx context.Context, userID uuid.UUID, kind string, payload map[string]any) error {
	return c.post(ctx, "/internal/notify", map[string]any{
		"user_id": userID.String(),
		"kind":    kind,
		"payload": payload,
	})
}

// SendSMS delivers a short pager-style message. Callers are responsible
// for redaction: amounts and truncated identifiers only.
func (c *NotifierClient) SendSMS(ctx context.Context, message string) error {
	return c.post(ctx, "/internal/alerts/sms", map[string]any{
		"message": message,
	})
}

func (c *NotifierClient) post(ctx context.Context, path string, body map[string]any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(buf)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("notifier unavailable", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("notifier unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		c.log.Warn("notifier returned error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("notifier returned %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
