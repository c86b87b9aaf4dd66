package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/housing-queue/internal/model"
)

const (
	webhookAttempts   = 3
	defaultRetryAfter = time.Second
)

// WebhookNotifier отправляет уведомления POST-запросом во внешнюю систему доставки.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

// NewWebhookNotifier создаёт HTTP-клиент для обращения к системе доставки по указанному адресу.
func NewWebhookNotifier(url string) *WebhookNotifier {
	url = strings.TrimRight(url, "/")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	return &WebhookNotifier{
		url: url,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Notify отправляет уведомление. На 429 и 5xx повторяет запрос, учитывая Retry-After.
func (c *WebhookNotifier) Notify(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= webhookAttempts; attempt++ {
		retryAfter, err := c.send(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err

		if retryAfter < 0 || attempt == webhookAttempts {
			break
		}

		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// send возвращает паузу перед повтором или отрицательное значение, если повторять бессмысленно.
func (c *WebhookNotifier) send(ctx context.Context, body []byte) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return -1, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return defaultRetryAfter, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return 0, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := defaultRetryAfter
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil && seconds >= 0 {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return retryAfter, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return defaultRetryAfter, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	default:
		return -1, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}
