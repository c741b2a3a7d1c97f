package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"portfolio-tracker/internal/config"
	"portfolio-tracker/internal/resilience"
	"portfolio-tracker/pkg/utils"
)

// WebhookNotifier sends notifications via HTTP webhook.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
	retry   utils.RetryConfig
	breaker *resilience.Breaker
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	retry := utils.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}

	return &WebhookNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client: &http.Client{
			Timeout: timeout,
		},
		retry:   retry,
		breaker: resilience.NewBreaker("webhook", resilience.DefaultBreakerConfig()),
	}
}

// SetRetry replaces the retry policy.
func (w *WebhookNotifier) SetRetry(cfg utils.RetryConfig) {
	w.retry = cfg
}

// SetBreaker replaces the circuit breaker guarding the endpoint.
func (w *WebhookNotifier) SetBreaker(b *resilience.Breaker) {
	w.breaker = b
}

// Name returns the name of the notifier.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// IsEnabled returns whether the notifier is enabled.
func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

// Send posts the notification as JSON. Network errors and 5xx responses are
// retried with backoff; other non-2xx responses fail immediately. After
// repeated failed sends the endpoint is skipped until the breaker cools down.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	if !w.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"data":      n.Data,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	err = w.breaker.Execute(func() error {
		return utils.Retry(ctx, w.retry, func() error {
			return w.post(ctx, body)
		})
	})
	if errors.Is(err, resilience.ErrOpen) {
		return fmt.Errorf("webhook %s: %w", endpointHost(w.url), err)
	}
	return err
}

func (w *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return utils.Permanent(fmt.Errorf("creating webhook request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "PortfolioTracker/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("sending webhook to %s: %w", endpointHost(w.url), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	default:
		return utils.Permanent(fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}
}

// endpointHost returns the host of a webhook URL. Paths and queries often
// carry tokens and stay out of errors and logs.
func endpointHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(invalid url)"
	}
	return u.Host
}
