package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/OldStager01/resilience-plane/internal/events"
	"github.com/OldStager01/resilience-plane/internal/logger"
	"github.com/OldStager01/resilience-plane/pkg/models"
)

var ErrWebhookRejected = errors.New("alert webhook rejected the request")

// Channel pages a human. It is only used for failures that need
// intervention.
type Channel interface {
	SendAlert(ctx context.Context, message string) error
}

// LogChannel writes alerts to the error log.
type LogChannel struct{}

func (LogChannel) SendAlert(_ context.Context, message string) error {
	logger.WithComponent("alert").WithField("alert", true).Error(message)
	return nil
}

// EventChannel publishes alerts on the event bus, where the websocket stream
// and the event logger pick them up.
type EventChannel struct {
	Publisher *events.Publisher
}

func (c EventChannel) SendAlert(_ context.Context, message string) error {
	c.Publisher.Alert(models.SeverityCritical, message, nil)
	return nil
}

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string
}

// WebhookChannel POSTs alerts as JSON.
type WebhookChannel struct {
	url     string
	headers map[string]string
	client  *http.Client
}

type webhookPayload struct {
	Source    string    `json:"source"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func NewWebhookChannel(cfg WebhookConfig) *WebhookChannel {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &WebhookChannel{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *WebhookChannel) SendAlert(ctx context.Context, message string) error {
	body, err := json.Marshal(webhookPayload{
		Source:    "resilience-plane",
		Severity:  string(models.SeverityCritical),
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrWebhookRejected, resp.StatusCode)
	}
	return nil
}

// Multi fans an alert out to every channel and reports all failures.
type Multi []Channel

func (m Multi) SendAlert(ctx context.Context, message string) error {
	var errs []error
	for _, c := range m {
		if err := c.SendAlert(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
