package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/foxseedlab/huddle/internal/webhook"
)

const (
	webhookRequestTimeout = 10 * time.Second
	webhookMaxAttempts    = 3
	webhookRetryDelay     = 500 * time.Millisecond
	schemaVersionHeader   = "X-Archive-Schema-Version"
)

// StatusError is a non-2xx webhook response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.StatusCode)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type HTTPSender struct {
	webhookURL string
	client     *http.Client
	retryDelay time.Duration
}

func NewHTTPSender(webhookURL string) *HTTPSender {
	return &HTTPSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: webhookRequestTimeout},
		retryDelay: webhookRetryDelay,
	}
}

// SendArchive posts the archive as JSON, retrying 429 and 5xx responses. An
// empty webhook URL disables delivery.
func (s *HTTPSender) SendArchive(ctx context.Context, payload webhook.ArchiveWebhookPayload) error {
	if s.webhookURL == "" {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal archive payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= webhookMaxAttempts; attempt++ {
		lastErr = s.post(ctx, body, payload.SchemaVersion)
		if lastErr == nil {
			return nil
		}
		var se *StatusError
		if errors.As(lastErr, &se) && !se.retryable() {
			return lastErr
		}
		if attempt == webhookMaxAttempts {
			break
		}
		slog.Warn("archive webhook failed; retrying", "error", lastErr, "attempt", attempt, "archive_id", payload.ArchiveID)
		select {
		case <-ctx.Done():
			return fmt.Errorf("archive webhook: %w", ctx.Err())
		case <-time.After(s.retryDelay * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("archive webhook failed after %d attempts: %w", webhookMaxAttempts, lastErr)
}

func (s *HTTPSender) post(ctx context.Context, body []byte, schemaVersion string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(schemaVersionHeader, schemaVersion)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}
