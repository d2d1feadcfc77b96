package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/storage"
)

const webhookRequestTimeout = 10 * time.Second

// maxBackoffShift caps the exponential growth of the retry wait. Without
// the cap an operator-supplied retry count past 62 shifts the wait to zero
// or negative, collapsing the backoff entirely.
const maxBackoffShift = 16

// webhookPayload is the exact JSON shape POSTed to the webhook target.
type webhookPayload struct {
	Type        string  `json:"type"`
	Value       float64 `json:"value"`
	TS          string  `json:"ts"`
	GeneratedAt string  `json:"generated_at"`
}

// WebhookSink POSTs alerts as JSON to a configured URL. A failed attempt
// (transport error or non-2xx status) is retried up to maxRetries times with
// exponential backoff: the wait before retry k is base * 2^(k-1).
type WebhookSink struct {
	url        string
	maxRetries int
	base       time.Duration
	client     *http.Client
}

// NewWebhookSink creates a WebhookSink. maxRetries caps the retry attempts
// after the first; base seeds the exponential backoff.
func NewWebhookSink(url string, maxRetries int, base time.Duration) *WebhookSink {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &WebhookSink{
		url:        url,
		maxRetries: maxRetries,
		base:       base,
		client:     &http.Client{Timeout: webhookRequestTimeout},
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

// Send attempts delivery until success, retry exhaustion, or ctx
// cancellation. Cancellation during a backoff wait abandons the remaining
// attempts.
func (s *WebhookSink) Send(ctx context.Context, a storage.AlertRecord) error {
	body, err := json.Marshal(webhookPayload{
		Type:        string(a.Kind),
		Value:       a.Value,
		TS:          a.ObservedAt.UTC().Format(time.RFC3339),
		GeneratedAt: a.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries+1; attempt++ {
		lastErr = s.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		if attempt > s.maxRetries {
			break
		}

		wait := s.backoffWait(attempt)
		slog.Debug("notify: webhook attempt failed, backing off",
			"alert", a.ID, "attempt", attempt, "wait", wait, "err", lastErr)
		select {
		case <-ctx.Done():
			return fmt.Errorf("webhook delivery cancelled: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("webhook delivery failed after %d retries: %w", s.maxRetries, lastErr)
}

// backoffWait returns the wait before retrying after the given attempt:
// base * 2^(attempt-1), capped so large retry counts cannot overflow.
func (s *WebhookSink) backoffWait(attempt int) time.Duration {
	shift := attempt - 1
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return s.base << shift
}

func (s *WebhookSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
