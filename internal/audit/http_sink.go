package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPSink posts records to the external audit collector. Attempt
// telemetry gets a tighter client timeout than decision events.
type HTTPSink struct {
	baseURL string
	apiKey  string
	events  *http.Client
	// attempts uses a 2s cap so a slow collector cannot back up the
	// dispatcher behind sign-in telemetry.
	attempts *http.Client
}

// NewHTTPSink constructs an HTTPSink for the collector at baseURL.
func NewHTTPSink(baseURL, apiKey string) *HTTPSink {
	return &HTTPSink{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		events:   &http.Client{Timeout: 5 * time.Second},
		attempts: &http.Client{Timeout: 2 * time.Second},
	}
}

// WriteEvent implements Sink.
func (s *HTTPSink) WriteEvent(ctx context.Context, event AccessEvent) error {
	return s.post(ctx, s.events, "/access-events", event)
}

// WriteAttempt implements Sink.
func (s *HTTPSink) WriteAttempt(ctx context.Context, attempt SignInAttempt) error {
	return s.post(ctx, s.attempts, "/sign-in-attempts", attempt)
}

func (s *HTTPSink) post(ctx context.Context, client *http.Client, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("audit: encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("audit: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("x-api-key", s.apiKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("audit: post %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("audit: post %s: status %d", path, resp.StatusCode)
	}
	return nil
}

var _ Sink = (*HTTPSink)(nil)
