// Package notify sends fire-and-forget messages to voters or operators.
// Accreditation correctness never depends on delivery; failures are logged
// and dropped.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Sender delivers a short text to a recipient.
type Sender interface {
	Notify(ctx context.Context, recipient, text string) error
}

// Noop discards every message. Used when no sender is configured.
type Noop struct{}

func (Noop) Notify(context.Context, string, string) error { return nil }

// HTTPSender posts messages to an external messaging gateway.
type HTTPSender struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
}

// NewHTTPSender constructs a sender for the given gateway URL.
func NewHTTPSender(url string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		url:     url,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type message struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (s *HTTPSender) Notify(ctx context.Context, recipient, text string) error {
	payload, err := json.Marshal(message{To: recipient, Body: text})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification gateway returned status %d", resp.StatusCode)
	}
	return nil
}

var (
	_ Sender = Noop{}
	_ Sender = (*HTTPSender)(nil)
)
