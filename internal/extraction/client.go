package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"accredo/pkg/platform/circuit"
)

const providerName = "extractor-http"

// maxResponseBytes bounds how much of a provider response is read.
const maxResponseBytes = 1 << 20

// HTTPClient implements Extractor by calling an external extraction service.
// The response must be structured JSON matching extractResponse; anything else
// is a bad_response error, never interpreted as data.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *circuit.Breaker
}

// HTTPClientOption configures the HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		c.httpClient = client
	}
}

// WithBreaker sets a custom circuit breaker.
func WithBreaker(b *circuit.Breaker) HTTPClientOption {
	return func(c *HTTPClient) {
		c.breaker = b
	}
}

// NewHTTPClient creates an HTTP-based extraction client.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, opts ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: circuit.New(providerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type extractRequest struct {
	ImageBase64 string `json:"image_base64"`
}

// extractResponse is the only accepted success schema.
type extractResponse struct {
	CardDetected bool   `json:"card_detected"`
	VIN          string `json:"vin"`
	FullName     string `json:"full_name"`
	DateOfBirth  string `json:"date_of_birth"`
}

// Extract submits the card image and validates the structured response.
func (c *HTTPClient) Extract(ctx context.Context, imageB64 string) (CardFields, error) {
	if !c.breaker.Allow() {
		return CardFields{}, NewProviderError(KindOutage, providerName, "circuit open", nil)
	}

	fields, err := c.extract(ctx, imageB64)
	if err != nil {
		// No-card is a definitive answer from a healthy provider.
		if IsNoCard(err) {
			c.breaker.RecordSuccess()
		} else {
			c.breaker.RecordFailure()
		}
		return CardFields{}, err
	}
	c.breaker.RecordSuccess()
	return fields, nil
}

func (c *HTTPClient) extract(ctx context.Context, imageB64 string) (CardFields, error) {
	reqBody, err := json.Marshal(extractRequest{ImageBase64: imageB64})
	if err != nil {
		return CardFields{}, NewProviderError(KindInternal, providerName, "failed to marshal request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(reqBody))
	if err != nil {
		return CardFields{}, NewProviderError(KindInternal, providerName, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return CardFields{}, NewProviderError(KindTimeout, providerName, "request timeout", err)
		}
		return CardFields{}, NewProviderError(KindOutage, providerName, "failed to execute request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return CardFields{}, NewProviderError(KindOutage, providerName, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return CardFields{}, NewProviderError(KindOutage, providerName,
				fmt.Sprintf("provider returned status %d", resp.StatusCode), nil)
		}
		return CardFields{}, NewProviderError(KindBadResponse, providerName,
			fmt.Sprintf("provider returned status %d", resp.StatusCode), nil)
	}

	// Strict decode: unknown fields mean the provider is not speaking our
	// schema, and we refuse to guess.
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	var parsed extractResponse
	if err := dec.Decode(&parsed); err != nil {
		return CardFields{}, NewProviderError(KindBadResponse, providerName, "response is not valid schema JSON", err)
	}

	if !parsed.CardDetected {
		return CardFields{}, NewProviderError(KindNoCard, providerName, "no voter card detected", nil)
	}
	if strings.TrimSpace(parsed.VIN) == "" || strings.TrimSpace(parsed.FullName) == "" {
		return CardFields{}, NewProviderError(KindBadResponse, providerName, "card detected but identity fields missing", nil)
	}

	return CardFields{
		VIN:         strings.TrimSpace(parsed.VIN),
		FullName:    strings.TrimSpace(parsed.FullName),
		DateOfBirth: strings.TrimSpace(parsed.DateOfBirth),
	}, nil
}

// Ensure HTTPClient implements Extractor.
var _ Extractor = (*HTTPClient)(nil)
