package tracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Transport delivers payloads to the readership service.
type Transport interface {
	SendEngagement(ctx context.Context, payload EngagementPayload) error
	SendShare(ctx context.Context, payload SharePayload) error
}

// EngagementPayload is the body of POST /api/v1/events/engagement.
type EngagementPayload struct {
	EventType    string          `json:"eventType"`
	ArticleID    string          `json:"articleId,omitempty"`
	UserID       string          `json:"userId,omitempty"`
	SessionToken string          `json:"sessionToken,omitempty"`
	DurationMs   *int64          `json:"durationMs,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// SharePayload is the body of POST /api/v1/events/share.
type SharePayload struct {
	ArticleID    string          `json:"articleId"`
	Channel      string          `json:"channel"`
	SessionToken string          `json:"sessionToken,omitempty"`
	Context      string          `json:"context,omitempty"`
	ReaderType   string          `json:"readerType"`
	UserID       string          `json:"userId,omitempty"`
	VisitorKey   string          `json:"visitorKey,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tracker: unexpected status %d", e.Code)
}

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = errors.New("tracker: circuit open")

// HTTPTransportConfig configures HTTPTransport.
type HTTPTransportConfig struct {
	BaseURL string
	Client  *http.Client

	// FailureThreshold consecutive failures open the breaker for OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// HTTPTransport posts JSON payloads through a circuit breaker. It never
// retries; a failed or rejected send is simply lost.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewHTTPTransport creates a transport for cfg.BaseURL.
func NewHTTPTransport(cfg HTTPTransportConfig) *HTTPTransport {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 5 * time.Second}
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "readership-tracker",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Rejected payloads say nothing about server health.
		IsSuccessful: func(err error) bool {
			var status *StatusError
			return err == nil || (errors.As(err, &status) && status.Code < 500)
		},
	})

	return &HTTPTransport{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  cfg.Client,
		breaker: breaker,
	}
}

func (t *HTTPTransport) SendEngagement(ctx context.Context, payload EngagementPayload) error {
	return t.post(ctx, "/api/v1/events/engagement", payload)
}

func (t *HTTPTransport) SendShare(ctx context.Context, payload SharePayload) error {
	return t.post(ctx, "/api/v1/events/share", payload)
}

// State reports the breaker state for diagnostics.
func (t *HTTPTransport) State() string {
	return t.breaker.State().String()
}

func (t *HTTPTransport) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("tracker: marshal payload: %w", err)
	}

	_, err = t.breaker.Execute(func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return struct{}{}, &StatusError{Code: resp.StatusCode}
		}
		return struct{}{}, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}
