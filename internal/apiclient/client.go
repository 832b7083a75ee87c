// Package apiclient talks to the REST half of the signaling server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anhducle99/bluecode/internal/logger"
	"github.com/anhducle99/bluecode/internal/models"
	"github.com/anhducle99/bluecode/pkg/dto"
	"github.com/cenkalti/backoff/v4"
)

const (
	defaultAttempts        = 3
	defaultInitialInterval = 500 * time.Millisecond
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("api error: %d %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed when repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500
}

type Client struct {
	baseURL         string
	token           string
	http            *http.Client
	attempts        uint64
	initialInterval time.Duration
	log             *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetry sets the total number of attempts for network and 5xx failures
// and the first backoff interval.
func WithRetry(attempts int, initialInterval time.Duration) Option {
	return func(c *Client) {
		if attempts < 1 {
			attempts = 1
		}
		c.attempts = uint64(attempts)
		c.initialInterval = initialInterval
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		token:           token,
		http:            &http.Client{Timeout: 10 * time.Second},
		attempts:        defaultAttempts,
		initialInterval: defaultInitialInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.OrDefault(c.log).With("component", "apiclient")
	return c
}

// CreateCall registers a call and returns the server-assigned call id.
func (c *Client) CreateCall(ctx context.Context, fromTeam, message string, targetKeys []string) (string, error) {
	var resp dto.CreateCallResponse
	err := c.do(ctx, http.MethodPost, "/call", nil, dto.CreateCallRequest{
		FromTeam:   fromTeam,
		Message:    message,
		TargetKeys: targetKeys,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("failed to create call: %w", err)
	}
	if !resp.Success || resp.CallID == "" {
		return "", fmt.Errorf("failed to create call: server returned no call id")
	}
	return resp.CallID, nil
}

func (c *Client) CancelCall(ctx context.Context, callID string) error {
	var resp dto.CancelCallResponse
	if err := c.do(ctx, http.MethodPost, "/call/"+url.PathEscape(callID)+"/cancel", nil, nil, &resp); err != nil {
		return fmt.Errorf("failed to cancel call: %w", err)
	}
	return nil
}

// History returns the persisted call logs the viewer took part in.
func (c *Client) History(ctx context.Context, viewer string) ([]models.CallLog, error) {
	query := url.Values{}
	if viewer != "" {
		query.Set("party", viewer)
	}
	var logs []models.CallLog
	if err := c.do(ctx, http.MethodGet, "/history", query, nil, &logs); err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return logs, nil
}

func (c *Client) Presence(ctx context.Context) ([]string, error) {
	var resp dto.PresenceResponse
	if err := c.do(ctx, http.MethodGet, "/presence", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to load presence: %w", err)
	}
	return resp.Teams, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialInterval
	policy.Multiplier = 2

	attempt := 0
	operation := func() error {
		attempt++
		err := c.once(ctx, method, endpoint, payload, out)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		c.log.Debug("request failed", "method", method, "path", path, "attempt", attempt, "error", err)
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.attempts-1), ctx))
}

func (c *Client) once(ctx context.Context, method, endpoint string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return backoff.Permanent(err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// errorMessage extracts the message of a JSON error body, falling back to the
// raw text.
func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(body))
}
