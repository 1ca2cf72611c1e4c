// Package remote is the HTTP client of the sync server API.
package remote

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
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"bizsync/internal/domain"
)

const maxResponseBytes = 32 << 20

type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// RateLimit is the sustained requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int
	UserAgent string
}

type SessionProvider interface {
	Session(ctx context.Context) (*domain.Session, error)
}

// Client pushes and pulls records per category. Every failure it returns is
// a *domain.APIError.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	userAgent      string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	sessions       SessionProvider
	logger         *slog.Logger
}

func New(cfg Config, sessions SessionProvider, logger *slog.Logger) *Client {
	var transport http.RoundTripper = http.DefaultTransport
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		transport = &rateLimitedTransport{
			transport: transport,
			limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		}
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:      cfg.UserAgent,
		maxAttempts:    maxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		sessions:       sessions,
		logger:         logger.With("component", "remote"),
	}
}

type rateLimitedTransport struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.transport.RoundTrip(req)
}

// Push submits a batch of local records. The push is idempotent on the
// server side, keyed by record ID.
func (c *Client) Push(ctx context.Context, category domain.Category, ownerID string, records []domain.Entity) (*domain.PushAck, error) {
	if len(records) == 0 {
		return &domain.PushAck{}, nil
	}

	payload := pushRequest{OwnerID: ownerID, Records: make([]any, 0, len(records))}
	for _, e := range records {
		w, err := toWire(category, e)
		if err != nil {
			return nil, domain.DecodeError(err)
		}
		payload.Records = append(payload.Records, w)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.DecodeError(fmt.Errorf("marshal push: %w", err))
	}

	endpoint := fmt.Sprintf("%s/v1/sync/%s", c.baseURL, url.PathEscape(string(category)))
	respBody, err := c.doWithRetry(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}

	var resp pushResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, domain.DecodeError(fmt.Errorf("decode push response: %w", err))
	}

	c.logger.Debug("pushed records",
		"category", category,
		"sent", len(records),
		"accepted", len(resp.Accepted),
		"rejected", len(resp.Rejected),
	)

	return &domain.PushAck{
		Accepted:   resp.Accepted,
		Rejected:   resp.Rejected,
		ServerTime: resp.ServerTime,
	}, nil
}

// Pull fetches the records of a category changed after req.Since.
func (c *Client) Pull(ctx context.Context, req domain.PullRequest) ([]domain.Entity, error) {
	params := url.Values{}
	params.Set("owner_id", req.OwnerID)
	params.Set("since", strconv.FormatInt(req.Since, 10))
	for _, id := range req.SupplierIDs {
		params.Add("supplier_id", id)
	}

	endpoint := fmt.Sprintf("%s/v1/sync/%s?%s", c.baseURL, url.PathEscape(string(req.Category)), params.Encode())
	respBody, err := c.doWithRetry(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	records, err := decodeRecords(req.Category, respBody)
	if err != nil {
		return nil, domain.DecodeError(fmt.Errorf("decode %s: %w", req.Category, err))
	}

	c.logger.Debug("pulled records", "category", req.Category, "since", req.Since, "count", len(records))
	return records, nil
}

func (c *Client) doWithRetry(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var lastErr *domain.APIError

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		respBody, err := c.doRequest(ctx, method, endpoint, body)
		if err == nil {
			return respBody, nil
		}

		var apiErr *domain.APIError
		if !errors.As(err, &apiErr) {
			return nil, err
		}
		lastErr = apiErr

		if !apiErr.Retryable() || attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("request failed, retrying",
			"method", method,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, domain.NetworkError(ctx.Err())
		case <-time.After(backoff):
		}
	}

	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	session, err := c.sessions.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, domain.NetworkError(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+session.Token)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NetworkError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domain.NetworkError(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.Unauthorized(resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, domain.ServerError(resp.StatusCode, errorReason(respBody))
	}

	return respBody, nil
}

func errorReason(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		return payload.Message
	}
	return ""
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if c.maxBackoff > 0 && backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}
