// Package commerce is the HTTP access layer for the commerce platform API.
// It handles authentication headers, retries with exponential backoff,
// pagination and the RQL query syntax.
package commerce

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erp/agreementclone/internal/domain/agreement"
	"github.com/erp/agreementclone/internal/infrastructure/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the per-attempt timeout.
	DefaultTimeout = 60 * time.Second
	// maxResponseBody caps how much of a response body is read.
	maxResponseBody = 32 << 20
)

// Client talks to the commerce API with a single bearer token.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	token      string
	userAgent  string
	timeout    time.Duration
	retry      RetryPolicy
	sleeper    Sleeper
	limiter    *rate.Limiter
	metrics    *Metrics
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithSleeper replaces the wait between attempts.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleeper = s
		}
	}
}

// WithRateLimiter paces requests. A nil limiter disables pacing.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithMetrics records request metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for baseURL authenticating with token.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", baseURL)
	}

	c := &Client{
		httpClient: &http.Client{},
		baseURL:    u,
		token:      token,
		timeout:    DefaultTimeout,
		retry:      DefaultRetryPolicy(),
		sleeper:    timerSleeper{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BearerToken returns the Authorization header value for token, adding the
// Bearer prefix only when it is missing.
func BearerToken(token string) string {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return token
	}
	return "Bearer " + token
}

// Request represents an HTTP request to be executed.
type Request struct {
	Method string
	// Path is resolved against the base URL; the query string is sent verbatim.
	Path string
	Body any
}

// Response represents an HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// Record decodes the body as a JSON object.
func (r *Response) Record() (agreement.Record, error) {
	rec, err := agreement.DecodeRecord(r.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return rec, nil
}

// URL returns the absolute URL a request path resolves to.
func (c *Client) URL(path string) (string, error) {
	u, err := c.baseURL.Parse(path)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", path, err)
	}
	return u.String(), nil
}

// Do executes a request, retrying transient failures. Responses with a status
// of 400 or above are returned as an error wrapping *HTTPError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	log := c.loggerFor(ctx)
	target, err := c.URL(req.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	var payload []byte
	if req.Body != nil {
		payload, err = encodeBody(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: marshaling request body: %v", ErrRequestFailed, err)
		}
		log.Debug("Request payload", zap.String("method", req.Method), zap.String("url", target),
			zap.ByteString("payload", payload))
	}

	attempts := c.retry.attempts()
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
			}
		}

		log.Debug("Making request",
			zap.String("method", req.Method),
			zap.String("url", target),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
		)

		resp, err := c.once(ctx, req.Method, target, payload)
		if err == nil && resp.StatusCode < http.StatusBadRequest {
			resp.Attempts = attempt + 1
			log.Debug("Response received", zap.String("url", target), zap.Int("status", resp.StatusCode))
			return resp, nil
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrRequestFailed, ctx.Err())
		}

		var retryable bool
		if err != nil {
			lastErr = err
			retryable = RetryableError(err)
			log.Warn("Request error",
				zap.String("method", req.Method),
				zap.String("url", target),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
		} else {
			httpErr := newHTTPError(req.Method, target, resp.StatusCode, resp.Body)
			lastErr = httpErr
			retryable = RetryableStatus(resp.StatusCode)
			log.Error("Request failed",
				zap.String("method", req.Method),
				zap.String("url", target),
				zap.Int("status", resp.StatusCode),
				zap.String("body", httpErr.Body),
			)
		}

		if !retryable {
			break
		}
		if attempt < attempts-1 {
			wait := c.retry.Backoff(attempt)
			log.Warn("Retrying request",
				zap.String("url", target),
				zap.Int("attempt", attempt+1),
				zap.Duration("wait", wait),
			)
			c.metrics.retried()
			if err := c.sleeper.Sleep(ctx, wait); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
			}
		}
	}

	log.Error("Request gave up", zap.String("method", req.Method), zap.String("url", target), zap.Error(lastErr))
	return nil, fmt.Errorf("%w: %w", ErrRequestFailed, lastErr)
}

// loggerFor prefers the run logger carried by ctx so request logs hold the run id.
func (c *Client) loggerFor(ctx context.Context) *zap.Logger {
	if logger.GetRunID(ctx) == "" {
		return c.logger
	}
	return logger.FromContext(ctx)
}

// DoJSON executes a request and decodes the response as a JSON object.
func (c *Client) DoJSON(ctx context.Context, req Request) (agreement.Record, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	rec, err := resp.Record()
	if err != nil {
		c.logger.Error("Failed to parse JSON response",
			zap.String("path", req.Path),
			zap.String("body", truncate(string(resp.Body), maxErrorBody)),
		)
		return nil, err
	}
	return rec, nil
}

func (c *Client) once(ctx context.Context, method, target string, payload []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Authorization", BearerToken(c.token))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept-Encoding", "gzip")
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.observe(method, OutcomeTransportError, time.Since(start))
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := readBody(httpResp)
	if err != nil {
		c.metrics.observe(method, OutcomeTransportError, time.Since(start))
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	outcome := OutcomeSuccess
	if httpResp.StatusCode >= http.StatusBadRequest {
		outcome = OutcomeHTTPError
	}
	c.metrics.observe(method, outcome, time.Since(start))

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

// readBody reads the body, decompressing it when the server honoured the
// explicit Accept-Encoding header.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, err
		}
		defer gz.Close()
		r = gz
	}
	return io.ReadAll(io.LimitReader(r, maxResponseBody))
}

func encodeBody(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
