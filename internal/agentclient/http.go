// Package agentclient implements the agent under test: an HTTP client for a
// live agent and a replay executor for recorded responses.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/ragbench/pkg/models"
)

// StatusError is returned when the agent answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("agent: status %d", e.Code)
	}
	return fmt.Sprintf("agent: status %d: %s", e.Code, e.Body)
}

// HTTPExecutor posts queries to an agent endpoint as JSON.
type HTTPExecutor struct {
	url     string
	client  *http.Client
	headers http.Header
}

// HTTPOption configures an HTTPExecutor.
type HTTPOption func(*HTTPExecutor)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(e *HTTPExecutor) {
		if c != nil {
			e.client = c
		}
	}
}

// WithHeader adds a header to every request, e.g. an Authorization token.
func WithHeader(key, value string) HTTPOption {
	return func(e *HTTPExecutor) {
		e.headers.Add(key, value)
	}
}

// NewHTTPExecutor creates an executor for the agent at url. timeout bounds
// each HTTP exchange; the benchmark's per-query deadline still applies
// through the request context.
func NewHTTPExecutor(url string, timeout time.Duration, opts ...HTTPOption) (*HTTPExecutor, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("agent url is required")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	e := &HTTPExecutor{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		headers: http.Header{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute sends req and decodes the agent's response.
func (e *HTTPExecutor) Execute(ctx context.Context, req models.AgentRequest) (*models.AgentResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("agent: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("agent: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for key, values := range e.headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("agent: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var out models.AgentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("agent: decode response: %w", err)
	}
	return &out, nil
}

// IsRetryable reports whether err is worth another attempt: 429 and 5xx
// responses and transport errors. Deadline and cancellation errors are not,
// since the query's time budget is already spent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return !netErr.Timeout()
	}
	return false
}
