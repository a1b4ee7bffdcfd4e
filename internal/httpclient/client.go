// Package httpclient is the HTTP transport shared by the model service
// clients: per-call timeouts, retries on transport failures, and error
// details extracted from failed responses.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/observability"
)

// RetryPolicy controls how transport failures are retried. The wait before
// attempt n+1 is Base doubled n-1 times, capped at Max.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: constants.DefaultRetryCount,
		Base:     constants.DefaultRetryBase,
		Max:      constants.DefaultRetryMax,
	}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	wait := p.Base
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && wait > p.Max {
		return p.Max
	}
	return wait
}

// RequestFunc builds a fresh request for each attempt.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Client wraps an http.Client to provide timeouts and retries.
type Client struct {
	httpClient *http.Client
	policy     RetryPolicy
	service    string
}

// NewClient creates a retrying client for the named service.
func NewClient(service string, httpClient *http.Client, policy RetryPolicy) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		}
	}
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &Client{httpClient: httpClient, policy: policy, service: service}
}

// Service names the remote service in errors and spans.
func (c *Client) Service() string {
	return c.service
}

// Do sends the request built by newReq and returns the response body. Each
// attempt gets its own timeout. Connection failures and timeouts are retried;
// an HTTP error status returns a *StatusError at once.
func (c *Client) Do(ctx context.Context, timeout time.Duration, newReq RequestFunc) ([]byte, error) {
	ctx, span := observability.Tracer().Start(ctx, c.service+".request")
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= c.policy.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		span.SetAttributes(attribute.Int("http.attempt", attempt))

		body, err := c.attempt(ctx, timeout, newReq)
		if err == nil {
			return body, nil
		}
		var te *TransportError
		if !errors.As(err, &te) {
			observability.RecordError(span, err)
			return nil, err
		}
		te.Attempts = attempt
		lastErr = te

		if attempt == c.policy.Attempts {
			break
		}
		timer := time.NewTimer(c.policy.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	observability.RecordError(span, lastErr)
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, timeout time.Duration, newReq RequestFunc) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := newReq(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", c.service, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Service: c.service, URL: req.URL.String(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Service: c.service, URL: req.URL.String(), Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{
			Service:    c.service,
			StatusCode: resp.StatusCode,
			Detail:     ExtractErrorDetail(resp.StatusCode, body),
		}
	}
	return body, nil
}

// CheckHealth probes GET {baseURL}/health up to attempts times, waiting wait
// between tries. It returns the last failure, or nil once the service answers 200.
func (c *Client) CheckHealth(ctx context.Context, baseURL string, attempts int, wait time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		lastErr = c.probe(ctx, baseURL)
		if lastErr == nil {
			return nil
		}
		if i == attempts {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (c *Client) probe(ctx context.Context, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Service: c.service, URL: req.URL.String(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Service: c.service, StatusCode: resp.StatusCode, Detail: "health check failed"}
	}
	return nil
}

// TransportError is a request that never produced an HTTP response.
type TransportError struct {
	Err      error
	Service  string
	URL      string
	Attempts int
}

func (e *TransportError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s unreachable after %d attempts: %v", e.Service, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s unreachable: %v", e.Service, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) ErrorKind() domain.ErrorKind {
	return domain.KindTransport
}

// StatusError is an HTTP error response from a service.
type StatusError struct {
	Service    string
	Detail     string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Service, e.StatusCode, e.Detail)
}

// ErrorKind treats rejected requests as validation failures and server-side
// errors as transport failures.
func (e *StatusError) ErrorKind() domain.ErrorKind {
	if e.StatusCode < http.StatusInternalServerError {
		return domain.KindValidation
	}
	return domain.KindTransport
}
