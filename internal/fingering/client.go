// Package fingering calls the fingering inference service, which annotates
// IR v1 with fingerings and returns IR v2.
package fingering

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/httpclient"
)

type inferRequest struct {
	IRv1              json.RawMessage `json:"ir_v1"`
	UncertaintyPolicy string          `json:"uncertainty_policy"`
}

// Result is the /infer response.
type Result struct {
	SymbolicIRv2          json.RawMessage `json:"symbolic_ir_v2"`
	Message               string          `json:"message"`
	ProcessingTimeSeconds float64         `json:"processing_time_seconds"`
	Success               bool            `json:"success"`
}

type Client struct {
	http    *httpclient.Client
	baseURL string
	policy  string
	timeout time.Duration
}

func NewClient(baseURL string, hc *httpclient.Client) *Client {
	return &Client{
		http:    hc,
		baseURL: strings.TrimRight(baseURL, "/"),
		policy:  constants.FingeringPolicy,
		timeout: constants.FingeringTimeout,
	}
}

// Infer sends irV1 and returns the annotated IR. A response without success
// or without an IR is a validation error.
func (c *Client) Infer(ctx context.Context, irV1 json.RawMessage) (*Result, error) {
	body, err := json.Marshal(inferRequest{IRv1: irV1, UncertaintyPolicy: c.policy})
	if err != nil {
		return nil, fmt.Errorf("failed to encode fingering request: %w", err)
	}

	respBody, err := c.http.Do(ctx, c.timeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/infer", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, domain.NewValidationError("fingering response is not valid JSON: %v", err)
	}
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "no message"
		}
		return nil, domain.NewValidationError("fingering inference failed: %s", msg)
	}
	if len(result.SymbolicIRv2) == 0 || string(result.SymbolicIRv2) == "null" {
		return nil, domain.NewValidationError("fingering response is missing symbolic_ir_v2")
	}
	return &result, nil
}

func (c *Client) Health(ctx context.Context, attempts int, wait time.Duration) error {
	return c.http.CheckHealth(ctx, c.baseURL, attempts, wait)
}
