// Package omr calls the optical music recognition service, which turns a
// score PDF into IR v1.
package omr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/httpclient"
)

type ProcessingMetadata struct {
	PagesProcessed int `json:"pages_processed"`
	NotesDetected  int `json:"notes_detected"`
}

// Result is the /process response. IRData is passed on undecoded.
type Result struct {
	IRData             json.RawMessage    `json:"ir_data"`
	ConfidenceSummary  json.RawMessage    `json:"confidence_summary,omitempty"`
	ProcessingMetadata ProcessingMetadata `json:"processing_metadata"`
}

type Client struct {
	http    *httpclient.Client
	baseURL string
	timeout time.Duration
}

func NewClient(baseURL string, hc *httpclient.Client) *Client {
	return &Client{
		http:    hc,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: constants.OMRTimeout,
	}
}

// Process uploads pdf and returns the recognised IR.
func (c *Client) Process(ctx context.Context, pdf []byte, sourceArtifactID, filename string) (*Result, error) {
	body, contentType, err := processForm(pdf, sourceArtifactID, filename)
	if err != nil {
		return nil, err
	}

	respBody, err := c.http.Do(ctx, c.timeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/process", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, domain.NewValidationError("OMR response is not valid JSON: %v", err)
	}
	if len(result.IRData) == 0 || string(result.IRData) == "null" {
		return nil, domain.NewValidationError("OMR response is missing ir_data")
	}
	return &result, nil
}

func processForm(pdf []byte, sourceArtifactID, filename string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="pdf_bytes"; filename="document.pdf"`)
	h.Set("Content-Type", "application/pdf")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(pdf); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("source_pdf_artifact_id", sourceArtifactID); err != nil {
		return nil, "", err
	}
	if filename != "" {
		if err := w.WriteField("filename", filename); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to encode OMR request: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// Health probes the service, retrying attempts times.
func (c *Client) Health(ctx context.Context, attempts int, wait time.Duration) error {
	return c.http.CheckHealth(ctx, c.baseURL, attempts, wait)
}
