// Package renderer calls the rendering service, which engraves IR v2 into
// MusicXML, MIDI, SVG and PNG.
package renderer

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/httpclient"
)

// DefaultFormats are requested when the caller names none.
var DefaultFormats = []string{
	constants.FormatMusicXML,
	constants.FormatMIDI,
	constants.FormatSVG,
	constants.FormatPNG,
}

// Renderer turns an IR document into output formats.
type Renderer interface {
	Render(ctx context.Context, jobID string, ir []byte, formats []string) (*Output, error)
}

var _ Renderer = (*Client)(nil)
var _ Renderer = (*CachedClient)(nil)

type Client struct {
	http    *httpclient.Client
	baseURL string
	timeout time.Duration
}

func NewClient(baseURL string, hc *httpclient.Client) *Client {
	return &Client{
		http:    hc,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: constants.RenderTimeout,
	}
}

func (c *Client) Render(ctx context.Context, jobID string, ir []byte, formats []string) (*Output, error) {
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	q := url.Values{}
	for _, f := range formats {
		q.Add("formats", f)
	}
	endpoint := c.baseURL + "/render?" + q.Encode()

	body, err := c.http.Do(ctx, c.timeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(ir))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if jobID != "" {
			req.Header.Set("X-Job-Id", jobID)
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	return DecodeResponse(body, formats)
}

func (c *Client) Health(ctx context.Context, attempts int, wait time.Duration) error {
	return c.http.CheckHealth(ctx, c.baseURL, attempts, wait)
}
