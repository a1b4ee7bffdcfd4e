package renderer

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/httpclient"
	"github.com/cesargomez89/etude/internal/logger"
)

var (
	midiB64 = base64.StdEncoding.EncodeToString([]byte("MThd"))
	pngB64  = base64.StdEncoding.EncodeToString([]byte("\x89PNG"))
)

func fullResponse() string {
	return `{"success": true, "processing_time_seconds": 0.4, "formats": {
		"musicxml": "<score-partwise/>",
		"midi": "` + midiB64 + `",
		"svg": ["<svg>1</svg>", "<svg>2</svg>"],
		"png": ["` + pngB64 + `"]}}`
}

func TestClientRender(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/render" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query()["formats"]; strings.Join(got, ",") != "musicxml,midi,svg,png" {
			t.Errorf("unexpected formats %v", got)
		}
		if r.Header.Get("X-Job-Id") != "job-1" {
			t.Errorf("missing job header")
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"version":"2.0.0"}` {
			t.Errorf("unexpected body %s", body)
		}
		_, _ = w.Write([]byte(fullResponse()))
	}))
	defer server.Close()

	c := NewClient(server.URL, httpclient.NewClient("renderer", nil, httpclient.RetryPolicy{Attempts: 1}))
	out, err := c.Render(context.Background(), "job-1", []byte(`{"version":"2.0.0"}`), nil)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if string(out.MIDI) != "MThd" || len(out.SVG) != 2 || len(out.PNG) != 1 || string(out.PNG[0]) != "\x89PNG" {
		t.Errorf("unexpected output: %+v", out)
	}
}

func TestDecodeResponse(t *testing.T) {
	all := []string{"musicxml", "midi", "svg", "png"}
	tests := []struct {
		name      string
		body      string
		requested []string
		wantErr   string
	}{
		{"complete", fullResponse(), all, ""},
		{"png optional", `{"success": true, "formats": {"musicxml": "x", "midi": "` + midiB64 + `", "svg": ["s"]}}`, all, ""},
		{"missing midi", `{"success": true, "formats": {"musicxml": "x", "svg": ["s"]}}`, all, "missing requested formats: midi"},
		{"midi not requested", `{"success": true, "formats": {"musicxml": "x"}}`, []string{"musicxml"}, ""},
		{"not successful", `{"success": false, "message": "font missing"}`, all, "font missing"},
		{"no formats", `{"success": true}`, all, "missing formats"},
		{"empty svg list", `{"success": true, "formats": {"svg": []}}`, []string{"svg"}, "non-empty list"},
		{"bad midi", `{"success": true, "formats": {"midi": "%%%"}}`, []string{"midi"}, "not valid base64"},
		{"bad png", `{"success": true, "formats": {"png": ["%%%"]}}`, []string{"png"}, "png page 0"},
		{"empty musicxml", `{"success": true, "formats": {"musicxml": ""}}`, []string{"musicxml"}, "non-empty string"},
		{"not json", `oops`, all, "not valid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := DecodeResponse([]byte(tt.body), tt.requested)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if out != nil {
				t.Error("output returned alongside an error")
			}
			if !errors.Is(err, domain.ErrValidation) || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected validation error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCacheKey(t *testing.T) {
	a := CacheKey([]byte(`{"version": "2.0.0", "notes": []}`), []string{"svg", "midi"})
	b := CacheKey([]byte(`{"version":"2.0.0","notes":[]}`), []string{"midi", "svg"})
	if a != b {
		t.Error("key depends on whitespace or format order")
	}
	if c := CacheKey([]byte(`{"version":"2.0.0","notes":[]}`), []string{"midi"}); c == a {
		t.Error("key ignores formats")
	}
	if !strings.HasPrefix(a, "render:") {
		t.Errorf("unexpected key %s", a)
	}
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memoryCache) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	m.ttls[key] = ttl
	return nil
}

type countingRenderer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingRenderer) Render(context.Context, string, []byte, []string) (*Output, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &Output{MusicXML: []byte("<x/>"), MIDI: []byte("MThd"), SVG: [][]byte{[]byte("<svg/>")}}, nil
}

func TestCachedClient(t *testing.T) {
	inner := &countingRenderer{}
	cache := newMemoryCache()
	c := NewCachedClient(inner, cache, time.Hour, logger.Discard())
	ctx := context.Background()
	ir := []byte(`{"version":"2.0.0","notes":[]}`)

	first, err := c.Render(ctx, "job-1", ir, []string{"musicxml", "midi", "svg"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	second, err := c.Render(ctx, "job-2", ir, []string{"svg", "midi", "musicxml"})
	if err != nil {
		t.Fatalf("cached Render failed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected one upstream call, got %d", inner.calls)
	}
	if string(second.MIDI) != string(first.MIDI) || len(second.SVG) != 1 {
		t.Errorf("cached output differs: %+v", second)
	}
	for _, ttl := range cache.ttls {
		if ttl != time.Hour {
			t.Errorf("ttl = %v", ttl)
		}
	}
}

func TestCachedClientDoesNotCacheFailures(t *testing.T) {
	inner := &countingRenderer{err: errors.New("down")}
	cache := newMemoryCache()
	c := NewCachedClient(inner, cache, time.Hour, logger.Discard())

	for i := 0; i < 2; i++ {
		if _, err := c.Render(context.Background(), "j", []byte(`{}`), nil); err == nil {
			t.Fatal("expected error")
		}
	}
	if inner.calls != 2 || len(cache.data) != 0 {
		t.Errorf("calls = %d, cached = %d", inner.calls, len(cache.data))
	}
}
