package httpclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cesargomez89/etude/internal/constants"
)

// ExtractErrorDetail pulls a readable message out of an error response body.
// It looks at detail (string, list or object), then message, then error, and
// falls back to the raw text.
func ExtractErrorDetail(status int, body []byte) string {
	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		text := strings.TrimSpace(string(body))
		if text == "" {
			return fmt.Sprintf("HTTP %d error (empty response)", status)
		}
		if len(text) > constants.MaxServiceErrorDetail {
			return "Non-JSON error response (first 500 chars): " + text[:constants.MaxServiceErrorDetail]
		}
		return "Non-JSON error response: " + text
	}

	obj, ok := parsed.(map[string]interface{})
	if !ok {
		return stringify(parsed)
	}
	if detail, ok := obj["detail"]; ok {
		return detailString(detail)
	}
	if msg, ok := obj["message"]; ok {
		return stringify(msg)
	}
	if msg, ok := obj["error"]; ok {
		return stringify(msg)
	}
	return stringify(obj)
}

func detailString(detail interface{}) string {
	switch d := detail.(type) {
	case string:
		return d
	case []interface{}:
		parts := make([]string, 0, len(d))
		for _, item := range d {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, "; ")
	case map[string]interface{}:
		var parts []string
		if e, ok := d["error"]; ok {
			parts = append(parts, stringify(e))
		} else if m, ok := d["message"]; ok {
			parts = append(parts, stringify(m))
		}
		if t, ok := d["error_type"]; ok {
			parts = append(parts, fmt.Sprintf("(Type: %s)", stringify(t)))
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
		return stringify(d)
	}
	return stringify(detail)
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
