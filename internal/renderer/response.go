package renderer

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/domain"
)

// optionalFormats may be missing from a response even when requested.
var optionalFormats = map[string]bool{
	constants.FormatPNG: true,
}

// Output is a validated render response with binary formats decoded.
// SVG and PNG hold one entry per page.
type Output struct {
	MusicXML              []byte   `json:"musicxml,omitempty"`
	MIDI                  []byte   `json:"midi,omitempty"`
	SVG                   [][]byte `json:"svg,omitempty"`
	PNG                   [][]byte `json:"png,omitempty"`
	ProcessingTimeSeconds float64  `json:"processing_time_seconds"`
}

type renderResponse struct {
	Formats               map[string]json.RawMessage `json:"formats"`
	Message               string                     `json:"message"`
	ProcessingTimeSeconds float64                    `json:"processing_time_seconds"`
	Success               bool                       `json:"success"`
}

// DecodeResponse validates a /render response against the requested formats.
// Every requested format except the optional ones must be present and well
// formed; nothing is returned unless all of them are.
func DecodeResponse(body []byte, requested []string) (*Output, error) {
	var resp renderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewValidationError("renderer response is not valid JSON: %v", err)
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "no message"
		}
		return nil, domain.NewValidationError("rendering failed: %s", msg)
	}
	if resp.Formats == nil {
		return nil, domain.NewValidationError("renderer response is missing formats")
	}

	var missing []string
	for _, f := range requested {
		if raw, ok := resp.Formats[f]; (!ok || isNull(raw)) && !optionalFormats[f] {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, domain.NewValidationError("renderer response is missing requested formats: %s", strings.Join(missing, ", "))
	}

	out := &Output{ProcessingTimeSeconds: resp.ProcessingTimeSeconds}
	for _, f := range requested {
		raw, ok := resp.Formats[f]
		if !ok || isNull(raw) {
			continue
		}
		if err := out.decodeFormat(f, raw); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (o *Output) decodeFormat(format string, raw json.RawMessage) error {
	switch format {
	case constants.FormatMusicXML:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return domain.NewValidationError("musicxml must be a non-empty string")
		}
		o.MusicXML = []byte(s)
	case constants.FormatMIDI:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return domain.NewValidationError("midi must be a base64 string")
		}
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil || len(data) == 0 {
			return domain.NewValidationError("midi is not valid base64")
		}
		o.MIDI = data
	case constants.FormatSVG:
		var pages []string
		if err := json.Unmarshal(raw, &pages); err != nil || len(pages) == 0 {
			return domain.NewValidationError("svg must be a non-empty list of pages")
		}
		for i, p := range pages {
			if p == "" {
				return domain.NewValidationError("svg page %d is empty", i)
			}
			o.SVG = append(o.SVG, []byte(p))
		}
	case constants.FormatPNG:
		var pages []string
		if err := json.Unmarshal(raw, &pages); err != nil {
			return domain.NewValidationError("png must be a list of base64 pages")
		}
		for i, p := range pages {
			data, err := base64.StdEncoding.DecodeString(p)
			if err != nil || len(data) == 0 {
				return domain.NewValidationError("png page %d is not valid base64", i)
			}
			o.PNG = append(o.PNG, data)
		}
	default:
		return domain.NewValidationError("unsupported render format %q", format)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
