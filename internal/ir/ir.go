// Package ir reads and annotates symbolic score documents exchanged between
// pipeline stages. Only the note fields needed by the resolution passes are
// decoded; every other field is carried through unchanged.
package ir

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cesargomez89/etude/internal/domain"
)

const defaultVersion = "1.0.0"

const maxReportedProblems = 10

var semverPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`)

// Document is a score IR: a version tag, a note list, and opaque remaining fields.
type Document struct {
	Version string
	Notes   []*Note
	rest    map[string]json.RawMessage
}

// Note is one IR note. Fields not listed here stay in raw.
type Note struct {
	ID            string
	StaffID       string
	MIDI          int
	OnsetBeats    float64
	OnsetSeconds  float64
	DurationBeats float64
	Quantization  *Quantization
	Voice         int

	hasSeconds bool
	missing    []string
	raw        map[string]json.RawMessage
}

// Quantization is what the quantization pass attaches to a note.
type Quantization struct {
	NoteType      string
	OnsetBeats    float64
	DurationBeats float64
	OnsetError    float64
	DurationError float64
	Dots          int
}

type noteShape struct {
	NoteID string `json:"note_id"`
	Pitch  struct {
		MIDINote *int `json:"midi_note"`
	} `json:"pitch"`
	Time struct {
		OnsetSeconds *float64 `json:"onset_seconds"`
		AbsoluteBeat *float64 `json:"absolute_beat"`
	} `json:"time"`
	Duration struct {
		DurationBeats *float64 `json:"duration_beats"`
	} `json:"duration"`
	Spatial struct {
		StaffID json.RawMessage `json:"staff_id"`
	} `json:"spatial"`
}

// Parse decodes an IR document. Structural problems with individual notes are
// left for Validate.
func Parse(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, domain.NewValidationError("malformed IR: %v", err)
	}
	return &d, nil
}

// ParseAndValidate decodes data and checks it against major version want.
func ParseAndValidate(data []byte, want int) (*Document, error) {
	d, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := d.Validate(want); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("IR must be a JSON object")
	}

	d.Version = defaultVersion
	if raw, ok := fields["version"]; ok {
		if err := json.Unmarshal(raw, &d.Version); err != nil {
			return fmt.Errorf("version must be a string")
		}
		delete(fields, "version")
	}

	raw, ok := fields["notes"]
	if !ok {
		return fmt.Errorf("notes is required")
	}
	if err := json.Unmarshal(raw, &d.Notes); err != nil {
		return fmt.Errorf("notes: %w", err)
	}
	delete(fields, "notes")
	d.rest = fields
	return nil
}

func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(d.rest)+2)
	for k, v := range d.rest {
		out[k] = v
	}
	out["version"] = d.Version
	notes := d.Notes
	if notes == nil {
		notes = []*Note{}
	}
	out["notes"] = notes
	return json.Marshal(out)
}

// Major returns the major component of the version, or -1 if it is malformed.
func (d *Document) Major() int {
	m := semverPattern.FindStringSubmatch(d.Version)
	if m == nil {
		return -1
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// Validate checks the version and every note's required fields. want of 0
// accepts any major version.
func (d *Document) Validate(want int) error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	major := d.Major()
	switch {
	case major < 0:
		add("version %q is not a semantic version", d.Version)
	case want > 0 && major != want:
		add("expected IR version %d.x.x, got %s", want, d.Version)
	}

	seen := make(map[string]bool, len(d.Notes))
	for i, n := range d.Notes {
		if n == nil {
			add("notes[%d] is null", i)
			continue
		}
		for _, field := range n.missing {
			add("notes[%d] missing %s", i, field)
		}
		if n.ID != "" {
			if seen[n.ID] {
				add("notes[%d] duplicate note_id %q", i, n.ID)
			}
			seen[n.ID] = true
		}
		if n.MIDI < 0 || n.MIDI > 127 {
			add("notes[%d] midi_note %d out of range 0-127", i, n.MIDI)
		}
		if n.OnsetBeats < 0 || n.OnsetSeconds < 0 {
			add("notes[%d] onset is negative", i)
		}
		if n.DurationBeats < 0 {
			add("notes[%d] duration_beats is negative", i)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	if len(problems) > maxReportedProblems {
		more := len(problems) - maxReportedProblems
		problems = append(problems[:maxReportedProblems], fmt.Sprintf("and %d more", more))
	}
	return domain.NewValidationError("invalid IR: %s", strings.Join(problems, "; "))
}

func (n *Note) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var shape noteShape
	if err := json.Unmarshal(data, &shape); err != nil {
		return err
	}

	*n = Note{raw: raw, ID: shape.NoteID}
	if n.ID == "" {
		n.missing = append(n.missing, "note_id")
	}
	if shape.Pitch.MIDINote != nil {
		n.MIDI = *shape.Pitch.MIDINote
	} else {
		n.missing = append(n.missing, "pitch.midi_note")
	}
	if shape.Time.AbsoluteBeat != nil {
		n.OnsetBeats = *shape.Time.AbsoluteBeat
	} else {
		n.missing = append(n.missing, "time.absolute_beat")
	}
	if shape.Time.OnsetSeconds != nil {
		n.OnsetSeconds = *shape.Time.OnsetSeconds
		n.hasSeconds = true
	}
	if shape.Duration.DurationBeats != nil {
		n.DurationBeats = *shape.Duration.DurationBeats
	} else {
		n.missing = append(n.missing, "duration.duration_beats")
	}
	n.StaffID = staffID(shape.Spatial.StaffID)
	if n.StaffID == "" {
		n.missing = append(n.missing, "spatial.staff_id")
	}
	return nil
}

func staffID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String()
	}
	return ""
}

func (n *Note) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(n.raw)+5)
	for k, v := range n.raw {
		out[k] = v
	}
	if q := n.Quantization; q != nil {
		out["quantized_onset_beats"] = q.OnsetBeats
		out["quantized_duration_beats"] = q.DurationBeats
		out["quantized_note_type"] = []interface{}{q.NoteType, q.Dots}
		out["quantization_error"] = map[string]float64{
			"onset":    q.OnsetError,
			"duration": q.DurationError,
			"total":    q.OnsetError + q.DurationError,
		}
	}
	if n.Voice > 0 {
		out["resolved_voice"] = n.Voice
	}
	return json.Marshal(out)
}

// onset is the ordering key for simultaneity: seconds when present, else beats.
func (n *Note) onset() float64 {
	if n.hasSeconds {
		return n.OnsetSeconds
	}
	return n.OnsetBeats
}
