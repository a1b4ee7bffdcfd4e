package ir

import (
	"math"

	"github.com/cesargomez89/etude/internal/constants"
)

// standardDurations are the note values a duration snaps to, longest first.
// On equal distance the longer value wins.
var standardDurations = []float64{4.0, 3.0, 2.0, 1.5, 1.0, 0.75, 0.5, 0.375, 0.25, 0.125, 0.0625}

var baseDurations = []float64{4.0, 2.0, 1.0, 0.5, 0.25, 0.125, 0.0625}

var noteTypeNames = map[float64]string{
	4.0:    "whole",
	2.0:    "half",
	1.0:    "quarter",
	0.5:    "eighth",
	0.25:   "16th",
	0.125:  "32nd",
	0.0625: "64th",
}

const dottedEpsilon = 0.001

type Quantizer struct {
	Tolerance   float64
	MinDuration float64
}

func NewQuantizer(tolerance, minDuration float64) Quantizer {
	if tolerance <= 0 {
		tolerance = constants.QuantizeTolerance
	}
	if minDuration <= 0 {
		minDuration = constants.QuantizeMinDuration
	}
	return Quantizer{Tolerance: tolerance, MinDuration: minDuration}
}

// Duration snaps d to the closest standard value within tolerance, otherwise
// to the nearest multiple of the minimum duration.
func (q Quantizer) Duration(d float64) float64 {
	if d < q.MinDuration {
		return q.MinDuration
	}
	closest := standardDurations[0]
	best := math.Abs(closest - d)
	for _, v := range standardDurations[1:] {
		if dist := math.Abs(v - d); dist < best {
			closest, best = v, dist
		}
	}
	if best <= q.Tolerance {
		return closest
	}
	return q.grid(d)
}

// Onset snaps a beat position to the minimum-duration grid.
func (q Quantizer) Onset(beat float64) float64 {
	return q.grid(beat)
}

func (q Quantizer) grid(v float64) float64 {
	return math.RoundToEven(v/q.MinDuration) * q.MinDuration
}

// NoteType names a quantized duration and its dot count. Values with no
// notation fall back to quarter.
func NoteType(d float64) (string, int) {
	for _, base := range baseDurations {
		if math.Abs(d-base*1.5) < dottedEpsilon {
			return noteTypeNames[base], 1
		}
	}
	if name, ok := noteTypeNames[d]; ok {
		return name, 0
	}
	return "quarter", 0
}

// Apply annotates each note with its quantized onset, duration and note type.
func (q Quantizer) Apply(notes []*Note) {
	for _, n := range notes {
		if n == nil {
			continue
		}
		onset := q.Onset(n.OnsetBeats)
		dur := q.Duration(n.DurationBeats)
		name, dots := NoteType(dur)
		n.Quantization = &Quantization{
			OnsetBeats:    onset,
			DurationBeats: dur,
			NoteType:      name,
			Dots:          dots,
			OnsetError:    math.Abs(n.OnsetBeats - onset),
			DurationError: math.Abs(n.DurationBeats - dur),
		}
	}
}
