package ir

import (
	"math"
	"sort"

	"github.com/cesargomez89/etude/internal/constants"
)

type VoiceResolver struct {
	MaxVoices int
	Tolerance float64
}

func NewVoiceResolver(maxVoices int) VoiceResolver {
	if maxVoices <= 0 {
		maxVoices = constants.MaxVoices
	}
	return VoiceResolver{MaxVoices: maxVoices, Tolerance: constants.VoiceTimeTolerance}
}

// Apply assigns voices per staff. Notes sounding together are numbered from
// the highest pitch down; voices past MaxVoices collapse into the last one.
func (r VoiceResolver) Apply(notes []*Note) {
	var order []string
	byStaff := make(map[string][]*Note)
	for _, n := range notes {
		if n == nil {
			continue
		}
		if _, ok := byStaff[n.StaffID]; !ok {
			order = append(order, n.StaffID)
		}
		byStaff[n.StaffID] = append(byStaff[n.StaffID], n)
	}

	for _, staff := range order {
		staffNotes := byStaff[staff]
		sort.SliceStable(staffNotes, func(i, j int) bool {
			return staffNotes[i].onset() < staffNotes[j].onset()
		})
		for _, group := range r.simultaneous(staffNotes) {
			sort.SliceStable(group, func(i, j int) bool {
				return group[i].MIDI > group[j].MIDI
			})
			for i, n := range group {
				n.Voice = min(i+1, r.MaxVoices)
			}
		}
	}
}

// simultaneous splits onset-sorted notes into groups whose onsets lie within
// tolerance of the group's first note.
func (r VoiceResolver) simultaneous(sorted []*Note) [][]*Note {
	var groups [][]*Note
	var current []*Note
	var start float64
	for _, n := range sorted {
		if len(current) > 0 && math.Abs(n.onset()-start) <= r.Tolerance {
			current = append(current, n)
			continue
		}
		if len(current) > 0 {
			groups = append(groups, current)
		}
		current = []*Note{n}
		start = n.onset()
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// Resolve runs quantization then voice assignment over the document's notes.
// Document note order is preserved.
func Resolve(d *Document, q Quantizer, v VoiceResolver) {
	q.Apply(d.Notes)
	v.Apply(d.Notes)
}
