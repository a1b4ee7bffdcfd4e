package domain

import (
	"fmt"
	"strings"
)

var transitions = map[JobStatus][]JobStatus{
	JobStatusPending:             {JobStatusOMRProcessing, JobStatusFailed},
	JobStatusOMRProcessing:       {JobStatusOMRCompleted, JobStatusOMRFailed, JobStatusFailed},
	JobStatusOMRCompleted:        {JobStatusFingeringProcessing, JobStatusFailed},
	JobStatusOMRFailed:           {JobStatusOMRProcessing, JobStatusFailed},
	JobStatusFingeringProcessing: {JobStatusFingeringCompleted, JobStatusFingeringFailed, JobStatusFailed},
	JobStatusFingeringCompleted:  {JobStatusRenderingProcessing, JobStatusFailed},
	JobStatusFingeringFailed:     {JobStatusFingeringProcessing, JobStatusFailed},
	JobStatusRenderingProcessing: {JobStatusCompleted, JobStatusFailed},
	JobStatusCompleted:           {},
	JobStatusFailed:              {},
}

// JobStatuses returns every known status.
func JobStatuses() []JobStatus {
	return []JobStatus{
		JobStatusPending,
		JobStatusOMRProcessing,
		JobStatusOMRCompleted,
		JobStatusOMRFailed,
		JobStatusFingeringProcessing,
		JobStatusFingeringCompleted,
		JobStatusFingeringFailed,
		JobStatusRenderingProcessing,
		JobStatusCompleted,
		JobStatusFailed,
	}
}

// AllowedTransitions returns the statuses reachable in one step from s.
func AllowedTransitions(s JobStatus) []JobStatus {
	next := transitions[s]
	out := make([]JobStatus, len(next))
	copy(out, next)
	return out
}

// ValidateTransition reports whether a job may move from current to next.
// When it may not, reason explains why and lists the allowed next statuses.
func ValidateTransition(current, next JobStatus) (bool, string) {
	allowed, ok := transitions[current]
	if !ok {
		return false, fmt.Sprintf("unknown current status %q", string(current))
	}
	if !next.Valid() {
		return false, fmt.Sprintf("unknown target status %q; allowed from %s: %s", string(next), current, joinStatuses(allowed))
	}
	for _, s := range allowed {
		if s == next {
			return true, ""
		}
	}
	return false, fmt.Sprintf("cannot transition from %s to %s; allowed: %s", current, next, joinStatuses(allowed))
}

func joinStatuses(statuses []JobStatus) string {
	if len(statuses) == 0 {
		return "none"
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// StageStatuses are the statuses a stage handler moves a job through.
type StageStatuses struct {
	Processing JobStatus
	Completed  JobStatus
	Failed     JobStatus
}

// Statuses returns the processing, success and failure statuses of a stage.
// Rendering has no stage-specific failure status and ends in the terminal ones.
func (s Stage) Statuses() StageStatuses {
	switch s {
	case StageOMR:
		return StageStatuses{JobStatusOMRProcessing, JobStatusOMRCompleted, JobStatusOMRFailed}
	case StageFingering:
		return StageStatuses{JobStatusFingeringProcessing, JobStatusFingeringCompleted, JobStatusFingeringFailed}
	case StageRendering:
		return StageStatuses{JobStatusRenderingProcessing, JobStatusCompleted, JobStatusFailed}
	}
	return StageStatuses{}
}

// Next returns the stage that follows s, or "" after rendering.
func (s Stage) Next() Stage {
	switch s {
	case StageOMR:
		return StageFingering
	case StageFingering:
		return StageRendering
	}
	return ""
}

// Passed reports whether a job in status has already finished stage s, so a
// late or duplicate task for s has nothing left to do.
func (s Stage) Passed(status JobStatus) bool {
	if status.IsTerminal() || status == s.Statuses().Completed {
		return true
	}
	return stageOrder[status.Stage()] > stageOrder[s]
}
