package dump

import (
	"context"
	"time"
)

// Event names recorded while resolving.
const (
	EventResolveStart  = "resolve_start"
	EventCandidateMiss = "candidate_miss"
	EventCandidateHit  = "candidate_hit"
	EventDownloadStart = "download_start"
	EventDownloadEnd   = "download_end"
	EventError         = "error"
)

// Event is one entry for the event log.
type Event struct {
	Subject    string
	Event      string
	Source     string
	OutputPath string
	Message    string
	Duration   *time.Duration
}

// EventRecorder stores events. Implementations log their own failures;
// recording never affects resolution.
type EventRecorder interface {
	RecordEvent(ctx context.Context, ev Event)
}

type nopRecorder struct{}

func (nopRecorder) RecordEvent(context.Context, Event) {}
