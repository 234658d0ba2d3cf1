package app

import (
	"fmt"
	"time"

	"github.com/brensch/dumpstats/internal/dump"
	"github.com/brensch/dumpstats/internal/orchestrator"
)

// --- Progress Messages ---

// ResolvedMsg tells the view which dump is being read.
type ResolvedMsg struct {
	Path   string
	Source string
	Size   int64 // compressed bytes
}

// DownloadMsg reports mirror download progress.
type DownloadMsg struct {
	Written int64
	Total   int64 // -1 if unknown
}

// ProgressMsg carries a lifecycle snapshot from the run.
type ProgressMsg struct {
	orchestrator.Progress
}

// TaskFinishedMsg signals the end of the run.
type TaskFinishedMsg struct {
	Summary   orchestrator.Summary
	Err       error
	StartTime time.Time
	EndTime   time.Time
}

// --- Message Constructors ---

func NewResolved(h dump.Handle) ResolvedMsg {
	return ResolvedMsg{Path: h.Path, Source: h.Source, Size: h.Size}
}

func NewDownload(written, total int64) DownloadMsg {
	return DownloadMsg{Written: written, Total: total}
}

func NewProgress(p orchestrator.Progress) ProgressMsg {
	return ProgressMsg{Progress: p}
}

func NewTaskFinished(start time.Time, summary orchestrator.Summary, err error) TaskFinishedMsg {
	return TaskFinishedMsg{Summary: summary, Err: err, StartTime: start, EndTime: time.Now()}
}

func (t TaskFinishedMsg) Error() string {
	if t.Err != nil {
		return t.Err.Error()
	}
	return ""
}

func (p ProgressMsg) String() string {
	return fmt.Sprintf("Progress %s: %d records", p.Phase, p.Records)
}
func (tf TaskFinishedMsg) String() string { return fmt.Sprintf("TaskFinished after %s", tf.EndTime.Sub(tf.StartTime)) }
