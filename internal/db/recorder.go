package db

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/brensch/dumpstats/internal/dump"
)

// Recorder writes resolver and run events to the event log. Failures are
// logged and otherwise ignored.
type Recorder struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRecorder returns a Recorder. A nil db yields a recorder that only logs
// at debug level.
func NewRecorder(db *sql.DB, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{db: db, logger: logger}
}

// RecordEvent stores a dump resolution event.
func (r *Recorder) RecordEvent(ctx context.Context, ev dump.Event) {
	r.Record(ctx, SubjectDump, ev)
}

// Record stores ev under subjectType.
func (r *Recorder) Record(ctx context.Context, subjectType string, ev dump.Event) {
	if r.db == nil {
		r.logger.Debug("Event not persisted, no database.", slog.String("event", ev.Event), slog.String("subject", ev.Subject))
		return
	}
	if err := LogEvent(ctx, r.db, ev.Subject, subjectType, ev.Event, ev.Source, ev.OutputPath, ev.Message, ev.Duration); err != nil {
		r.logger.Warn("Failed to record event.", "error", err)
	}
}
