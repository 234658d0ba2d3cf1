package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // Driver
)

// Run-level event types. Resolution events are named in package dump.
const (
	EventRunStart        = "run_start"
	EventRunEnd          = "run_end"
	EventProcessorFailed = "processor_failed"
)

// Constants for subject types
const (
	SubjectDump      = "dump"
	SubjectRun       = "run"
	SubjectProcessor = "processor"
)

// Schema SQL
const schemaSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS dump_event_log_id_seq;`
const schemaTableSQL = `
CREATE TABLE IF NOT EXISTS dump_event_log (
    log_id          BIGINT PRIMARY KEY DEFAULT nextval('dump_event_log_id_seq'),
    subject         VARCHAR NOT NULL,      -- dump date, or processor name
    subject_type    VARCHAR NOT NULL,      -- 'dump', 'run', 'processor'
    event           VARCHAR NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    source          VARCHAR,               -- tier name or mirror URL
    output_path     VARCHAR,               -- candidate path, download target or output dir
    message         VARCHAR,
    duration_ms     BIGINT
);
CREATE INDEX IF NOT EXISTS idx_dump_event_log_subject ON dump_event_log (subject, subject_type);
CREATE INDEX IF NOT EXISTS idx_dump_event_log_event_time ON dump_event_log (event, event_timestamp);
`

// InitializeSchema creates the sequence and tables in the correct order.
func InitializeSchema(db *sql.DB) error {
	// 1. Create Sequence First
	_, err := db.Exec(schemaSequenceSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute sequence setup: %w", err)
	}
	// 2. Create Table and Indices
	_, err = db.Exec(schemaTableSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute table/index setup: %w", err)
	}
	return nil
}

// LogEvent inserts a new event record into the log.
func LogEvent(ctx context.Context, db *sql.DB, subject, subjectType, event, source, outputPath, message string, duration *time.Duration) error {
	query := `
        INSERT INTO dump_event_log (subject, subject_type, event, event_timestamp, source, output_path, message, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?);
    `
	var durationMs sql.NullInt64
	if duration != nil {
		durationMs = sql.NullInt64{Int64: duration.Milliseconds(), Valid: true}
	}

	_, err := db.ExecContext(ctx, query,
		subject,
		subjectType,
		event,
		time.Now().UTC(),
		sql.NullString{String: source, Valid: source != ""},
		sql.NullString{String: outputPath, Valid: outputPath != ""},
		sql.NullString{String: message, Valid: message != ""},
		durationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to log event '%s' for '%s': %w", event, subject, err)
	}
	return nil
}

// DisplayEventHistory queries and prints the event log.
func DisplayEventHistory(ctx context.Context, db *sql.DB, subjectTypeFilter, eventFilter string, limit int) error {
	query := `
        SELECT subject, subject_type, event, event_timestamp, message, duration_ms, source, output_path
        FROM dump_event_log
    `
	conditions := []string{}
	args := []any{}
	argCounter := 1 // Start with $1 for positional args

	if subjectTypeFilter != "" {
		conditions = append(conditions, fmt.Sprintf("subject_type = $%d", argCounter))
		args = append(args, subjectTypeFilter)
		argCounter++
	}
	if eventFilter != "" {
		conditions = append(conditions, fmt.Sprintf("event = $%d", argCounter))
		args = append(args, eventFilter)
		argCounter++
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += fmt.Sprintf(" ORDER BY event_timestamp DESC, log_id DESC LIMIT $%d", argCounter)
	args = append(args, limit)

	fmt.Printf("--- Event Log History (Limit %d) ---\n", limit)
	fmt.Printf("%-20s | %-9s | %-16s | %-25s | %-10s | %s\n", "Subject", "Type", "Event", "Timestamp (UTC)", "DurationMS", "Message/Details")
	fmt.Println(strings.Repeat("-", 130))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query event log: %w \n Query: %s \n Args: %v", err, query, args)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var subject, subjectType, event string
		var timestamp time.Time
		var message, source, outputPath sql.NullString
		var durationMs sql.NullInt64
		if err := rows.Scan(&subject, &subjectType, &event, &timestamp, &message, &durationMs, &source, &outputPath); err != nil {
			return fmt.Errorf("failed to scan event log row: %w", err)
		}

		durationStr := ""
		if durationMs.Valid {
			durationStr = fmt.Sprintf("%d", durationMs.Int64)
		}

		details := message.String
		if source.Valid && source.String != "" {
			details += fmt.Sprintf(" (Source: %s)", source.String)
		}
		if outputPath.Valid && outputPath.String != "" {
			details += fmt.Sprintf(" (Output: %s)", filepath.Base(outputPath.String))
		}

		fmt.Printf("%-20s | %-9s | %-16s | %-25s | %-10s | %s\n",
			subject, subjectType, event, timestamp.Format(time.RFC3339), durationStr, strings.TrimSpace(details))
		count++
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating event log rows: %w", err)
	}
	fmt.Printf("Displayed %d records.\n", count)
	return nil
}
